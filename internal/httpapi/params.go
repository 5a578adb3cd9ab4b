package httpapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// writeError is the single HTTP-boundary translation point from an
// apperr.Kind to a status code and JSON body: the mapped status plus
// {error: <message>}.
func writeError(c echo.Context, err error) error {
	return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
}

// parsePathID parses the ":id" path parameter: an unparseable id is a
// 400, never a 404.
func parsePathID(c echo.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validationf("invalid id %q: must be an integer", raw)
	}
	return id, nil
}

// parseLimitOffset parses the shared limit/offset pair. limit defaults to
// defaultLimit when absent; 0, negative, or >maxLimit values are 400s, as
// is a negative offset. No lenient fallbacks.
func parseLimitOffset(c echo.Context) (limit, offset int, err error) {
	limit = defaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, apperr.Validationf("invalid limit %q: must be an integer", raw)
		}
		if limit <= 0 {
			return 0, 0, apperr.Validationf("limit must be positive, got %d", limit)
		}
		if limit > maxLimit {
			return 0, 0, apperr.Validationf("limit must not exceed %d, got %d", maxLimit, limit)
		}
	}

	if raw := c.QueryParam("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, apperr.Validationf("invalid offset %q: must be an integer", raw)
		}
		if offset < 0 {
			return 0, 0, apperr.Validationf("offset must not be negative, got %d", offset)
		}
	}
	return limit, offset, nil
}

// parseSortBy validates the sort_by enum, defaulting to created_at.
func parseSortBy(c echo.Context) (storage.SortField, error) {
	raw := c.QueryParam("sort_by")
	if raw == "" {
		return storage.SortByCreatedAt, nil
	}
	switch storage.SortField(raw) {
	case storage.SortByCreatedAt, storage.SortByUpdatedAt, storage.SortByImportance:
		return storage.SortField(raw), nil
	default:
		return "", apperr.Validationf("unknown sort_by %q", raw)
	}
}

// parseSortOrder validates the sort_order enum, defaulting to desc.
func parseSortOrder(c echo.Context) (storage.SortOrder, error) {
	raw := c.QueryParam("sort_order")
	if raw == "" {
		return storage.SortDesc, nil
	}
	switch storage.SortOrder(raw) {
	case storage.SortAsc, storage.SortDesc:
		return storage.SortOrder(raw), nil
	default:
		return "", apperr.Validationf("unknown sort_order %q", raw)
	}
}

// parseTags splits a comma-separated tags query param. Empty segments are
// dropped; tag filtering itself is OR semantics.
func parseTags(c echo.Context) []string {
	raw := c.QueryParam("tags")
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// parseIntPtr parses an optional integer query param, returning nil when absent.
func parseIntPtr(c echo.Context, name string) (*int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperr.Validationf("invalid %s %q: must be an integer", name, raw)
	}
	return &v, nil
}

// parseInt64Ptr parses an optional int64 query param, returning nil when absent.
func parseInt64Ptr(c echo.Context, name string) (*int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperr.Validationf("invalid %s %q: must be an integer", name, raw)
	}
	return &v, nil
}

// parseBool parses an optional bool query param, defaulting to false.
func parseBool(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.Validationf("invalid %s %q: must be a boolean", name, raw)
	}
	return v, nil
}

// parseNodeTypes validates the node_types query param against the five
// known node kinds.
func parseNodeTypes(c echo.Context, name string) ([]storage.NodeType, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	var types []storage.NodeType
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		nt := storage.NodeType(t)
		switch nt {
		case storage.NodeTypeMemory, storage.NodeTypeProject, storage.NodeTypeDocument,
			storage.NodeTypeCodeArtifact, storage.NodeTypeEntity:
			types = append(types, nt)
		default:
			return nil, apperr.Validationf("unknown node type %q", t)
		}
	}
	return types, nil
}
