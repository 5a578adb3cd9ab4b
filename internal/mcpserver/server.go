// Package mcpserver exposes Forgetful's tool registry over the Model
// Context Protocol: three meta-tools — discover_forgetful_tools,
// how_to_use_forgetful_tool, execute_forgetful_tool — always permitted
// regardless of effective scope, fronting every other registered tool
// via execute_forgetful_tool(tool_name, arguments).
package mcpserver

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/scope"
	"github.com/forgetful-ai/forgetful/internal/tools"
)

// Config configures the MCP server's reported identity.
type Config struct {
	Name    string
	Version string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{Name: "forgetfuld", Version: "0.1.0"}
}

// Server wraps modelcontextprotocol/go-sdk's mcp.Server with Forgetful's
// meta-tool surface. Unlike the HTTP boundary, a stdio MCP process serves
// exactly one resolved user for its lifetime: there is no per-request
// Authorization header to re-resolve, so userID and the effective
// permitted-tool set are fixed at construction.
type Server struct {
	mcp        *mcp.Server
	dispatcher *tools.Dispatcher
	userID     uuid.UUID
	permitted  map[string]bool
	logger     *zap.Logger
}

// NewServer constructs a Server. instanceScopes is the deployment's scope
// ceiling (FORGETFUL_SCOPES); permitted tools are resolved once up front
// via scope.ResolvePermittedTools.
func NewServer(cfg *Config, dispatcher *tools.Dispatcher, userID uuid.UUID, instanceScopes scope.Scopes, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("tool dispatcher is required")
	}
	if len(instanceScopes) == 0 {
		return nil, fmt.Errorf("instance scope set is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil)

	s := &Server{
		mcp:        mcpServer,
		dispatcher: dispatcher,
		userID:     userID,
		permitted:  scope.ResolvePermittedTools(instanceScopes, dispatcher.Registry.ToolInfos()),
		logger:     logger,
	}
	s.registerMetaTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
