package model

import "github.com/forgetful-ai/forgetful/internal/apperr"

// Validate enforces field-length, list-size, and non-empty-entry limits.
// It does not touch storage; callers run it before a create/update reaches
// a repository.
func (m *Memory) Validate() error {
	if m.Title == "" {
		return apperr.Validationf("title is required")
	}
	if len(m.Title) > MemoryTitleMaxLen {
		return apperr.Validationf("title exceeds %d characters", MemoryTitleMaxLen)
	}
	if m.Content == "" {
		return apperr.Validationf("content is required")
	}
	if len(m.Content) > MemoryContentMaxLen {
		return apperr.Validationf("content exceeds %d characters", MemoryContentMaxLen)
	}
	if len(m.Context) > MemoryContextMaxLen {
		return apperr.Validationf("context exceeds %d characters", MemoryContextMaxLen)
	}
	if len(m.Keywords) > MemoryKeywordsMax {
		return apperr.Validationf("keywords exceeds %d items", MemoryKeywordsMax)
	}
	for _, kw := range m.Keywords {
		if kw == "" {
			return apperr.Validationf("keywords cannot contain an empty string")
		}
	}
	if len(m.Tags) > MemoryTagsMax {
		return apperr.Validationf("tags exceeds %d items", MemoryTagsMax)
	}
	for _, tag := range m.Tags {
		if tag == "" {
			return apperr.Validationf("tags cannot contain an empty string")
		}
	}
	if m.Importance < MemoryImportanceMin || m.Importance > MemoryImportanceMax {
		return apperr.Validationf("importance must be between %d and %d", MemoryImportanceMin, MemoryImportanceMax)
	}
	return nil
}

// FromCreate builds a Memory from a create payload, applying the default
// importance when the caller omits it.
func FromCreate(in MemoryCreate) *Memory {
	importance := in.Importance
	if importance == 0 {
		importance = DefaultImportance
	}
	return &Memory{
		Title:           in.Title,
		Content:         in.Content,
		Context:         in.Context,
		Keywords:        in.Keywords,
		Tags:            in.Tags,
		Importance:      importance,
		ProjectIDs:      in.ProjectIDs,
		CodeArtifactIDs: in.CodeArtifactIDs,
		DocumentIDs:     in.DocumentIDs,
		EntityIDs:       in.EntityIDs,
	}
}

// ApplyUpdate mutates m in place per u's semantics (nil/unset = leave
// unchanged, present = replace).
func (m *Memory) ApplyUpdate(u MemoryUpdate) {
	if u.Title != nil {
		m.Title = *u.Title
	}
	if u.Content != nil {
		m.Content = *u.Content
	}
	if u.Context != nil {
		m.Context = *u.Context
	}
	if u.KeywordsSet {
		m.Keywords = u.Keywords
	}
	if u.TagsSet {
		m.Tags = u.Tags
	}
	if u.Importance != nil {
		m.Importance = *u.Importance
	}
	if u.ProjectIDsSet {
		m.ProjectIDs = u.ProjectIDs
	}
	if u.CodeArtifactIDsSet {
		m.CodeArtifactIDs = u.CodeArtifactIDs
	}
	if u.DocumentIDsSet {
		m.DocumentIDs = u.DocumentIDs
	}
	if u.EntityIDsSet {
		m.EntityIDs = u.EntityIDs
	}
}
