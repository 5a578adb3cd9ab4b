// Package embedded implements storage.Repository on top of chromem-go, an
// in-process embeddable vector database.
package embedded

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/embeddings"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

// Config configures the embedded store.
type Config struct {
	// Path is the directory for chromem-go's persistent storage.
	// Default: "~/.config/forgetful/vectorstore"
	Path string

	// Compress enables gzip compression for persisted data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/forgetful/vectorstore"
	}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) (string, error) {
	if path == "~" || len(path) < 2 || path[:2] != "~/" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

// memoryRecord pairs a Memory row with the vector it was last embedded
// with, so SemanticSearch/FindSimilarMemories can compute cosine
// similarity in application code.
type memoryRecord struct {
	memory    model.Memory
	embedding []float32
}

// userStore holds one user's rows. All fields are guarded by Store.mu.
type userStore struct {
	memories      map[int64]*memoryRecord
	links         map[int64]map[int64]bool // source -> target -> true, source < target
	projects      map[int64]*model.Project
	documents     map[int64]*model.Document
	codeArtifacts map[int64]*model.CodeArtifact
	entities      map[int64]*model.Entity
	relationships map[int64]*model.EntityRelationship
	seq           map[string]int64 // monotonic per-type id sequence
}

func newUserStore() *userStore {
	return &userStore{
		memories:      make(map[int64]*memoryRecord),
		links:         make(map[int64]map[int64]bool),
		projects:      make(map[int64]*model.Project),
		documents:     make(map[int64]*model.Document),
		codeArtifacts: make(map[int64]*model.CodeArtifact),
		entities:      make(map[int64]*model.Entity),
		relationships: make(map[int64]*model.EntityRelationship),
		seq:           make(map[string]int64),
	}
}

func (u *userStore) nextID(kind string) int64 {
	u.seq[kind]++
	return u.seq[kind]
}

// Store implements storage.Repository using chromem-go for durable
// per-user memory persistence and in-process maps for the supporting
// entity tables (Project/Document/CodeArtifact/Entity/EntityRelationship),
// which have no semantic-search requirement of their own.
type Store struct {
	mu       sync.RWMutex
	db       *chromem.DB
	embedder embeddings.Adapter
	logger   *zap.Logger
	config   Config

	users map[uuid.UUID]*userStore
}

// New constructs an embedded Store backed by a chromem-go persistent
// database rooted at config.Path.
func New(config Config, embedder embeddings.Adapter, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", storage.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	expanded, err := expandPath(config.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("creating vectorstore directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(expanded, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	return &Store{
		db:       db,
		embedder: embedder,
		logger:   logger,
		config:   config,
		users:    make(map[uuid.UUID]*userStore),
	}, nil
}

func (s *Store) userLocked(userID uuid.UUID) *userStore {
	u, ok := s.users[userID]
	if !ok {
		u = newUserStore()
		s.users[userID] = u
	}
	return u
}

// memoryCollectionName returns the per-user chromem-go collection name
// memories are persisted under. Hyphens are stripped since chromem-go
// collection names are restricted to [a-z0-9_].
func memoryCollectionName(userID uuid.UUID) string {
	return "memories_" + strings.ReplaceAll(userID.String(), "-", "_")
}

func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *Store) memoryCollection(userID uuid.UUID) (*chromem.Collection, error) {
	name := memoryCollectionName(userID)
	col, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return col, nil
}

// persistMemory writes the memory's embedding text through chromem-go so
// it survives process restarts; the in-process map remains the read path.
func (s *Store) persistMemory(ctx context.Context, userID uuid.UUID, rec *memoryRecord) error {
	col, err := s.memoryCollection(userID)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        strconv.FormatInt(rec.memory.ID, 10),
		Content:   rec.memory.EmbeddingText(),
		Embedding: rec.embedding,
		Metadata: map[string]string{
			"is_obsolete": strconv.FormatBool(rec.memory.IsObsolete),
		},
	}
	return col.AddDocuments(ctx, []chromem.Document{doc}, 1)
}

// Close does nothing and returns nil; the chromem-go database holds no
// handle that needs releasing.
func (s *Store) Close() error {
	return nil
}

// --- Memory ---

// CreateMemory embeds the canonical text, allocates an ID, and persists
// the row plus its vector.
func (s *Store) CreateMemory(ctx context.Context, userID uuid.UUID, in model.MemoryCreate) (*model.Memory, error) {
	m := model.FromCreate(in)
	m.UserID = userID

	if err := m.Validate(); err != nil {
		return nil, err
	}

	vector, err := s.embedder.EmbedQuery(ctx, m.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("embedding memory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userLocked(userID)
	m.ID = u.nextID("memory")
	ts := now()
	m.CreatedAt, m.UpdatedAt = ts, ts
	m.Embedding = vector

	rec := &memoryRecord{memory: *m, embedding: vector}
	u.memories[m.ID] = rec

	if err := s.persistMemory(ctx, userID, rec); err != nil {
		s.logger.Warn("persisting memory to chromem-go failed, row kept in-memory only",
			zap.Int64("memory_id", m.ID), zap.Error(err))
	}

	out := rec.memory
	return &out, nil
}

// GetMemoryByID returns a memory regardless of obsolete status.
func (s *Store) GetMemoryByID(ctx context.Context, userID uuid.UUID, id int64) (*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rec, ok := u.memories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := rec.memory
	out.LinkedMemoryIDs = u.linkedIDs(id)
	return &out, nil
}

// ListMemories implements GET /api/v1/memories' filter/sort/paginate
// contract. Filtering and sorting happen in application code over the
// in-memory map: snapshot, filter, sort, slice.
func (s *Store) ListMemories(ctx context.Context, userID uuid.UUID, opts storage.ListMemoriesOptions) ([]model.Memory, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return []model.Memory{}, 0, nil
	}

	tagSet := make(map[string]bool, len(opts.Tags))
	for _, t := range opts.Tags {
		tagSet[t] = true
	}

	filtered := make([]model.Memory, 0, len(u.memories))
	for _, rec := range u.memories {
		m := rec.memory
		if !opts.IncludeObsolete && m.IsObsolete {
			continue
		}
		if opts.ImportanceMin != nil && m.Importance < *opts.ImportanceMin {
			continue
		}
		if opts.ProjectID != nil && !containsID(m.ProjectIDs, *opts.ProjectID) {
			continue
		}
		if len(tagSet) > 0 && !anyTagMatches(m.Tags, tagSet) {
			continue
		}
		filtered = append(filtered, m)
	}

	sortMemories(filtered, opts.SortBy, opts.SortOrder)

	total := len(filtered)
	if opts.Offset >= total {
		return []model.Memory{}, total, nil
	}
	end := opts.Offset + opts.Limit
	if opts.Limit <= 0 || end > total {
		end = total
	}
	return filtered[opts.Offset:end], total, nil
}

func containsID(ids []int64, target int64) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func anyTagMatches(tags []string, set map[string]bool) bool {
	for _, t := range tags {
		if set[t] {
			return true
		}
	}
	return false
}

// sortMemories orders memories by sortBy, ascending unless sortOrder is
// storage.SortDesc.
func sortMemories(memories []model.Memory, sortBy storage.SortField, sortOrder storage.SortOrder) {
	asc := func(i, j int) bool {
		switch sortBy {
		case storage.SortByImportance:
			return memories[i].Importance < memories[j].Importance
		case storage.SortByUpdatedAt:
			return memories[i].UpdatedAt.Before(memories[j].UpdatedAt)
		default:
			return memories[i].CreatedAt.Before(memories[j].CreatedAt)
		}
	}
	if sortOrder == storage.SortDesc {
		sort.SliceStable(memories, func(i, j int) bool { return asc(j, i) })
		return
	}
	sort.SliceStable(memories, asc)
}

// UpdateMemory applies patch atomically, regenerating the embedding when
// any search-relevant field changed.
func (s *Store) UpdateMemory(ctx context.Context, userID uuid.UUID, id int64, patch model.MemoryUpdate) (*model.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rec, ok := u.memories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	rec.memory.ApplyUpdate(patch)
	rec.memory.UpdatedAt = now()

	if err := rec.memory.Validate(); err != nil {
		return nil, err
	}

	if patch.SearchFieldsChanged() {
		vector, err := s.embedder.EmbedQuery(ctx, rec.memory.EmbeddingText())
		if err != nil {
			return nil, fmt.Errorf("re-embedding memory: %w", err)
		}
		rec.embedding = vector
		rec.memory.Embedding = vector
	}

	if err := s.persistMemory(ctx, userID, rec); err != nil {
		s.logger.Warn("persisting updated memory to chromem-go failed",
			zap.Int64("memory_id", id), zap.Error(err))
	}

	out := rec.memory
	return &out, nil
}

// MarkObsolete sets the obsolete flags atomically. It validates
// supersededBy ownership when supplied.
func (s *Store) MarkObsolete(ctx context.Context, userID uuid.UUID, id int64, reason string, supersededBy *int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return false, storage.ErrNotFound
	}
	rec, ok := u.memories[id]
	if !ok {
		return false, storage.ErrNotFound
	}

	if supersededBy != nil {
		if *supersededBy == id {
			return false, apperr.Validationf("superseded_by cannot equal the memory's own id %d", id)
		}
		if _, ok := u.memories[*supersededBy]; !ok {
			return false, fmt.Errorf("%w: superseded_by memory %d", storage.ErrNotFound, *supersededBy)
		}
	}

	ts := now()
	rec.memory.IsObsolete = true
	rec.memory.ObsoleteReason = reason
	rec.memory.SupersededBy = supersededBy
	rec.memory.ObsoletedAt = &ts
	rec.memory.UpdatedAt = ts

	return true, nil
}

// candidateMemories returns the user's non-obsolete memories, filtered by
// opts, in insertion order (ranking happens in the caller).
func (u *userStore) candidateMemories(opts storage.SearchOptions) []*memoryRecord {
	exclude := make(map[int64]bool, len(opts.ExcludeIDs))
	for _, id := range opts.ExcludeIDs {
		exclude[id] = true
	}

	var out []*memoryRecord
	for _, rec := range u.memories {
		if rec.memory.IsObsolete || exclude[rec.memory.ID] {
			continue
		}
		if opts.ImportanceThreshold != nil && rec.memory.Importance < *opts.ImportanceThreshold {
			continue
		}
		if len(opts.ProjectIDs) > 0 && !intersects(rec.memory.ProjectIDs, opts.ProjectIDs) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func intersects(a, b []int64) bool {
	set := make(map[int64]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	for _, v := range a {
		if set[v] {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}

type scoredMemory struct {
	memory   model.Memory
	distance float32
}

// rankByQuery embeds query, scores every candidate by cosine similarity
// against its stored embedding, and returns the top k in tie-break
// order: fetch filtered rows, compute cosine in application code, sort,
// take top k.
func (s *Store) rankByQuery(ctx context.Context, candidates []*memoryRecord, queryText string, k int) ([]model.Memory, error) {
	if len(candidates) == 0 {
		return []model.Memory{}, nil
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored := make([]scoredMemory, len(candidates))
	for i, rec := range candidates {
		scored[i] = scoredMemory{memory: rec.memory, distance: cosineSimilarity(queryVector, rec.embedding)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].distance != scored[j].distance {
			return scored[i].distance > scored[j].distance
		}
		return storage.CompareMemories(scored[i].memory, scored[j].memory)
	})

	if k > len(scored) {
		k = len(scored)
	}
	out := make([]model.Memory, k)
	for i := 0; i < k; i++ {
		out[i] = scored[i].memory
	}
	return out, nil
}

// SemanticSearch ranks a user's non-obsolete memories by cosine
// similarity against the embedded query.
func (s *Store) SemanticSearch(ctx context.Context, userID uuid.UUID, query string, k int, opts storage.SearchOptions) ([]model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return []model.Memory{}, nil
	}
	return s.rankByQuery(ctx, u.candidateMemories(opts), query, k)
}

// FindSimilarMemories finds nearest neighbors of memoryID's own embedding
// text, excluding itself and obsolete rows.
func (s *Store) FindSimilarMemories(ctx context.Context, userID uuid.UUID, memoryID int64, maxLinks int) ([]model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	origin, ok := u.memories[memoryID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	candidates := u.candidateMemories(storage.SearchOptions{ExcludeIDs: []int64{memoryID}})
	return s.rankByQuery(ctx, candidates, origin.memory.EmbeddingText(), maxLinks)
}

// GetLinkedMemories returns one-hop neighbors via the link table.
func (s *Store) GetLinkedMemories(ctx context.Context, userID uuid.UUID, memoryID int64, projectIDs []int64, maxLinks int) ([]model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if _, ok := u.memories[memoryID]; !ok {
		return nil, storage.ErrNotFound
	}

	neighborIDs := u.linkedIDs(memoryID)

	var out []model.Memory
	for _, id := range neighborIDs {
		rec, ok := u.memories[id]
		if !ok || rec.memory.IsObsolete {
			continue
		}
		if len(projectIDs) > 0 && !intersects(rec.memory.ProjectIDs, projectIDs) {
			continue
		}
		out = append(out, rec.memory)
	}

	storage.SortMemoriesByImportance(out)
	if maxLinks >= 0 && maxLinks < len(out) {
		out = out[:maxLinks]
	}
	return out, nil
}

// linkedIDs returns every memory ID linked to id, from either side of the
// canonical source<target storage.
func (u *userStore) linkedIDs(id int64) []int64 {
	var out []int64
	if targets, ok := u.links[id]; ok {
		for t := range targets {
			out = append(out, t)
		}
	}
	for source, targets := range u.links {
		if targets[id] {
			out = append(out, source)
		}
	}
	return out
}

// CreateLink validates both memories exist and canonicalizes the pair so
// the stored source < target.
func (s *Store) CreateLink(ctx context.Context, userID uuid.UUID, sourceID, targetID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLinkLocked(userID, sourceID, targetID)
}

func (s *Store) createLinkLocked(userID uuid.UUID, sourceID, targetID int64) error {
	if sourceID == targetID {
		return apperr.Validationf("source_id and target_id must differ, got %d", sourceID)
	}
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := u.memories[sourceID]; !ok {
		return fmt.Errorf("%w: source memory %d", storage.ErrNotFound, sourceID)
	}
	if _, ok := u.memories[targetID]; !ok {
		return fmt.Errorf("%w: target memory %d", storage.ErrNotFound, targetID)
	}

	a, b := sourceID, targetID
	if a > b {
		a, b = b, a
	}
	if u.links[a] == nil {
		u.links[a] = make(map[int64]bool)
	}
	if u.links[a][b] {
		return storage.ErrAlreadyLinked
	}
	u.links[a][b] = true
	return nil
}

// CreateLinksBatch iterates CreateLink, skipping self-links, duplicates,
// and missing targets, returning the IDs that resulted in a newly created
// link.
func (s *Store) CreateLinksBatch(ctx context.Context, userID uuid.UUID, sourceID int64, targetIDs []int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var created []int64
	for _, targetID := range targetIDs {
		if targetID == sourceID {
			continue
		}
		if err := s.createLinkLocked(userID, sourceID, targetID); err != nil {
			continue
		}
		created = append(created, targetID)
	}
	return created, nil
}

// --- Project ---

func (s *Store) CreateProject(ctx context.Context, userID uuid.UUID, p *model.Project) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userLocked(userID)
	p.ID = u.nextID("project")
	p.UserID = userID
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	u.projects[p.ID] = p
	out := *p
	return &out, nil
}

func (s *Store) GetProjectByID(ctx context.Context, userID uuid.UUID, id int64) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	p, ok := u.projects[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *Store) ListProjects(ctx context.Context, userID uuid.UUID) ([]model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return []model.Project{}, nil
	}
	out := make([]model.Project, 0, len(u.projects))
	for _, p := range u.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteProject(ctx context.Context, userID uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := u.projects[id]; !ok {
		return storage.ErrNotFound
	}
	delete(u.projects, id)
	return nil
}

// --- Document ---

func (s *Store) CreateDocument(ctx context.Context, userID uuid.UUID, d *model.Document) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userLocked(userID)
	d.ID = u.nextID("document")
	d.UserID = userID
	ts := now()
	d.CreatedAt, d.UpdatedAt = ts, ts
	u.documents[d.ID] = d
	out := *d
	return &out, nil
}

func (s *Store) GetDocumentByID(ctx context.Context, userID uuid.UUID, id int64) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	d, ok := u.documents[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *d
	return &out, nil
}

func (s *Store) ListDocuments(ctx context.Context, userID uuid.UUID, projectID *int64) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return []model.Document{}, nil
	}
	out := make([]model.Document, 0, len(u.documents))
	for _, d := range u.documents {
		if projectID != nil && (d.ProjectID == nil || *d.ProjectID != *projectID) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, userID uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := u.documents[id]; !ok {
		return storage.ErrNotFound
	}
	delete(u.documents, id)
	return nil
}

// --- CodeArtifact ---

func (s *Store) CreateCodeArtifact(ctx context.Context, userID uuid.UUID, a *model.CodeArtifact) (*model.CodeArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userLocked(userID)
	a.ID = u.nextID("code_artifact")
	a.UserID = userID
	ts := now()
	a.CreatedAt, a.UpdatedAt = ts, ts
	u.codeArtifacts[a.ID] = a
	out := *a
	return &out, nil
}

func (s *Store) GetCodeArtifactByID(ctx context.Context, userID uuid.UUID, id int64) (*model.CodeArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	a, ok := u.codeArtifacts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (s *Store) ListCodeArtifacts(ctx context.Context, userID uuid.UUID, projectID *int64) ([]model.CodeArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return []model.CodeArtifact{}, nil
	}
	out := make([]model.CodeArtifact, 0, len(u.codeArtifacts))
	for _, a := range u.codeArtifacts {
		if projectID != nil && (a.ProjectID == nil || *a.ProjectID != *projectID) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteCodeArtifact(ctx context.Context, userID uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := u.codeArtifacts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(u.codeArtifacts, id)
	return nil
}

// --- Entity ---

func (s *Store) CreateEntity(ctx context.Context, userID uuid.UUID, e *model.Entity) (*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userLocked(userID)
	e.ID = u.nextID("entity")
	e.UserID = userID
	ts := now()
	e.CreatedAt, e.UpdatedAt = ts, ts
	u.entities[e.ID] = e
	out := *e
	return &out, nil
}

func (s *Store) GetEntityByID(ctx context.Context, userID uuid.UUID, id int64) (*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	e, ok := u.entities[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *e
	return &out, nil
}

func (s *Store) ListEntities(ctx context.Context, userID uuid.UUID, entityType *model.EntityType) ([]model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return []model.Entity{}, nil
	}
	out := make([]model.Entity, 0, len(u.entities))
	for _, e := range u.entities {
		if entityType != nil && e.EntityType != *entityType {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteEntity(ctx context.Context, userID uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := u.entities[id]; !ok {
		return storage.ErrNotFound
	}
	delete(u.entities, id)
	return nil
}

// --- EntityRelationship ---

func (s *Store) CreateRelationship(ctx context.Context, userID uuid.UUID, r *model.EntityRelationship) (*model.EntityRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userLocked(userID)
	if _, ok := u.entities[r.SourceEntityID]; !ok {
		return nil, fmt.Errorf("%w: source entity %d", storage.ErrNotFound, r.SourceEntityID)
	}
	if _, ok := u.entities[r.TargetEntityID]; !ok {
		return nil, fmt.Errorf("%w: target entity %d", storage.ErrNotFound, r.TargetEntityID)
	}
	r.ID = u.nextID("relationship")
	r.UserID = userID
	r.CreatedAt = now()
	u.relationships[r.ID] = r
	out := *r
	return &out, nil
}

func (s *Store) ListRelationshipsForEntity(ctx context.Context, userID uuid.UUID, entityID int64) ([]model.EntityRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return []model.EntityRelationship{}, nil
	}
	out := make([]model.EntityRelationship, 0)
	for _, r := range u.relationships {
		if r.SourceEntityID == entityID || r.TargetEntityID == entityID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteRelationship(ctx context.Context, userID uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if _, ok := u.relationships[id]; !ok {
		return storage.ErrNotFound
	}
	delete(u.relationships, id)
	return nil
}

// --- Subgraph primitives ---

func (s *Store) NodeExists(ctx context.Context, userID uuid.UUID, ref storage.NodeRef) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	switch ref.Type {
	case storage.NodeTypeMemory:
		_, ok := u.memories[ref.ID]
		return ok, nil
	case storage.NodeTypeProject:
		_, ok := u.projects[ref.ID]
		return ok, nil
	case storage.NodeTypeDocument:
		_, ok := u.documents[ref.ID]
		return ok, nil
	case storage.NodeTypeCodeArtifact:
		_, ok := u.codeArtifacts[ref.ID]
		return ok, nil
	case storage.NodeTypeEntity:
		_, ok := u.entities[ref.ID]
		return ok, nil
	default:
		return false, nil
	}
}

func allowedType(allowed []storage.NodeType, t storage.NodeType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

// Neighbors enumerates the outgoing edges of ref restricted to allowed
// target types.
func (s *Store) Neighbors(ctx context.Context, userID uuid.UUID, ref storage.NodeRef, allowed []storage.NodeType) ([]storage.NodeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}

	var out []storage.NodeRef
	switch ref.Type {
	case storage.NodeTypeMemory:
		mem, ok := u.memories[ref.ID]
		if !ok {
			return nil, nil
		}
		if allowedType(allowed, storage.NodeTypeMemory) {
			for _, id := range u.linkedIDs(ref.ID) {
				out = append(out, storage.NodeRef{Type: storage.NodeTypeMemory, ID: id})
			}
		}
		if allowedType(allowed, storage.NodeTypeProject) {
			for _, id := range mem.memory.ProjectIDs {
				out = append(out, storage.NodeRef{Type: storage.NodeTypeProject, ID: id})
			}
		}
		if allowedType(allowed, storage.NodeTypeDocument) {
			for _, id := range mem.memory.DocumentIDs {
				out = append(out, storage.NodeRef{Type: storage.NodeTypeDocument, ID: id})
			}
		}
		if allowedType(allowed, storage.NodeTypeCodeArtifact) {
			for _, id := range mem.memory.CodeArtifactIDs {
				out = append(out, storage.NodeRef{Type: storage.NodeTypeCodeArtifact, ID: id})
			}
		}
		if allowedType(allowed, storage.NodeTypeEntity) {
			for _, id := range mem.memory.EntityIDs {
				out = append(out, storage.NodeRef{Type: storage.NodeTypeEntity, ID: id})
			}
		}
	case storage.NodeTypeProject:
		if allowedType(allowed, storage.NodeTypeMemory) {
			for _, mem := range u.memories {
				if containsInt64(mem.memory.ProjectIDs, ref.ID) {
					out = append(out, storage.NodeRef{Type: storage.NodeTypeMemory, ID: mem.memory.ID})
				}
			}
		}
		if allowedType(allowed, storage.NodeTypeDocument) {
			for _, d := range u.documents {
				if d.ProjectID != nil && *d.ProjectID == ref.ID {
					out = append(out, storage.NodeRef{Type: storage.NodeTypeDocument, ID: d.ID})
				}
			}
		}
		if allowedType(allowed, storage.NodeTypeCodeArtifact) {
			for _, a := range u.codeArtifacts {
				if a.ProjectID != nil && *a.ProjectID == ref.ID {
					out = append(out, storage.NodeRef{Type: storage.NodeTypeCodeArtifact, ID: a.ID})
				}
			}
		}
	case storage.NodeTypeDocument:
		d, ok := u.documents[ref.ID]
		if !ok {
			return nil, nil
		}
		if allowedType(allowed, storage.NodeTypeProject) && d.ProjectID != nil {
			out = append(out, storage.NodeRef{Type: storage.NodeTypeProject, ID: *d.ProjectID})
		}
		if allowedType(allowed, storage.NodeTypeMemory) {
			for _, mem := range u.memories {
				if containsInt64(mem.memory.DocumentIDs, ref.ID) {
					out = append(out, storage.NodeRef{Type: storage.NodeTypeMemory, ID: mem.memory.ID})
				}
			}
		}
	case storage.NodeTypeCodeArtifact:
		a, ok := u.codeArtifacts[ref.ID]
		if !ok {
			return nil, nil
		}
		if allowedType(allowed, storage.NodeTypeProject) && a.ProjectID != nil {
			out = append(out, storage.NodeRef{Type: storage.NodeTypeProject, ID: *a.ProjectID})
		}
		if allowedType(allowed, storage.NodeTypeMemory) {
			for _, mem := range u.memories {
				if containsInt64(mem.memory.CodeArtifactIDs, ref.ID) {
					out = append(out, storage.NodeRef{Type: storage.NodeTypeMemory, ID: mem.memory.ID})
				}
			}
		}
	case storage.NodeTypeEntity:
		if _, ok := u.entities[ref.ID]; !ok {
			return nil, nil
		}
		if allowedType(allowed, storage.NodeTypeEntity) {
			for _, r := range u.relationships {
				if r.SourceEntityID == ref.ID {
					out = append(out, storage.NodeRef{Type: storage.NodeTypeEntity, ID: r.TargetEntityID})
				} else if r.TargetEntityID == ref.ID {
					out = append(out, storage.NodeRef{Type: storage.NodeTypeEntity, ID: r.SourceEntityID})
				}
			}
		}
		if allowedType(allowed, storage.NodeTypeMemory) {
			for _, mem := range u.memories {
				if containsInt64(mem.memory.EntityIDs, ref.ID) {
					out = append(out, storage.NodeRef{Type: storage.NodeTypeMemory, ID: mem.memory.ID})
				}
			}
		}
	}
	return out, nil
}

func containsInt64(haystack []int64, needle int64) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// EdgesAmong assembles every stored edge whose both endpoints lie in
// refs, canonicalizing undirected edge IDs.
func (s *Store) EdgesAmong(ctx context.Context, userID uuid.UUID, refs []storage.NodeRef, allowed []storage.NodeType) ([]storage.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}

	present := make(map[storage.NodeRef]bool, len(refs))
	for _, r := range refs {
		present[r] = true
	}

	seen := make(map[string]bool)
	var edges []storage.Edge

	addEdge := func(id string, edgeType string, src, dst storage.NodeRef) {
		if seen[id] {
			return
		}
		seen[id] = true
		edges = append(edges, storage.Edge{ID: id, Source: src, Target: dst, EdgeType: edgeType})
	}

	if allowedType(allowed, storage.NodeTypeMemory) {
		for source, targets := range u.links {
			for target := range targets {
				a := storage.NodeRef{Type: storage.NodeTypeMemory, ID: source}
				b := storage.NodeRef{Type: storage.NodeTypeMemory, ID: target}
				if present[a] && present[b] {
					addEdge(canonicalEdgeID(a, b), "memory_link", a, b)
				}
			}
		}
	}

	for _, mem := range u.memories {
		src := storage.NodeRef{Type: storage.NodeTypeMemory, ID: mem.memory.ID}
		if !present[src] {
			continue
		}
		for _, pid := range mem.memory.ProjectIDs {
			dst := storage.NodeRef{Type: storage.NodeTypeProject, ID: pid}
			if present[dst] {
				addEdge(canonicalEdgeID(src, dst), "memory_project", src, dst)
			}
		}
		for _, did := range mem.memory.DocumentIDs {
			dst := storage.NodeRef{Type: storage.NodeTypeDocument, ID: did}
			if present[dst] {
				addEdge(canonicalEdgeID(src, dst), "memory_document", src, dst)
			}
		}
		for _, cid := range mem.memory.CodeArtifactIDs {
			dst := storage.NodeRef{Type: storage.NodeTypeCodeArtifact, ID: cid}
			if present[dst] {
				addEdge(canonicalEdgeID(src, dst), "memory_code_artifact", src, dst)
			}
		}
		for _, eid := range mem.memory.EntityIDs {
			dst := storage.NodeRef{Type: storage.NodeTypeEntity, ID: eid}
			if present[dst] {
				addEdge(canonicalEdgeID(src, dst), "memory_entity", src, dst)
			}
		}
	}

	if allowedType(allowed, storage.NodeTypeEntity) {
		for _, r := range u.relationships {
			a := storage.NodeRef{Type: storage.NodeTypeEntity, ID: r.SourceEntityID}
			b := storage.NodeRef{Type: storage.NodeTypeEntity, ID: r.TargetEntityID}
			if present[a] && present[b] {
				addEdge(canonicalEdgeID(a, b), "entity_relationship", a, b)
			}
		}
	}

	for _, d := range u.documents {
		if d.ProjectID == nil {
			continue
		}
		src := storage.NodeRef{Type: storage.NodeTypeDocument, ID: d.ID}
		dst := storage.NodeRef{Type: storage.NodeTypeProject, ID: *d.ProjectID}
		if present[src] && present[dst] {
			addEdge(canonicalEdgeID(src, dst), "document_project", src, dst)
		}
	}
	for _, a := range u.codeArtifacts {
		if a.ProjectID == nil {
			continue
		}
		src := storage.NodeRef{Type: storage.NodeTypeCodeArtifact, ID: a.ID}
		dst := storage.NodeRef{Type: storage.NodeTypeProject, ID: *a.ProjectID}
		if present[src] && present[dst] {
			addEdge(canonicalEdgeID(src, dst), "code_artifact_project", src, dst)
		}
	}

	return edges, nil
}

// canonicalEdgeID produces a stable, order-independent edge identifier so
// bidirectional rows (e.g. a memory link stored once but traversable from
// either endpoint) dedupe to one edge.
func canonicalEdgeID(a, b storage.NodeRef) string {
	if a.Type > b.Type || (a.Type == b.Type && a.ID > b.ID) {
		a, b = b, a
	}
	return fmt.Sprintf("%s_%d_%s_%d", a.Type, a.ID, b.Type, b.ID)
}

// --- Re-embed primitives ---

func (s *Store) CountAllMemories(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, nil
	}
	return len(u.memories), nil
}

// ResetEmbeddingStorage clears every memory's stored vector, forcing the
// re-embed orchestrator's subsequent bulk write to repopulate it.
func (s *Store) ResetEmbeddingStorage(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	for _, rec := range u.memories {
		rec.embedding = nil
		rec.memory.Embedding = nil
	}
	return nil
}

// GetMemoriesForReembedding returns a stable, paginated slice of all
// memories (including obsolete ones, which still need a valid vector).
func (s *Store) GetMemoriesForReembedding(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return []model.Memory{}, nil
	}
	all := make([]model.Memory, 0, len(u.memories))
	for _, rec := range u.memories {
		all = append(all, rec.memory)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return []model.Memory{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// BulkUpdateEmbeddings writes the re-embed orchestrator's batch of freshly
// computed vectors back onto their rows.
func (s *Store) BulkUpdateEmbeddings(ctx context.Context, userID uuid.UUID, updates []storage.EmbeddingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	for _, upd := range updates {
		rec, ok := u.memories[upd.MemoryID]
		if !ok {
			continue
		}
		rec.embedding = upd.Embedding
		rec.memory.Embedding = upd.Embedding
		if err := s.persistMemory(ctx, userID, rec); err != nil {
			s.logger.Warn("persisting bulk-updated embedding to chromem-go failed",
				zap.Int64("memory_id", upd.MemoryID), zap.Error(err))
		}
	}
	return nil
}

var now = time.Now
