// Package server implements storage.Repository on top of Qdrant: memory
// rows go to one collection shared across users, with user_id carried as
// a payload field and used in a server-side filter; the other row types
// are kept in in-process maps.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/embeddings"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

// Config configures the Qdrant-backed server store.
type Config struct {
	Host           string
	Port           int
	CollectionName string // default: "memories"
	VectorSize     uint64
	UseTLS         bool
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.CollectionName == "" {
		c.CollectionName = "memories"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", storage.ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", storage.ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", storage.ErrInvalidConfig)
	}
	return nil
}

// memoryRecord mirrors storage/embedded's cache entry: the authoritative
// row plus the vector it was last embedded with. Qdrant is the durable,
// searchable substrate; this cache exists because the confirmed Qdrant
// client surface (Upsert/Query/Delete, all payload-filter driven) has no
// convenient single-point-by-logical-id accessor, so field-level CRUD
// reads from the cache while writes go through both.
type memoryRecord struct {
	memory    model.Memory
	embedding []float32
}

// userStore holds one user's non-vector rows, mirroring storage/embedded's
// userStore: Project/Document/CodeArtifact/Entity/EntityRelationship have
// no semantic-search requirement so they never touch Qdrant at all, on
// either backend.
type userStore struct {
	memories      map[int64]*memoryRecord
	links         map[int64]map[int64]bool // source -> target -> true, source < target
	projects      map[int64]*model.Project
	documents     map[int64]*model.Document
	codeArtifacts map[int64]*model.CodeArtifact
	entities      map[int64]*model.Entity
	relationships map[int64]*model.EntityRelationship
	seq           map[string]int64
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

// Store implements storage.Repository. Memory rows are embedded and
// upserted into one shared Qdrant collection with user_id as a payload
// field; the other five row types are plain in-process maps, same scope
// decision as storage/embedded.
type Store struct {
	mu       sync.RWMutex
	client   *qdrant.Client
	embedder embeddings.Adapter
	logger   *zap.Logger
	config   Config

	users map[uuid.UUID]*userStore
}

// New connects to Qdrant and ensures the shared memories collection
// exists before returning, so callers never race collection creation.
func New(config Config, embedder embeddings.Adapter, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", storage.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		fmt.Fprintln(os.Stderr, "WARNING: Qdrant gRPC using plaintext (TLS disabled). Insecure for production.")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	s := &Store{
		client:   client,
		embedder: embedder,
		logger:   logger,
		config:   config,
		users:    make(map[uuid.UUID]*userStore),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ensuring memories collection: %w", err)
	}

	return s, nil
}

// ensureCollection checks for the collection and creates it if absent.
// There is no direct "exists" RPC, so existence is inferred from
// GetCollectionInfo's NotFound status.
func (s *Store) ensureCollection(ctx context.Context) error {
	_, err := s.client.GetCollectionInfo(ctx, s.config.CollectionName)
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != grpccodes.NotFound {
		return err
	}

	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Close closes the gRPC connection to Qdrant.
func (s *Store) Close() error {
	return s.client.Close()
}

// CreateSnapshot and ListSnapshots expose the underlying Qdrant client's
// native snapshot API so internal/backup can satisfy its
// QdrantSnapshotter interface without importing storage internals.

func (s *Store) CreateSnapshot(ctx context.Context, collectionName string) (*qdrant.SnapshotDescription, error) {
	return s.client.CreateSnapshot(ctx, collectionName)
}

func (s *Store) ListSnapshots(ctx context.Context, collectionName string) ([]*qdrant.SnapshotDescription, error) {
	return s.client.ListSnapshots(ctx, collectionName)
}

// CollectionName returns the collection this store writes to, for
// wiring a backup.ServerBackend.
func (s *Store) CollectionName() string {
	return s.config.CollectionName
}

func (s *Store) userLocked(userID uuid.UUID) *userStore {
	u, ok := s.users[userID]
	if !ok {
		u = newUserStore()
		s.users[userID] = u
	}
	return u
}

// pointID derives a deterministic Qdrant point UUID from (userID,
// memoryID) so repeated upserts of the same logical row overwrite in
// place, without requiring the logical ID itself to be a UUID.
func pointID(userID uuid.UUID, memoryID int64) string {
	return uuid.NewSHA1(userID, []byte(strconv.FormatInt(memoryID, 10))).String()
}

func memoryPayload(userID uuid.UUID, m *model.Memory) (map[string]*qdrant.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return map[string]*qdrant.Value{
		"user_id":     {Kind: &qdrant.Value_StringValue{StringValue: userID.String()}},
		"memory_id":   {Kind: &qdrant.Value_IntegerValue{IntegerValue: m.ID}},
		"is_obsolete": {Kind: &qdrant.Value_BoolValue{BoolValue: m.IsObsolete}},
		"data":        {Kind: &qdrant.Value_StringValue{StringValue: string(data)}},
	}, nil
}

func (s *Store) upsertMemory(ctx context.Context, userID uuid.UUID, rec *memoryRecord) error {
	payload, err := memoryPayload(userID, &rec.memory)
	if err != nil {
		return err
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.CollectionName,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointID(userID, rec.memory.ID)),
			Vectors: qdrant.NewVectors(rec.embedding...),
			Payload: payload,
		}},
	})
	return err
}

// --- Memory ---

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

	if err := s.upsertMemory(ctx, userID, rec); err != nil {
		s.logger.Warn("upserting memory to qdrant failed, row kept in local cache only",
			zap.Int64("memory_id", m.ID), zap.Error(err))
	}

	out := rec.memory
	return &out, nil
}

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
// contract over the store's local cache, the same authoritative-row
// source GetMemoryByID and GetMemoriesForReembedding already read from;
// Qdrant itself is never queried here since none of these predicates
// need vector search.
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

	if err := s.upsertMemory(ctx, userID, rec); err != nil {
		s.logger.Warn("upserting updated memory to qdrant failed", zap.Int64("memory_id", id), zap.Error(err))
	}

	out := rec.memory
	return &out, nil
}

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

	if err := s.upsertMemory(ctx, userID, rec); err != nil {
		s.logger.Warn("upserting obsoleted memory to qdrant failed", zap.Int64("memory_id", id), zap.Error(err))
	}
	return true, nil
}

func userFilter(userID uuid.UUID) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   "user_id",
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: userID.String()}},
			},
		},
	}
}

// querySimilar embeds queryText and runs an approximate-HNSW search over
// the shared collection filtered to userID's rows. Obsolete/importance/
// project filtering happens in application code over the returned
// payloads, since Qdrant's Match condition only expresses equality, not
// the threshold/membership predicates a full search requires.
func (s *Store) querySimilar(ctx context.Context, userID uuid.UUID, queryText string, k int) ([]*qdrant.ScoredPoint, error) {
	vector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	filter := &qdrant.Filter{Must: []*qdrant.Condition{userFilter(userID)}}

	return s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         filter,
	})
}

func decodeMemoryPoint(p *qdrant.ScoredPoint) (model.Memory, bool) {
	v, ok := p.Payload["data"]
	if !ok {
		return model.Memory{}, false
	}
	var m model.Memory
	if err := json.Unmarshal([]byte(v.GetStringValue()), &m); err != nil {
		return model.Memory{}, false
	}
	return m, true
}

// SemanticSearch uses Qdrant's approximate HNSW index with a payload
// filter on user_id, then applies the filters the index can't express
// (obsolete status, importance threshold, project membership,
// exclusions) in application code.
func (s *Store) SemanticSearch(ctx context.Context, userID uuid.UUID, query string, k int, opts storage.SearchOptions) ([]model.Memory, error) {
	fanout := k * 4
	if fanout < k {
		fanout = k
	}
	points, err := s.querySimilar(ctx, userID, query, fanout)
	if err != nil {
		return nil, fmt.Errorf("querying qdrant: %w", err)
	}

	exclude := make(map[int64]bool, len(opts.ExcludeIDs))
	for _, id := range opts.ExcludeIDs {
		exclude[id] = true
	}

	var out []model.Memory
	for _, p := range points {
		m, ok := decodeMemoryPoint(p)
		if !ok || m.IsObsolete || exclude[m.ID] {
			continue
		}
		if opts.ImportanceThreshold != nil && m.Importance < *opts.ImportanceThreshold {
			continue
		}
		if len(opts.ProjectIDs) > 0 && !intersects(m.ProjectIDs, opts.ProjectIDs) {
			continue
		}
		out = append(out, m)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (s *Store) FindSimilarMemories(ctx context.Context, userID uuid.UUID, memoryID int64, maxLinks int) ([]model.Memory, error) {
	s.mu.RLock()
	u, ok := s.users[userID]
	if !ok {
		s.mu.RUnlock()
		return nil, storage.ErrNotFound
	}
	origin, ok := u.memories[memoryID]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}

	results, err := s.SemanticSearch(ctx, userID, origin.memory.EmbeddingText(), maxLinks+1, storage.SearchOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]model.Memory, 0, len(results))
	for _, m := range results {
		if m.ID == memoryID {
			continue
		}
		out = append(out, m)
		if len(out) == maxLinks {
			break
		}
	}
	return out, nil
}

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

	var out []model.Memory
	for _, id := range u.linkedIDs(memoryID) {
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
// target types. Identical logic to storage/embedded's Neighbors: the
// subgraph lives in the same in-process relational maps on both
// backends.
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
		if err := s.upsertMemory(ctx, userID, rec); err != nil {
			s.logger.Warn("upserting bulk-updated embedding to qdrant failed",
				zap.Int64("memory_id", upd.MemoryID), zap.Error(err))
		}
	}
	return nil
}

var now = time.Now

var _ storage.Repository = (*Store)(nil)
