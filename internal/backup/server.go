package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// QdrantSnapshotter is the slice of the Qdrant gRPC client this package
// needs. internal/storage/server.Store satisfies it directly.
type QdrantSnapshotter interface {
	CreateSnapshot(ctx context.Context, collectionName string) (*qdrant.SnapshotDescription, error)
	ListSnapshots(ctx context.Context, collectionName string) ([]*qdrant.SnapshotDescription, error)
}

// ServerBackend snapshots the server (Qdrant) backend's collection using
// Qdrant's native snapshot API.
type ServerBackend struct {
	Client     QdrantSnapshotter
	Collection string
	Logger     *zap.Logger
}

// NewServerBackend constructs a ServerBackend for the given collection.
func NewServerBackend(client QdrantSnapshotter, collection string, logger *zap.Logger) *ServerBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServerBackend{Client: client, Collection: collection, Logger: logger}
}

// Snapshot asks Qdrant to create a point-in-time snapshot of the
// collection and returns its name as the snapshot reference.
func (b *ServerBackend) Snapshot(ctx context.Context) (Snapshot, error) {
	desc, err := b.Client.CreateSnapshot(ctx, b.Collection)
	if err != nil {
		return Snapshot{}, fmt.Errorf("creating qdrant snapshot: %w", err)
	}

	b.Logger.Info("qdrant snapshot created",
		zap.String("collection", b.Collection), zap.String("name", desc.GetName()))
	return Snapshot{Ref: desc.GetName(), CreatedAt: time.Now()}, nil
}

// Restore is intentionally unimplemented at the gRPC layer: Qdrant's
// gRPC surface can create and list snapshots but recovery is a REST-only
// operation (PUT .../snapshots/recover against a snapshot URL or
// uploaded file). Restore reports what an operator must do rather than
// fabricating a gRPC call that does not exist.
func (b *ServerBackend) Restore(ctx context.Context, ref string) error {
	return fmt.Errorf("qdrant snapshot restore is operator-driven: use the snapshot %q with Qdrant's REST recovery endpoint (collections/%s/snapshots/recover), gRPC exposes no recover verb", ref, b.Collection)
}
