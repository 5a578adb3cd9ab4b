package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// EmbeddedBackend snapshots the chromem-go persistence directory used by
// internal/storage/embedded by copying it, mirroring the original
// service's SQLite file-copy strategy (copy2 the data file, same idea
// applied to a directory of collection files instead of one .db file).
type EmbeddedBackend struct {
	// Dir is the live store's persistence directory (embedded.Config.Path).
	Dir string
	// BackupRoot is where timestamped snapshot directories are written.
	// Defaults to Dir's parent when empty.
	BackupRoot string
	Logger     *zap.Logger
}

// NewEmbeddedBackend constructs an EmbeddedBackend for the given store
// directory.
func NewEmbeddedBackend(dir, backupRoot string, logger *zap.Logger) *EmbeddedBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backupRoot == "" {
		backupRoot = filepath.Dir(dir)
	}
	return &EmbeddedBackend{Dir: dir, BackupRoot: backupRoot, Logger: logger}
}

// Snapshot copies the live directory tree to a new timestamped directory
// under BackupRoot.
func (b *EmbeddedBackend) Snapshot(ctx context.Context) (Snapshot, error) {
	if _, err := os.Stat(b.Dir); err != nil {
		return Snapshot{}, fmt.Errorf("embedded store not found: %w", err)
	}

	now := time.Now()
	dest := filepath.Join(b.BackupRoot, fmt.Sprintf("forgetful-embedded-%s.bak", now.Format("20060102-150405")))
	if err := copyDir(ctx, b.Dir, dest); err != nil {
		return Snapshot{}, err
	}

	b.Logger.Info("embedded backup created", zap.String("path", dest))
	return Snapshot{Ref: dest, CreatedAt: now}, nil
}

// Restore replaces the live directory with the contents of the snapshot
// at ref.
func (b *EmbeddedBackend) Restore(ctx context.Context, ref string) error {
	if _, err := os.Stat(ref); err != nil {
		return fmt.Errorf("backup not found: %w", err)
	}

	if err := os.RemoveAll(b.Dir); err != nil {
		return fmt.Errorf("clearing live store before restore: %w", err)
	}
	if err := copyDir(ctx, ref, b.Dir); err != nil {
		return err
	}

	b.Logger.Info("embedded store restored", zap.String("from", ref))
	return nil
}

// copyDir recursively copies src to dst, creating dst if needed.
func copyDir(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
