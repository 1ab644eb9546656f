package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tbledger/apiserver/internal/report"
	"github.com/tbledger/apiserver/types"
)

const DefaultSnapshotPrefix = "trial-balance"

// snapshotLayout has a fixed width so keys sort in time order.
const snapshotLayout = "20060102T150405.000000000Z"

// Snapshots writes point-in-time xlsx copies of the trial balance.
type Snapshots struct {
	backend ObjectStorage
	prefix  string
}

func NewSnapshots(backend ObjectStorage, prefix string) *Snapshots {
	if prefix == "" {
		prefix = DefaultSnapshotPrefix
	}
	return &Snapshots{backend: backend, prefix: prefix}
}

// Save uploads accounts as a workbook keyed by at and returns the key.
func (s *Snapshots) Save(ctx context.Context, accounts []types.Account, at time.Time) (string, error) {
	if err := s.backend.EnsureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket %s: %w", s.backend.Bucket(), err)
	}

	var buf bytes.Buffer
	if err := report.WriteTrialBalance(&buf, accounts); err != nil {
		return "", err
	}

	key := path.Join(s.prefix, snapshotName(at))
	if err := s.backend.Put(ctx, key, &buf, int64(buf.Len()), report.ContentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// snapshotName keys a snapshot by its nanosecond timestamp plus a random
// suffix. Keys stay unique for snapshots taken at the same instant.
func snapshotName(at time.Time) string {
	return at.UTC().Format(snapshotLayout) + "-" + uuid.NewString()[:8] + ".xlsx"
}

// List returns the stored snapshot keys, oldest first.
func (s *Snapshots) List(ctx context.Context) ([]string, error) {
	keys, err := s.backend.List(ctx, s.prefix+"/")
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
