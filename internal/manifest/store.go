package manifest

import (
	"context"
	"errors"
	"log/slog"
)

// Store persists one manifest per owner.
type Store interface {
	Load(ctx context.Context, owner string) (*Manifest, error)
	Save(ctx context.Context, owner string, m *Manifest) error
}

// LoadOrEmpty loads owner's manifest, falling back to an empty one when the
// stored copy is corrupt. Other errors are returned.
func LoadOrEmpty(ctx context.Context, s Store, owner string) (*Manifest, error) {
	m, err := s.Load(ctx, owner)
	if errors.Is(err, ErrCorrupt) {
		slog.Warn("manifest corrupt, starting empty", "owner", owner, "error", err)
		return New(), nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
