package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openmined/gridsync/internal/remote"
)

// RemoteStore keeps the published manifest as a JSON document on a backend.
type RemoteStore struct {
	store  remote.Store
	pathFn func(owner string) string
}

// NewRemoteStore stores owner's manifest at pathFn(owner).
func NewRemoteStore(store remote.Store, pathFn func(owner string) string) *RemoteStore {
	return &RemoteStore{store: store, pathFn: pathFn}
}

// Load returns an empty manifest when none has been published yet.
func (r *RemoteStore) Load(ctx context.Context, owner string) (*Manifest, error) {
	p := r.pathFn(owner)
	data, err := r.store.Get(ctx, p)
	if errors.Is(err, remote.ErrNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch remote manifest %s: %w", p, err)
	}
	return Decode(data)
}

func (r *RemoteStore) Save(ctx context.Context, owner string, m *Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	p := r.pathFn(owner)
	if err := r.store.Put(ctx, p, data, time.Now()); err != nil {
		return fmt.Errorf("publish remote manifest %s: %w", p, err)
	}
	return nil
}

var _ Store = (*RemoteStore)(nil)
