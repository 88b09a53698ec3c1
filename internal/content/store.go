package content

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"sync/atomic"
)

// Store serves catalogue queries from an in-memory snapshot of an fs tree.
// Reads are lock-free; Reload swaps the whole snapshot atomically.
type Store struct {
	fsys   fs.FS
	active atomic.Pointer[Snapshot]
}

func NewStore(fsys fs.FS) *Store { return &Store{fsys: fsys} }

// Reload parses the tree and swaps it in, returning the snapshot it replaced
// (nil on first load) and the new one. On error the active snapshot is kept.
func (s *Store) Reload() (prev, next *Snapshot, err error) {
	next, err = LoadSnapshot(s.fsys)
	if err != nil {
		return nil, nil, err
	}
	return s.Swap(next), next, nil
}

// Swap installs snap and returns the previous snapshot (nil on first load).
func (s *Store) Swap(snap *Snapshot) *Snapshot {
	return s.active.Swap(snap)
}

// Get retrieves the active snapshot.
func (s *Store) Get() (*Snapshot, bool) {
	snap := s.active.Load()
	return snap, snap != nil
}

// ReadyErr returns an error if there is no active snapshot.
func (s *Store) ReadyErr() error {
	if _, ok := s.Get(); !ok {
		return errors.New("content: no active snapshot")
	}
	return nil
}

// Query implements Transport.
func (s *Store) Query(_ context.Context, q Query, params Params) (json.RawMessage, error) {
	snap, ok := s.Get()
	if !ok {
		return nil, errors.New("content: store not loaded")
	}
	return selectDocs(q, snap.raws(q.Type), params)
}
