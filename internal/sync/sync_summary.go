package sync

import (
	"errors"
	"sort"
	"sync"
	"time"
)

type Direction string

const (
	DirectionDownload Direction = "download"
	DirectionUpload   Direction = "upload"
)

// ItemFailure names one item that could not be synced.
type ItemFailure struct {
	Path string
	Err  error
}

type CategorySummary struct {
	Transferred int
	Bytes       int64
	Deleted     int
	Skipped     int
	Failed      int
	Failures    []ItemFailure
	// Err is set when the whole category was abandoned.
	Err error
}

// Summary is the outcome of one reconcile call. It is safe for concurrent use
// while workers run.
type Summary struct {
	mu         sync.Mutex
	SessionID  string
	Backend    string
	Direction  Direction
	Started    time.Time
	Finished   time.Time
	Categories map[Category]*CategorySummary
}

func newSummary(sessionID, backend string, dir Direction, now time.Time) *Summary {
	return &Summary{
		SessionID:  sessionID,
		Backend:    backend,
		Direction:  dir,
		Started:    now,
		Categories: make(map[Category]*CategorySummary),
	}
}

// cat must be called with mu held.
func (s *Summary) cat(c Category) *CategorySummary {
	cs, ok := s.Categories[c]
	if !ok {
		cs = &CategorySummary{}
		s.Categories[c] = cs
	}
	return cs
}

func (s *Summary) recordTransfer(c Category, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.cat(c)
	cs.Transferred++
	cs.Bytes += size
}

func (s *Summary) recordDelete(c Category, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cat(c).Deleted += n
}

func (s *Summary) recordSkip(c Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cat(c).Skipped++
}

func (s *Summary) recordFailure(c Category, path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.cat(c)
	cs.Failed++
	cs.Failures = append(cs.Failures, ItemFailure{Path: path, Err: err})
}

func (s *Summary) abandon(c Category, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cat(c).Err = err
}

func (s *Summary) total(fn func(*CategorySummary) int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, cs := range s.Categories {
		n += fn(cs)
	}
	return n
}

// Transferred is the number of files uploaded or downloaded.
func (s *Summary) Transferred() int {
	return s.total(func(cs *CategorySummary) int { return cs.Transferred })
}

// Bytes is the payload size of all transfers.
func (s *Summary) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, cs := range s.Categories {
		n += cs.Bytes
	}
	return n
}

func (s *Summary) Deleted() int {
	return s.total(func(cs *CategorySummary) int { return cs.Deleted })
}

func (s *Summary) Skipped() int {
	return s.total(func(cs *CategorySummary) int { return cs.Skipped })
}

func (s *Summary) Failed() int {
	return s.total(func(cs *CategorySummary) int { return cs.Failed })
}

// Failures lists failed items across categories ordered by path.
func (s *Summary) Failures() []ItemFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ItemFailure
	for _, cs := range s.Categories {
		out = append(out, cs.Failures...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Err joins the errors of abandoned categories.
func (s *Summary) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, c := range []Category{CategoryPrimary, CategoryAliased} {
		if cs, ok := s.Categories[c]; ok && cs.Err != nil {
			errs = append(errs, cs.Err)
		}
	}
	return errors.Join(errs...)
}

func (s *Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}
