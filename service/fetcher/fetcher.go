/*
 * @module service/fetcher/fetcher
 * @description External record fetcher: yields raw records of one entity kind for a date window
 * @architecture Collaborator interface - the sync pipeline only depends on Fetcher
 * @stateFlow sync pipeline -> Fetch(kind, window) -> []RawRecord -> mapper
 * @rules a zero window means the whole table; fetchers never filter or normalize fields
 * @dependencies service/mapper
 * @refs service/sync_engine/sync_service.go
 */

package fetcher

import (
	"context"
	"sync"
	"time"

	"backoffice-service/service/mapper"
	"backoffice-service/service/meta"
)

// Window inclusive civil-date range; zero value fetches everything
type Window struct {
	From time.Time
	To   time.Time
}

// IsZero reports a full-table window
func (w Window) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

// String dd-mm-yyyy..dd-mm-yyyy, or "all"
func (w Window) String() string {
	if w.IsZero() {
		return "all"
	}
	return w.From.Format(meta.ExternalDateLayout) + ".." + w.To.Format(meta.ExternalDateLayout)
}

// Fetcher source of raw records
type Fetcher interface {
	Fetch(ctx context.Context, kind string, window Window) ([]mapper.RawRecord, error)
}

// FetchFunc adapts a function to Fetcher
type FetchFunc func(ctx context.Context, kind string, window Window) ([]mapper.RawRecord, error)

// Fetch calls f
func (f FetchFunc) Fetch(ctx context.Context, kind string, window Window) ([]mapper.RawRecord, error) {
	return f(ctx, kind, window)
}

// StaticFetcher in-memory fetcher for tests and replays of captured batches
type StaticFetcher struct {
	mu      sync.Mutex
	records map[string][]mapper.RawRecord
	err     error
	calls   []Window
}

// NewStaticFetcher creates an empty static fetcher
func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{records: make(map[string][]mapper.RawRecord)}
}

// Set replaces the records returned for kind
func (s *StaticFetcher) Set(kind string, records ...mapper.RawRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[kind] = records
}

// FailWith makes every subsequent Fetch return err
func (s *StaticFetcher) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls windows requested so far
func (s *StaticFetcher) Calls() []Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Window(nil), s.calls...)
}

// Fetch returns the stored records of kind regardless of window
func (s *StaticFetcher) Fetch(ctx context.Context, kind string, window Window) ([]mapper.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, window)
	if s.err != nil {
		return nil, s.err
	}
	records := make([]mapper.RawRecord, len(s.records[kind]))
	copy(records, s.records[kind])
	return records, nil
}
