package search

import (
	"github.com/rs/zerolog"
)

// Service is the facade that tries Meilisearch first and falls back to the
// in-memory index.
type Service struct {
	meili  *Meili
	memory *Memory
	log    zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, memory *Memory, log zerolog.Logger) *Service {
	if memory == nil {
		memory = NewMemory()
	}
	return &Service{meili: meili, memory: memory, log: log}
}

// Search tries Meilisearch if healthy, otherwise falls back to memory.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to memory index")
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		s.log.Error().Err(err).Msg("memory search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: "memory"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "memory"}
}

// IndexDomain replaces the domain's records in memory and pushes them to
// Meilisearch (fire-and-forget).
func (s *Service) IndexDomain(domain string, records []Record) {
	s.memory.Replace(domain, records)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexRecords(records); err != nil {
			s.log.Warn().Err(err).Str("domain", domain).Msg("index records")
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
