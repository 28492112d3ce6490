package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"curator/api/internal/cache"
	"curator/api/internal/classify"
	"curator/api/internal/config"
	"curator/api/internal/gateway"
	"curator/api/internal/schedule"
	"curator/api/internal/search"
)

const seriesKeySuffix = ":series"

// CollectionGateway is the upstream document-collection API as seen by the
// service.
type CollectionGateway interface {
	Ping(ctx context.Context) error
	FetchItems(ctx context.Context, d config.Domain) ([]schedule.Item, error)
	FetchSeries(ctx context.Context, d config.Domain) ([]schedule.Series, error)
	WriteAssignments(ctx context.Context, d config.Domain, assignments []schedule.Assignment) gateway.WriteReport
}

type Service struct {
	cfg        config.Config
	domains    []config.Domain
	byName     map[string]config.Domain
	gateway    CollectionGateway
	items      *cache.Store[[]schedule.Item]
	series     *cache.Store[[]schedule.Series]
	assigner   *schedule.Assigner
	search     *search.Service
	classifier classify.Classifier
	log        zerolog.Logger
}

// Backlog is an ordered item listing plus the cache state it was served from.
type Backlog struct {
	Domain string          `json:"domain"`
	Items  []schedule.Item `json:"items"`
	Cache  string          `json:"cache"`
}

// PlanResult describes a planned or cascaded batch. Report is nil on dry runs.
type PlanResult struct {
	Domain      string                `json:"domain"`
	Series      schedule.Series       `json:"series"`
	Assignments []schedule.Assignment `json:"assignments"`
	DryRun      bool                  `json:"dryRun"`
	Report      *gateway.WriteReport  `json:"report,omitempty"`
}

// ClassifyResult is the model's label for one backlog item.
type ClassifyResult struct {
	Domain string          `json:"domain"`
	ItemID string          `json:"id"`
	Title  string          `json:"title"`
	Result classify.Result `json:"result"`
}

// New wires a Service. classifier may be nil when no model is configured.
func New(cfg config.Config, domains []config.Domain, gw CollectionGateway, searchService *search.Service, classifier classify.Classifier, log zerolog.Logger, cacheOpts ...cache.Option) *Service {
	if searchService == nil {
		searchService = search.NewService(nil, nil, log)
	}
	s := &Service{
		cfg:        cfg,
		domains:    domains,
		byName:     make(map[string]config.Domain, len(domains)),
		gateway:    gw,
		assigner:   schedule.NewAssigner(cfg.Location()),
		search:     searchService,
		classifier: classifier,
		log:        log,
	}
	for _, d := range domains {
		s.byName[d.Name] = d
	}
	if cfg.PlanFromSeriesStart {
		s.assigner.WithSeriesStartFloor()
	}

	opts := append([]cache.Option{
		cache.WithTTL(cfg.CacheFreshTTL, cfg.CacheStaleTTL),
		cache.WithRefreshErrorHandler(func(key string, err error) {
			log.Warn().Err(err).Str("key", key).Msg("background refresh failed")
		}),
	}, cacheOpts...)
	s.items = cache.New[[]schedule.Item](opts...)
	s.series = cache.New[[]schedule.Series](opts...)
	return s
}

// Close waits for background refreshes to finish.
func (s *Service) Close() {
	s.items.Wait()
	s.series.Wait()
}

func (s *Service) Domains() []config.Domain {
	return s.domains
}

func (s *Service) Domain(name string) (config.Domain, error) {
	d, ok := s.byName[strings.TrimSpace(name)]
	if !ok {
		return config.Domain{}, domainError(http.StatusNotFound, "UNKNOWN_DOMAIN", fmt.Sprintf("Unknown domain %q", name), nil)
	}
	return d, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.gateway.Ping(ctx)
}

// Backlog returns the domain's ordered items through the cache.
func (s *Service) Backlog(ctx context.Context, domainName string) (Backlog, error) {
	d, err := s.Domain(domainName)
	if err != nil {
		return Backlog{}, err
	}
	items, state, err := s.items.Load(ctx, d.CacheKey, s.fetchItems(d))
	if err != nil {
		return Backlog{}, err
	}
	return Backlog{Domain: d.Name, Items: nonNilItems(items), Cache: state.String()}, nil
}

// ActiveSeries returns the first active series of the domain.
func (s *Service) ActiveSeries(ctx context.Context, domainName string) (schedule.Series, error) {
	d, err := s.Domain(domainName)
	if err != nil {
		return schedule.Series{}, err
	}
	series, _, err := s.series.Load(ctx, d.CacheKey+seriesKeySuffix, s.fetchSeries(d))
	if err != nil {
		return schedule.Series{}, err
	}
	active, ok := schedule.ActiveSeries(series)
	if !ok {
		return schedule.Series{}, schedule.ErrNoActiveSeries
	}
	return active, nil
}

// PlanNextBatch dates the next batch of the backlog and writes it upstream
// unless dryRun is set. Mutations always read the backlog from upstream.
func (s *Service) PlanNextBatch(ctx context.Context, domainName string, batchSize int, dryRun bool) (PlanResult, error) {
	d, err := s.Domain(domainName)
	if err != nil {
		return PlanResult{}, err
	}
	if batchSize <= 0 {
		batchSize = d.BatchSize
	}
	backlog, series, err := s.loadForWrite(ctx, d)
	if err != nil {
		return PlanResult{}, err
	}

	assignments, err := s.assigner.PlanNextBatch(backlog, series, batchSize, d.PlanLookaheadDays)
	if err != nil {
		return PlanResult{}, err
	}
	return s.commit(ctx, d, *series, assignments, dryRun)
}

// MoveItem pins itemID to rawDate and cascades later items onto the
// following eligible dates.
func (s *Service) MoveItem(ctx context.Context, domainName, itemID, rawDate string, dryRun bool) (PlanResult, error) {
	d, err := s.Domain(domainName)
	if err != nil {
		return PlanResult{}, err
	}
	date, err := schedule.ParseDate(rawDate, s.cfg.Location())
	if err != nil {
		return PlanResult{}, domainError(http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD", map[string]any{"date": rawDate})
	}
	backlog, series, err := s.loadForWrite(ctx, d)
	if err != nil {
		return PlanResult{}, err
	}

	assignments, err := s.assigner.CascadeReschedule(backlog, itemID, date, series, d.CascadeLookaheadDays)
	if err != nil {
		return PlanResult{}, err
	}
	return s.commit(ctx, d, *series, assignments, dryRun)
}

// Classify asks the configured model to label one backlog item.
func (s *Service) Classify(ctx context.Context, domainName, itemID string) (ClassifyResult, error) {
	if s.classifier == nil {
		return ClassifyResult{}, domainError(http.StatusNotImplemented, "CLASSIFIER_DISABLED", "No language model configured", nil)
	}
	backlog, err := s.Backlog(ctx, domainName)
	if err != nil {
		return ClassifyResult{}, err
	}
	d, _ := s.Domain(domainName)

	for _, item := range backlog.Items {
		if item.ID != itemID {
			continue
		}
		body, _ := item.Fields[d.Fields.Body].(string)
		result, err := s.classifier.Classify(ctx, classify.Request{
			Title:      item.Title,
			Body:       body,
			Categories: d.Categories,
		})
		if err != nil {
			s.log.Error().Err(err).Str("domain", d.Name).Str("item", itemID).Msg("classify failed")
			return ClassifyResult{}, domainError(http.StatusBadGateway, "CLASSIFY_FAILED", "Classification failed", nil)
		}
		return ClassifyResult{Domain: d.Name, ItemID: item.ID, Title: item.Title, Result: result}, nil
	}
	return ClassifyResult{}, fmt.Errorf("%w: %s", schedule.ErrNotFound, itemID)
}

// Search queries the content index. An unknown domain filter is rejected.
func (s *Service) Search(q search.Query) (search.Response, error) {
	if q.Domain != "" {
		d, err := s.Domain(q.Domain)
		if err != nil {
			return search.Response{}, err
		}
		q.Domain = d.Name
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	return s.search.Search(q), nil
}

// InvalidateCache drops the given cache keys, or every key when none are given.
func (s *Service) InvalidateCache(keys ...string) {
	seriesKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		seriesKeys = append(seriesKeys, key+seriesKeySuffix)
	}
	s.items.Invalidate(keys...)
	s.series.Invalidate(seriesKeys...)
	s.log.Info().Strs("keys", keys).Msg("cache invalidated")
}

// Warm refreshes every domain's item cache. Domains whose refresh is
// already claimed are skipped.
func (s *Service) Warm(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(max(1, s.cfg.UpstreamWriteConcurrency))
	errs := make([]error, len(s.domains))
	for i, d := range s.domains {
		gen := s.items.Generation(d.CacheKey)
		if !s.items.BeginRefresh(d.CacheKey) {
			continue
		}
		g.Go(func() error {
			items, err := s.fetchItems(d)(ctx)
			if err != nil {
				s.items.EndRefresh(d.CacheKey)
				errs[i] = fmt.Errorf("warm %s: %w", d.Name, err)
				return nil
			}
			if !s.items.CompleteRefresh(d.CacheKey, gen, items) {
				s.log.Debug().Str("domain", d.Name).Msg("warm result discarded after invalidation")
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *Service) fetchItems(d config.Domain) cache.FetchFunc[[]schedule.Item] {
	return func(ctx context.Context) ([]schedule.Item, error) {
		started := time.Now()
		items, err := s.gateway.FetchItems(ctx, d)
		if err != nil {
			return nil, err
		}
		ordered := schedule.Order(items)
		s.search.IndexDomain(d.Name, search.Records(d.Name, d.Fields.Body, ordered))
		s.log.Debug().Str("domain", d.Name).Int("items", len(ordered)).Dur("took", time.Since(started)).Msg("backlog fetched")
		return ordered, nil
	}
}

func (s *Service) fetchSeries(d config.Domain) cache.FetchFunc[[]schedule.Series] {
	return func(ctx context.Context) ([]schedule.Series, error) {
		return s.gateway.FetchSeries(ctx, d)
	}
}

// loadForWrite reads the active series first so a domain without one fails
// before the backlog is fetched.
func (s *Service) loadForWrite(ctx context.Context, d config.Domain) ([]schedule.Item, *schedule.Series, error) {
	seriesKey := d.CacheKey + seriesKeySuffix
	seriesGen := s.series.Generation(seriesKey)
	itemsGen := s.items.Generation(d.CacheKey)

	all, err := s.gateway.FetchSeries(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	s.series.CompleteRefresh(seriesKey, seriesGen, all)
	active, ok := schedule.ActiveSeries(all)
	if !ok {
		return nil, nil, schedule.ErrNoActiveSeries
	}

	backlog, err := s.fetchItems(d)(ctx)
	if err != nil {
		return nil, nil, err
	}
	s.items.CompleteRefresh(d.CacheKey, itemsGen, backlog)
	return backlog, &active, nil
}

func (s *Service) commit(ctx context.Context, d config.Domain, series schedule.Series, assignments []schedule.Assignment, dryRun bool) (PlanResult, error) {
	result := PlanResult{
		Domain:      d.Name,
		Series:      series,
		Assignments: nonNilAssignments(assignments),
		DryRun:      dryRun,
	}
	if dryRun || len(assignments) == 0 {
		return result, nil
	}

	report := s.gateway.WriteAssignments(ctx, d, assignments)
	result.Report = &report
	if report.Succeeded > 0 {
		s.items.Invalidate(d.CacheKey)
	}
	s.log.Info().
		Str("domain", d.Name).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("assignments written")

	if report.Succeeded == 0 && report.Failed > 0 {
		return result, domainError(http.StatusBadGateway, "WRITE_FAILED", "No assignment could be written", report.Failures)
	}
	return result, nil
}

func nonNilItems(items []schedule.Item) []schedule.Item {
	if items == nil {
		return []schedule.Item{}
	}
	return items
}

func nonNilAssignments(a []schedule.Assignment) []schedule.Assignment {
	if a == nil {
		return []schedule.Assignment{}
	}
	return a
}
