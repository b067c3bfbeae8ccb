// Package resolution runs entity resolution sessions over an entity store
package resolution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/appctx"
	"github.com/Ramsey-B/clover/pkg/blocking"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/store"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Guard serializes sessions beyond this process
type Guard interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, err error)
}

// HistorySink persists the merge history
type HistorySink interface {
	Load(ctx context.Context) (map[string]string, error)
	Append(ctx context.Context, mergedID, survivorID string) error
}

// Option configures an Engine
type Option func(*Engine)

// WithEvents sets the bus that receives lifecycle events
func WithEvents(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithGuard sets a cross-process session guard
func WithGuard(g Guard) Option {
	return func(e *Engine) { e.guard = g }
}

// WithHistorySink persists merge history writes
func WithHistorySink(h HistorySink) Option {
	return func(e *Engine) { e.history.sink = h }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type components struct {
	config  Config
	indexer *blocking.Indexer
	matcher *matching.Matcher
	closure *graph.ClosureResolver
	merger  *merging.Resolver
}

// Engine coordinates blocking, matching, transitive inference and merging
type Engine struct {
	store  store.Store
	logger ectologger.Logger
	bus    *events.Bus
	guard  Guard
	now    func() time.Time

	// running is held for the whole of a session and while reconfiguring
	running sync.Mutex
	// merging serializes every merge, whether from a session or on demand
	merging sync.Mutex

	mu      sync.RWMutex
	comp    components
	session *models.ResolutionSession
	history *mergeHistory
	pending *pendingDeletes
}

// NewEngine validates the configuration and builds an engine
func NewEngine(st store.Store, config Config, logger ectologger.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:   st,
		logger:  logger,
		bus:     events.NewBus(logger),
		now:     func() time.Time { return time.Now().UTC() },
		history: newMergeHistory(logger),
		pending: newPendingDeletes(),
	}
	for _, opt := range opts {
		opt(e)
	}

	comp, err := e.build(config)
	if err != nil {
		return nil, err
	}
	e.comp = comp

	return e, nil
}

func (e *Engine) build(config Config) (components, error) {
	if err := config.Validate(); err != nil {
		return components{}, err
	}
	config = config.clone()

	indexer, err := blocking.NewIndexer(config.BlockingKeys, config.MaxBlockSize, e.logger)
	if err != nil {
		return components{}, err
	}

	return components{
		config:  config,
		indexer: indexer,
		matcher: matching.NewMatcher(config.matcherConfig()),
		closure: graph.NewClosureResolver(e.logger),
		merger:  merging.NewResolver(e.store, config.mergeConfig(), e.logger),
	}, nil
}

// Events returns the engine's event bus
func (e *Engine) Events() *events.Bus {
	return e.bus
}

// Config returns a copy of the active configuration
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.comp.config.clone()
}

// Reconfigure swaps the configuration. It fails with models.ErrSessionInProgress while a session runs.
func (e *Engine) Reconfigure(config Config) error {
	if !e.running.TryLock() {
		return models.ErrSessionInProgress
	}
	defer e.running.Unlock()

	comp, err := e.build(config)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.comp = comp
	e.mu.Unlock()

	e.logger.WithFields(map[string]any{
		"blocking_keys":        len(comp.config.BlockingKeys),
		"auto_merge_threshold": comp.config.AutoMergeThreshold,
	}).Info("Resolution engine reconfigured")
	return nil
}

// LoadHistory replaces the in-memory merge history with the persisted one
func (e *Engine) LoadHistory(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "resolution.Engine.LoadHistory")
	defer span.End()

	return e.history.load(ctx)
}

func (e *Engine) components() components {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.comp
}

// GetSession returns a copy of the current or most recent session, or nil if none ran yet
func (e *Engine) GetSession() *models.ResolutionSession {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.session == nil {
		return nil
	}
	s := e.session.Snapshot()
	return &s
}

func (e *Engine) updateSession(fn func(s *models.ResolutionSession)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.session)
}

// GetMergeHistory returns a copy of the merged id to survivor id map
func (e *Engine) GetMergeHistory() map[string]string {
	return e.history.snapshot()
}

// ResolveMergedID follows the merge chain of id to its current survivor
func (e *Engine) ResolveMergedID(id string) string {
	return e.history.resolve(id)
}

// PendingDeletes returns the merged ids whose delete still has to be retried
func (e *Engine) PendingDeletes() []string {
	return e.pending.ids()
}

// ResolveAll runs one resolution session. An empty entityType covers every type. The
// returned session is the final snapshot; a non-nil error accompanies failed and
// cancelled sessions.
func (e *Engine) ResolveAll(ctx context.Context, entityType string) (models.ResolutionSession, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Engine.ResolveAll")
	defer span.End()

	filter, err := models.ParseEntityType(entityType)
	if err != nil {
		return models.ResolutionSession{}, err
	}

	if !e.running.TryLock() {
		return models.ResolutionSession{}, models.ErrSessionInProgress
	}
	defer e.running.Unlock()

	comp := e.components()

	if e.guard != nil {
		ttl := comp.config.SessionTimeout
		if ttl <= 0 {
			ttl = time.Hour
		}
		release, err := e.guard.Acquire(ctx, ttl)
		if err != nil {
			return models.ResolutionSession{}, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				e.logger.WithContext(ctx).WithError(err).Warn("Failed to release session guard")
			}
		}()
	}

	if comp.config.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, comp.config.SessionTimeout)
		defer cancel()
	}

	session := &models.ResolutionSession{
		ID:        uuid.New().String(),
		StartedAt: e.now(),
		Status:    models.SessionStatusRunning,
	}
	if filter != "" {
		session.EntityType = &filter
	}
	ctx = appctx.SetSessionID(ctx, session.ID)

	e.mu.Lock()
	e.session = session
	e.mu.Unlock()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id":  session.ID,
		"entity_type": string(filter),
	})
	tracing.Annotate(ctx, map[string]string{"session_id": session.ID, "entity_type": typeLabel(filter)})
	log.Info("Resolution session started")
	e.bus.EmitSessionStarted(ctx, session.Snapshot())

	runErr := e.run(ctx, comp, filter)

	var final models.ResolutionSession
	e.updateSession(func(s *models.ResolutionSession) {
		completedAt := e.now()
		s.CompletedAt = &completedAt
		switch {
		case runErr == nil:
			s.Status = models.SessionStatusCompleted
		case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
			s.Status = models.SessionStatusCancelled
			s.Error = runErr.Error()
		default:
			s.Status = models.SessionStatusFailed
			s.Error = runErr.Error()
		}
		final = s.Snapshot()
	})

	metrics.SessionsTotal.WithLabelValues(string(final.Status)).Inc()
	metrics.SessionDuration.WithLabelValues(typeLabel(filter)).Observe(final.CompletedAt.Sub(final.StartedAt).Seconds())

	log = log.WithFields(map[string]any{
		"status":          final.Status,
		"total_entities":  final.TotalEntities,
		"matches_found":   final.MatchesFound,
		"merges_executed": final.MergesExecuted,
		"merges_failed":   final.MergesFailed,
	})

	// events are delivered even when the caller's context is done
	emitCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		tracing.Fail(span, runErr)
		log.WithError(runErr).Error("Resolution session did not complete")
		e.bus.EmitSessionFailed(emitCtx, final)
		return final, fmt.Errorf("resolution session %s %s: %w", final.ID, final.Status, runErr)
	}

	log.Info("Resolution session completed")
	e.bus.EmitSessionCompleted(emitCtx, final)
	return final, nil
}

func (e *Engine) run(ctx context.Context, comp components, filter models.EntityType) error {
	grouped, err := e.fetch(ctx, comp.config, filter)
	if err != nil {
		return err
	}

	merged := make(map[string]bool)
	for _, t := range models.EntityTypes {
		entities := grouped[t]
		if len(entities) < 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.resolveType(ctx, comp, t, entities, merged); err != nil {
			return err
		}
	}

	return nil
}

// fetch loads full entities and groups them by their concrete type
func (e *Engine) fetch(ctx context.Context, config Config, filter models.EntityType) (map[models.EntityType][]*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Engine.fetch")
	defer span.End()

	var summaries []models.EntitySummary
	var err error
	if filter != "" {
		summaries, err = e.store.Search(ctx, filter, config.FetchLimit)
	} else {
		summaries, err = e.store.GetAllEntities(ctx, config.FetchLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	grouped := make(map[models.EntityType][]*models.Entity)
	total := 0
	for _, summary := range summaries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entity, err := e.store.Get(ctx, summary.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load entity %s: %w", summary.ID, err)
		}
		if entity == nil {
			continue
		}
		if err := entity.Validate(); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("entity_id", summary.ID).Warn("Skipping invalid entity")
			continue
		}
		if filter != "" && entity.Type != filter {
			continue
		}

		grouped[entity.Type] = append(grouped[entity.Type], entity)
		total++
	}

	e.updateSession(func(s *models.ResolutionSession) { s.TotalEntities = total })
	return grouped, nil
}

func (e *Engine) resolveType(ctx context.Context, comp components, t models.EntityType, entities []*models.Entity, merged map[string]bool) error {
	ctx, span := tracing.StartSpan(ctx, "resolution.Engine.resolveType")
	defer span.End()

	result := comp.indexer.GenerateBlocks(ctx, entities)
	metrics.BlocksTotal.WithLabelValues(string(t), "compared").Add(float64(len(result.Blocks)))
	metrics.BlocksTotal.WithLabelValues(string(t), "skipped").Add(float64(len(result.Skipped)))
	e.updateSession(func(s *models.ResolutionSession) {
		s.BlocksGenerated += len(result.Blocks) + len(result.Skipped)
		s.BlocksSkipped += len(result.Skipped)
	})

	matches, err := e.compareBlocks(ctx, comp, t, result)
	if err != nil {
		return err
	}

	if comp.config.EnableTransitiveMatching {
		matches = comp.closure.ResolveTransitive(ctx, matches)
	}

	sortMatches(matches)
	e.updateSession(func(s *models.ResolutionSession) { s.MatchesFound += len(matches) })
	for _, m := range matches {
		metrics.MatchConfidence.WithLabelValues(string(t), string(m.SuggestedAction)).Observe(m.Confidence)
	}
	e.bus.EmitMatchesFound(ctx, matches)

	return e.applyMerges(ctx, comp, matches, merged)
}

type comparisonStats struct {
	performed int
	errors    int
}

// compareBlocks scores every unique pair across blocks with a bounded worker pool
func (e *Engine) compareBlocks(ctx context.Context, comp components, t models.EntityType, result blocking.Result) ([]models.EntityMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Engine.compareBlocks")
	defer span.End()

	var (
		mu      sync.Mutex
		claimed = make(map[string]bool)
		found   = make(map[string]models.EntityMatch)
		stats   comparisonStats
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, comp.config.CompareWorkers)

	claim := func(key string) bool {
		mu.Lock()
		defer mu.Unlock()
		if claimed[key] {
			return false
		}
		claimed[key] = true
		return true
	}

	for _, key := range result.Keys() {
		if ctx.Err() != nil {
			break
		}
		block := result.Blocks[key]

		sem <- struct{}{}
		wg.Add(1)
		go func(key string, block []*models.Entity) {
			defer wg.Done()
			defer func() { <-sem }()

			var local comparisonStats
			var matches []models.EntityMatch
			for i := 0; i < len(block); i++ {
				for j := i + 1; j < len(block); j++ {
					if ctx.Err() != nil {
						break
					}
					a, b := block[i], block[j]
					if a.ID > b.ID {
						a, b = b, a
					}
					if a.ID == b.ID || !claim(models.PairKey(a.ID, b.ID)) {
						continue
					}

					local.performed++
					m, err := compareSafely(comp.matcher, t, a, b)
					if err != nil {
						local.errors++
						metrics.ComparisonsTotal.WithLabelValues(string(t), "error").Inc()
						e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
							"block_key":  key,
							"entity1_id": a.ID,
							"entity2_id": b.ID,
						}).Warn("Comparison failed")
						continue
					}
					if m == nil {
						metrics.ComparisonsTotal.WithLabelValues(string(t), "no_match").Inc()
						continue
					}
					metrics.ComparisonsTotal.WithLabelValues(string(t), "match").Inc()
					matches = append(matches, *m)
				}
			}

			mu.Lock()
			stats.performed += local.performed
			stats.errors += local.errors
			for _, m := range matches {
				found[m.PairKey()] = m
			}
			mu.Unlock()
		}(key, block)
	}
	wg.Wait()

	e.updateSession(func(s *models.ResolutionSession) {
		s.ComparisonsPerformed += stats.performed
		s.ComparisonErrors += stats.errors
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches := make([]models.EntityMatch, 0, len(found))
	for _, m := range found {
		matches = append(matches, m)
	}
	return matches, nil
}

// compareSafely converts a panicking comparison into an error
func compareSafely(m *matching.Matcher, t models.EntityType, a, b *models.Entity) (match *models.EntityMatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			match, err = nil, fmt.Errorf("%w: comparison panicked: %v", models.ErrInvalidEntity, r)
		}
	}()
	return m.CompareEntities(t, a, b)
}

// applyMerges merges in descending confidence order. An entity merged away in this
// session is never merged again.
func (e *Engine) applyMerges(ctx context.Context, comp components, matches []models.EntityMatch, merged map[string]bool) error {
	ctx, span := tracing.StartSpan(ctx, "resolution.Engine.applyMerges")
	defer span.End()

	for _, m := range matches {
		if m.SuggestedAction != models.ActionMerge {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if merged[m.Entity1ID] || merged[m.Entity2ID] {
			continue
		}

		result, err := e.merge(ctx, comp, m.Entity1ID, m.Entity2ID)
		var partial *merging.PartialMergeError
		switch {
		case errors.As(err, &partial):
			merged[partial.MergedID] = true
			e.updateSession(func(s *models.ResolutionSession) { s.MergesFailed++ })
		case err != nil:
			return err
		case !result.Success:
			e.updateSession(func(s *models.ResolutionSession) { s.MergesFailed++ })
		default:
			merged[result.MergedID] = true
			e.updateSession(func(s *models.ResolutionSession) { s.MergesExecuted++ })
		}
	}

	return nil
}

// merge runs one merge under the merge lock and records its side effects. Ids are
// resolved through the history inside the lock. A partial merge still records history
// and queues the delete for RetryPendingDeletes.
func (e *Engine) merge(ctx context.Context, comp components, id1, id2 string) (models.MergeResult, error) {
	e.merging.Lock()
	defer e.merging.Unlock()

	// history may have moved while waiting for the lock
	r1, r2 := e.history.resolve(id1), e.history.resolve(id2)
	if r1 == r2 {
		metrics.MergesTotal.WithLabelValues("failed").Inc()
		return models.FailedMerge(fmt.Sprintf("%s and %s already resolve to %s", id1, id2, r1)), nil
	}

	result, err := comp.merger.MergeEntities(ctx, r1, r2)

	var partial *merging.PartialMergeError
	switch {
	case errors.As(err, &partial):
		metrics.MergesTotal.WithLabelValues("partial").Inc()
		e.history.record(ctx, partial.MergedID, partial.SurvivorID)
		e.pending.add(partial.MergedID, partial.SurvivorID)
	case err != nil:
		metrics.MergesTotal.WithLabelValues("error").Inc()
	case !result.Success:
		metrics.MergesTotal.WithLabelValues("failed").Inc()
	default:
		metrics.MergesTotal.WithLabelValues("success").Inc()
		e.history.record(ctx, result.MergedID, result.SurvivorID)
		e.bus.EmitMergeCompleted(ctx, result)
	}

	return result, err
}

// MergeEntities merges two entities on demand. A previously merged id targets its
// survivor, and concurrent calls never merge the same entity twice.
func (e *Engine) MergeEntities(ctx context.Context, id1, id2 string) (models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Engine.MergeEntities")
	defer span.End()

	return e.merge(ctx, e.components(), id1, id2)
}

// FindDuplicates compares one entity against the same-type entities in the store
func (e *Engine) FindDuplicates(ctx context.Context, entityID string) ([]models.EntityMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Engine.FindDuplicates")
	defer span.End()

	comp := e.components()

	entity, err := e.store.Get(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entity %s: %w", entityID, err)
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrEntityNotFound, entityID)
	}

	summaries, err := e.store.Search(ctx, entity.Type, comp.config.FindDuplicatesLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entities: %w", entity.Type, err)
	}

	matches := []models.EntityMatch{}
	for _, summary := range summaries {
		if summary.ID == entityID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		other, err := e.store.Get(ctx, summary.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load entity %s: %w", summary.ID, err)
		}
		if other == nil || other.Type != entity.Type {
			continue
		}

		m, err := compareSafely(comp.matcher, entity.Type, entity, other)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("candidate_id", other.ID).Warn("Comparison failed")
			continue
		}
		if m != nil {
			matches = append(matches, *m)
		}
	}

	sortMatches(matches)
	return matches, nil
}

// RetryPendingDeletes retries deletes left behind by partial merges and returns how many completed
func (e *Engine) RetryPendingDeletes(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Engine.RetryPendingDeletes")
	defer span.End()

	comp := e.components()

	done := 0
	var errs []error
	for _, id := range e.pending.ids() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := comp.merger.DeleteMerged(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
			continue
		}
		e.pending.remove(id)
		done++
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"retried":   done,
		"remaining": len(e.pending.ids()),
	}).Info("Retried pending deletes")

	return done, errors.Join(errs...)
}

// sortMatches orders by confidence descending with the pair key as tie-break
func sortMatches(matches []models.EntityMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].PairKey() < matches[j].PairKey()
	})
}

func typeLabel(t models.EntityType) string {
	if t == "" {
		return "all"
	}
	return string(t)
}
