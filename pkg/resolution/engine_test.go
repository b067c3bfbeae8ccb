package resolution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/store"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DeleteRetryDelay = time.Millisecond
	return cfg
}

func newEngine(t *testing.T, st store.Store, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(st, testConfig(), testLogger(), opts...)
	require.NoError(t, err)
	return e
}

func person(id, name string, emails []string, phones ...string) *models.Entity {
	fields := models.PersonFields{}
	for _, em := range emails {
		fields.Emails = append(fields.Emails, models.EmailAddress{Email: em})
	}
	for _, ph := range phones {
		fields.Phones = append(fields.Phones, models.PhoneNumber{Number: ph})
	}
	e := models.NewPerson(id, name, fields)
	e.CreatedAt = t0
	e.UpdatedAt = t0
	return e
}

func TestResolveAll_EndToEnd(t *testing.T) {
	st := store.NewMemory(
		person("A", "Alice Anders", []string{"x@y.com"}),
		person("B", "Bob Brown", []string{"x@y.com"}),
		person("C", "Carl Cole", []string{"z@w.com"}),
	)
	e := newEngine(t, st)

	session, err := e.ResolveAll(context.Background(), "Person")
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.NotNil(t, session.CompletedAt)
	assert.Equal(t, 3, session.TotalEntities)
	assert.Equal(t, 1, session.MergesExecuted)
	assert.GreaterOrEqual(t, session.MatchesFound, 1)
	require.NotNil(t, session.EntityType)
	assert.Equal(t, models.EntityTypePerson, *session.EntityType)

	people, err := st.Search(context.Background(), models.EntityTypePerson, 0)
	require.NoError(t, err)
	assert.Len(t, people, 2)

	assert.Equal(t, map[string]string{"B": "A"}, e.GetMergeHistory())
	assert.Equal(t, "A", e.ResolveMergedID("B"))
	assert.Equal(t, "C", e.ResolveMergedID("C"))

	current := e.GetSession()
	require.NotNil(t, current)
	assert.Equal(t, session.ID, current.ID)
}

func TestResolveAll_NoDoubleMerge(t *testing.T) {
	st := store.NewMemory(
		person("a", "Alice Anders", []string{"shared@x.com"}),
		person("b", "Bob Brown", []string{"shared@x.com"}),
		person("c", "Carl Cole", []string{"shared@x.com"}),
	)
	e := newEngine(t, st)

	session, err := e.ResolveAll(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 3, session.MatchesFound)
	assert.Equal(t, 2, session.MergesExecuted)
	assert.Equal(t, 0, session.MergesFailed)
	assert.Equal(t, 1, st.Len())
	assert.Equal(t, map[string]string{"b": "a", "c": "a"}, e.GetMergeHistory())
}

func TestResolveAll_Transitive(t *testing.T) {
	newStore := func() *store.Memory {
		return store.NewMemory(
			person("a", "Alice Anders", []string{"one@x.com"}),
			person("b", "Bob Brown", []string{"one@x.com"}, "555-123-4567"),
			person("c", "Carl Cole", nil, "(555) 123 4567"),
		)
	}

	tests := []struct {
		name        string
		transitive  bool
		wantMatches int
	}{
		{"enabled", true, 3},
		{"disabled", false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.EnableTransitiveMatching = tt.transitive
			e, err := NewEngine(newStore(), cfg, testLogger())
			require.NoError(t, err)

			var got []models.EntityMatch
			e.Events().OnMatchesFound(func(_ context.Context, m []models.EntityMatch) { got = m })

			session, err := e.ResolveAll(context.Background(), "Person")
			require.NoError(t, err)
			assert.Equal(t, tt.wantMatches, session.MatchesFound)
			assert.Equal(t, 1, session.MergesExecuted, "b is merged away before the b-c match is applied")

			require.Len(t, got, tt.wantMatches)
			for i := 1; i < len(got); i++ {
				assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence)
			}
			if tt.transitive {
				last := got[len(got)-1]
				assert.Equal(t, "a|c", last.PairKey())
				assert.Equal(t, 0.7, last.Confidence)
				assert.Equal(t, models.ActionLink, last.SuggestedAction)
			}
		})
	}
}

func TestResolveAll_InvalidType(t *testing.T) {
	e := newEngine(t, store.NewMemory())
	_, err := e.ResolveAll(context.Background(), "Vehicle")
	assert.ErrorIs(t, err, models.ErrInvalidEntity)
	assert.Nil(t, e.GetSession())
}

type failingStore struct {
	*store.Memory
	searchErr error
	deleteErr error
}

func (f *failingStore) Search(ctx context.Context, t models.EntityType, limit int) ([]models.EntitySummary, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.Memory.Search(ctx, t, limit)
}

func (f *failingStore) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Memory.Delete(ctx, id)
}

func TestResolveAll_StoreFailure(t *testing.T) {
	st := &failingStore{Memory: store.NewMemory(), searchErr: models.ErrStoreUnavailable}
	e := newEngine(t, st)

	var failed []models.ResolutionSession
	e.Events().OnSessionFailed(func(_ context.Context, s models.ResolutionSession) { failed = append(failed, s) })

	session, err := e.ResolveAll(context.Background(), "Person")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.Equal(t, models.SessionStatusFailed, session.Status)
	assert.Contains(t, session.Error, models.ErrStoreUnavailable.Error())
	require.Len(t, failed, 1)
	assert.Equal(t, session.ID, failed[0].ID)
}

func TestResolveAll_Cancelled(t *testing.T) {
	st := store.NewMemory(
		person("a", "Alice Anders", []string{"x@y.com"}),
		person("b", "Bob Brown", []string{"x@y.com"}),
	)
	e := newEngine(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err := e.ResolveAll(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.SessionStatusCancelled, session.Status)
	assert.Equal(t, 2, st.Len())
}

// blockingStore parks Search until released or the context ends
type blockingStore struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) Search(ctx context.Context, t models.EntityType, limit int) ([]models.EntitySummary, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
		return b.Memory.Search(ctx, t, limit)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestResolveAll_SessionTimeout(t *testing.T) {
	st := &blockingStore{Memory: store.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	cfg := testConfig()
	cfg.SessionTimeout = 20 * time.Millisecond
	e, err := NewEngine(st, cfg, testLogger())
	require.NoError(t, err)

	session, err := e.ResolveAll(context.Background(), "Person")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.SessionStatusCancelled, session.Status)
}

func TestResolveAll_OneSessionAtATime(t *testing.T) {
	st := &blockingStore{Memory: store.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	e := newEngine(t, st)

	done := make(chan error, 1)
	go func() {
		_, err := e.ResolveAll(context.Background(), "Person")
		done <- err
	}()
	<-st.entered

	_, err := e.ResolveAll(context.Background(), "Person")
	assert.ErrorIs(t, err, models.ErrSessionInProgress)
	assert.ErrorIs(t, e.Reconfigure(testConfig()), models.ErrSessionInProgress)

	running := e.GetSession()
	require.NotNil(t, running)
	assert.Equal(t, models.SessionStatusRunning, running.Status)

	close(st.release)
	require.NoError(t, <-done)
	assert.Equal(t, models.SessionStatusCompleted, e.GetSession().Status)
}

func TestResolveAll_PartialMerge(t *testing.T) {
	st := &failingStore{
		Memory: store.NewMemory(
			person("a", "Alice Anders", []string{"x@y.com"}),
			person("b", "Bob Brown", []string{"x@y.com"}),
		),
		deleteErr: errors.New("delete timed out"),
	}
	e := newEngine(t, st)

	session, err := e.ResolveAll(context.Background(), "Person")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.Equal(t, 0, session.MergesExecuted)
	assert.Equal(t, 1, session.MergesFailed)
	assert.Equal(t, []string{"b"}, e.PendingDeletes())
	assert.Equal(t, "a", e.ResolveMergedID("b"))

	st.deleteErr = nil
	n, err := e.RetryPendingDeletes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, e.PendingDeletes())
	assert.Equal(t, 1, st.Len())
}

func TestResolveAll_Events(t *testing.T) {
	st := store.NewMemory(
		person("a", "Alice Anders", []string{"x@y.com"}),
		person("b", "Bob Brown", []string{"x@y.com"}),
	)
	bus := events.NewBus(testLogger())
	e := newEngine(t, st, WithEvents(bus))

	var log []string
	bus.OnSessionStarted(func(_ context.Context, s models.ResolutionSession) {
		assert.Equal(t, models.SessionStatusRunning, s.Status)
		log = append(log, events.SessionStarted)
	})
	bus.OnMergeCompleted(func(_ context.Context, r models.MergeResult) {
		assert.True(t, r.Success)
		log = append(log, events.MergeCompleted)
	})
	bus.OnSessionCompleted(func(_ context.Context, s models.ResolutionSession) {
		assert.Equal(t, models.SessionStatusCompleted, s.Status)
		log = append(log, events.SessionCompleted)
	})

	_, err := e.ResolveAll(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{events.SessionStarted, events.MergeCompleted, events.SessionCompleted}, log)
}

type fakeGuard struct {
	err      error
	acquired int
	released int
}

func (g *fakeGuard) Acquire(context.Context, time.Duration) (func(context.Context) error, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.acquired++
	return func(context.Context) error {
		g.released++
		return nil
	}, nil
}

func TestResolveAll_Guard(t *testing.T) {
	g := &fakeGuard{}
	e := newEngine(t, store.NewMemory(), WithGuard(g))

	_, err := e.ResolveAll(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, g.acquired)
	assert.Equal(t, 1, g.released)

	g.err = models.ErrSessionInProgress
	_, err = e.ResolveAll(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrSessionInProgress)
}

func TestFindDuplicates(t *testing.T) {
	st := store.NewMemory(
		person("a", "Alice Anders", []string{"x@y.com"}, "555-123-4567"),
		person("b", "Alice Anders", []string{"x@y.com"}),
		person("c", "Zed Quux", nil, "5551234567"),
		person("d", "Nobody Else", []string{"n@e.com"}),
		models.NewOrganization("o", "Alice Anders", models.OrganizationFields{}),
	)
	e := newEngine(t, st)

	matches, err := e.FindDuplicates(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, "a", m.Entity1ID)
		assert.NotEqual(t, "a", m.Entity2ID)
		assert.Equal(t, models.EntityTypePerson, m.EntityType)
	}
	assert.GreaterOrEqual(t, matches[0].Confidence, matches[1].Confidence)
	assert.Equal(t, 5, st.Len(), "find duplicates never merges")

	_, err = e.FindDuplicates(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrEntityNotFound)
}

func TestMergeEntities(t *testing.T) {
	st := store.NewMemory(
		person("a", "Alice Anders", []string{"x@y.com"}),
		person("b", "Bob Brown", []string{"x@y.com"}),
	)
	e := newEngine(t, st)
	ctx := context.Background()

	first, err := e.MergeEntities(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, "a", e.ResolveMergedID("b"))

	second, err := e.MergeEntities(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, second.Success)

	missing, err := e.MergeEntities(ctx, "a", "ghost")
	require.NoError(t, err)
	assert.False(t, missing.Success)
}

// barrierStore holds each Get of the barrier id until a second caller arrives or the wait expires
type barrierStore struct {
	*store.Memory
	id      string
	wait    time.Duration
	mu      sync.Mutex
	arrived int
	all     chan struct{}
}

func (b *barrierStore) Get(ctx context.Context, id string) (*models.Entity, error) {
	if id == b.id {
		b.mu.Lock()
		b.arrived++
		if b.arrived == 2 {
			close(b.all)
		}
		b.mu.Unlock()

		select {
		case <-b.all:
		case <-time.After(b.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.Memory.Get(ctx, id)
}

func TestMergeEntities_Concurrent(t *testing.T) {
	st := &barrierStore{
		Memory: store.NewMemory(
			person("A", "Alice Anders", []string{"x@y.com"}),
			person("B", "Alice Anders", []string{"x@y.com"}),
		),
		id:   "B",
		wait: 100 * time.Millisecond,
		all:  make(chan struct{}),
	}
	e := newEngine(t, st)

	var mu sync.Mutex
	var completed []models.MergeResult
	e.Events().OnMergeCompleted(func(_ context.Context, r models.MergeResult) {
		mu.Lock()
		defer mu.Unlock()
		completed = append(completed, r)
	})

	pairs := [][2]string{{"A", "B"}, {"B", "A"}}
	results := make([]models.MergeResult, len(pairs))
	var wg sync.WaitGroup
	for i, p := range pairs {
		wg.Add(1)
		go func(i int, id1, id2 string) {
			defer wg.Done()
			r, err := e.MergeEntities(context.Background(), id1, id2)
			assert.NoError(t, err)
			results[i] = r
		}(i, p[0], p[1])
	}
	wg.Wait()

	successes := 0
	for _, r := range results {
		if r.Success {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Len(t, completed, 1)
	assert.Equal(t, map[string]string{"B": "A"}, e.GetMergeHistory())
	assert.Equal(t, 1, st.Len())

	survivor, err := st.Memory.Get(context.Background(), "A")
	require.NoError(t, err)
	require.NotNil(t, survivor)
	assert.InDelta(t, 0.6, survivor.Confidence, 1e-9)
}

func TestResolveMergedID_Chain(t *testing.T) {
	e := newEngine(t, store.NewMemory())
	ctx := context.Background()
	e.history.record(ctx, "A", "B")
	e.history.record(ctx, "B", "C")
	e.history.record(ctx, "X", "Y")
	e.history.record(ctx, "Y", "X")

	assert.Equal(t, "C", e.ResolveMergedID("A"))
	assert.Equal(t, "C", e.ResolveMergedID("B"))
	assert.Equal(t, "unknown", e.ResolveMergedID("unknown"))
	assert.Equal(t, "Y", e.ResolveMergedID("X"))

	h := e.GetMergeHistory()
	h["A"] = "mutated"
	assert.Equal(t, "B", e.GetMergeHistory()["A"])
}

type fakeSink struct {
	loaded   map[string]string
	appended map[string]string
	err      error
}

func (f *fakeSink) Load(context.Context) (map[string]string, error) { return f.loaded, f.err }

func (f *fakeSink) Append(_ context.Context, merged, survivor string) error {
	if f.err != nil {
		return f.err
	}
	f.appended[merged] = survivor
	return nil
}

func TestHistorySink(t *testing.T) {
	sink := &fakeSink{loaded: map[string]string{"old": "kept"}, appended: map[string]string{}}
	st := store.NewMemory(
		person("a", "Alice Anders", []string{"x@y.com"}),
		person("b", "Bob Brown", []string{"x@y.com"}),
	)
	e := newEngine(t, st, WithHistorySink(sink))

	require.NoError(t, e.LoadHistory(context.Background()))
	assert.Equal(t, "kept", e.ResolveMergedID("old"))

	_, err := e.MergeEntities(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "a"}, sink.appended)

	sink.err = errors.New("redis down")
	assert.Error(t, e.LoadHistory(context.Background()))
}

func TestReconfigure(t *testing.T) {
	e := newEngine(t, store.NewMemory())

	bad := testConfig()
	bad.AutoMergeThreshold = 0.5
	bad.ManualReviewThreshold = 0.8
	assert.Error(t, e.Reconfigure(bad))

	good := testConfig()
	good.AutoMergeThreshold = 0.95
	require.NoError(t, e.Reconfigure(good))
	assert.Equal(t, 0.95, e.Config().AutoMergeThreshold)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"confidence above one", func(c *Config) { c.MinConfidence = 1.5 }, true},
		{"no workers", func(c *Config) { c.CompareWorkers = 0 }, true},
		{"unknown policy", func(c *Config) { c.ConflictPolicy = "newest" }, true},
		{"no blocking keys", func(c *Config) { c.BlockingKeys = nil }, true},
		{"unknown transform", func(c *Config) { c.BlockingKeys[0].Transform = "reverse" }, true},
		{"negative weight", func(c *Config) { c.FieldWeights["email"] = -1 }, true},
		{"thresholds inverted", func(c *Config) { c.ManualReviewThreshold = 0.95 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCompareSafely(t *testing.T) {
	m := matching.NewMatcher(matching.DefaultConfig())
	_, err := compareSafely(m, models.EntityTypePerson, nil, person("a", "A", nil))
	assert.ErrorIs(t, err, models.ErrInvalidEntity)
}
