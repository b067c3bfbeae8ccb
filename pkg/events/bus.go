// Package events dispatches resolution lifecycle notifications to registered handlers
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Event names
const (
	SessionStarted   = "session.started"
	SessionCompleted = "session.completed"
	SessionFailed    = "session.failed"
	MergeCompleted   = "merge.completed"
	MatchesFound     = "matches.found"
)

// SessionHandler receives a copy of the session
type SessionHandler func(ctx context.Context, session models.ResolutionSession)

// MergeHandler receives a copy of a successful merge result
type MergeHandler func(ctx context.Context, result models.MergeResult)

// MatchesHandler receives the matches found for one entity type in a session
type MatchesHandler func(ctx context.Context, matches []models.EntityMatch)

// Bus holds typed handler registrations. Handlers run synchronously in registration
// order and a panicking handler does not affect the others.
type Bus struct {
	mu        sync.RWMutex
	started   []SessionHandler
	completed []SessionHandler
	failed    []SessionHandler
	merges    []MergeHandler
	matches   []MatchesHandler
	logger    ectologger.Logger
}

// NewBus creates an empty bus
func NewBus(logger ectologger.Logger) *Bus {
	return &Bus{logger: logger}
}

func (b *Bus) OnSessionStarted(h SessionHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = append(b.started, h)
}

func (b *Bus) OnSessionCompleted(h SessionHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = append(b.completed, h)
}

// OnSessionFailed also receives cancelled sessions
func (b *Bus) OnSessionFailed(h SessionHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed = append(b.failed, h)
}

func (b *Bus) OnMergeCompleted(h MergeHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.merges = append(b.merges, h)
}

func (b *Bus) OnMatchesFound(h MatchesHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matches = append(b.matches, h)
}

func (b *Bus) EmitSessionStarted(ctx context.Context, session models.ResolutionSession) {
	b.emitSession(ctx, SessionStarted, b.snapshot(&b.started), session)
}

func (b *Bus) EmitSessionCompleted(ctx context.Context, session models.ResolutionSession) {
	b.emitSession(ctx, SessionCompleted, b.snapshot(&b.completed), session)
}

func (b *Bus) EmitSessionFailed(ctx context.Context, session models.ResolutionSession) {
	b.emitSession(ctx, SessionFailed, b.snapshot(&b.failed), session)
}

func (b *Bus) EmitMergeCompleted(ctx context.Context, result models.MergeResult) {
	b.mu.RLock()
	handlers := append([]MergeHandler(nil), b.merges...)
	b.mu.RUnlock()

	for _, h := range handlers {
		r := result
		r.NewEntity = result.NewEntity.Clone()
		r.FieldsConflicted = append([]string(nil), result.FieldsConflicted...)
		r.FieldsResolved = append([]string(nil), result.FieldsResolved...)
		b.safely(ctx, MergeCompleted, func() { h(ctx, r) })
	}
}

func (b *Bus) EmitMatchesFound(ctx context.Context, matches []models.EntityMatch) {
	if len(matches) == 0 {
		return
	}

	b.mu.RLock()
	handlers := append([]MatchesHandler(nil), b.matches...)
	b.mu.RUnlock()

	for _, h := range handlers {
		cp := make([]models.EntityMatch, len(matches))
		for i, m := range matches {
			cp[i] = m
			cp[i].MatchReasons = append([]models.MatchReason(nil), m.MatchReasons...)
		}
		b.safely(ctx, MatchesFound, func() { h(ctx, cp) })
	}
}

func (b *Bus) snapshot(list *[]SessionHandler) []SessionHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]SessionHandler(nil), (*list)...)
}

func (b *Bus) emitSession(ctx context.Context, event string, handlers []SessionHandler, session models.ResolutionSession) {
	for _, h := range handlers {
		s := session.Snapshot()
		b.safely(ctx, event, func() { h(ctx, s) })
	}
}

func (b *Bus) safely(ctx context.Context, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithContext(ctx).WithError(fmt.Errorf("%v", r)).WithField("event", event).Error("Event handler panicked")
		}
	}()
	fn()
}
