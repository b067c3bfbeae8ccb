package resolution

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
)

// mergeHistory maps merged ids to their survivor. Entries are only ever added.
type mergeHistory struct {
	mu      sync.RWMutex
	entries map[string]string
	sink    HistorySink
	logger  ectologger.Logger
}

func newMergeHistory(logger ectologger.Logger) *mergeHistory {
	return &mergeHistory{entries: make(map[string]string), logger: logger}
}

func (h *mergeHistory) load(ctx context.Context) error {
	if h.sink == nil {
		return nil
	}
	entries, err := h.sink.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load merge history: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for merged, survivor := range entries {
		h.entries[merged] = survivor
	}
	return nil
}

// record stores the entry locally first; a failing sink is logged and does not undo it
func (h *mergeHistory) record(ctx context.Context, mergedID, survivorID string) {
	h.mu.Lock()
	h.entries[mergedID] = survivorID
	h.mu.Unlock()

	if h.sink == nil {
		return
	}
	if err := h.sink.Append(ctx, mergedID, survivorID); err != nil {
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"merged_id":   mergedID,
			"survivor_id": survivorID,
		}).Warn("Failed to persist merge history entry")
	}
}

func (h *mergeHistory) snapshot() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.entries))
	for k, v := range h.entries {
		out[k] = v
	}
	return out
}

// resolve follows the chain of merges. A cycle stops at the last id before it repeats.
func (h *mergeHistory) resolve(id string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := map[string]bool{id: true}
	current := id
	for {
		next, ok := h.entries[current]
		if !ok || seen[next] {
			return current
		}
		seen[next] = true
		current = next
	}
}

// pendingDeletes tracks merged ids whose delete failed after the survivor was written
type pendingDeletes struct {
	mu      sync.Mutex
	entries map[string]string
}

func newPendingDeletes() *pendingDeletes {
	return &pendingDeletes{entries: make(map[string]string)}
}

func (p *pendingDeletes) add(mergedID, survivorID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[mergedID] = survivorID
	metrics.PendingDeletes.Set(float64(len(p.entries)))
}

func (p *pendingDeletes) remove(mergedID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, mergedID)
	metrics.PendingDeletes.Set(float64(len(p.entries)))
}

func (p *pendingDeletes) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.entries))
	for id := range p.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
