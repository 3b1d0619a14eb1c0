// Package activity keeps an in-memory feed of recent index passes, clears
// and agent state changes for the UI.
package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentoven/ragjenkins/pkg/models"
)

// Kind classifies an entry.
type Kind string

const (
	KindIndex Kind = "index"
	KindClear Kind = "clear"
	KindAgent Kind = "agent"
	KindTool  Kind = "tool"
)

// Entry is one feed item.
type Entry struct {
	Seq        uint64    `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       Kind      `json:"kind"`
	Collection string    `json:"collection,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	State      string    `json:"state,omitempty"`
	Message    string    `json:"message"`
}

// Feed is a ring buffer of the last N entries with live subscribers.
// Nothing is persisted.
type Feed struct {
	mu          sync.RWMutex
	entries     []Entry
	maxEntries  int
	seq         uint64
	subscribers map[chan Entry]struct{}
}

// NewFeed creates a feed that retains up to maxEntries entries.
func NewFeed(maxEntries int) *Feed {
	if maxEntries <= 0 {
		maxEntries = 200
	}
	return &Feed{
		entries:     make([]Entry, 0, maxEntries),
		maxEntries:  maxEntries,
		subscribers: make(map[chan Entry]struct{}),
	}
}

// Add stamps an entry and broadcasts it.
func (f *Feed) Add(e Entry) Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	e.Seq = f.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if len(f.entries) >= f.maxEntries {
		f.entries = f.entries[1:]
	}
	f.entries = append(f.entries, e)

	for ch := range f.subscribers {
		select {
		case ch <- e:
		default:
			// slow subscriber misses this entry
		}
	}
	return e
}

// Recent returns up to the last n entries, oldest first. n <= 0 means all.
func (f *Feed) Recent(n int) []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	total := len(f.entries)
	if n <= 0 || n > total {
		n = total
	}
	result := make([]Entry, n)
	copy(result, f.entries[total-n:])
	return result
}

// Subscribe returns a channel of new entries. Call Unsubscribe when done.
func (f *Feed) Subscribe() chan Entry {
	ch := make(chan Entry, 64)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *Feed) Unsubscribe(ch chan Entry) {
	f.mu.Lock()
	if _, ok := f.subscribers[ch]; ok {
		delete(f.subscribers, ch)
		close(ch)
	}
	f.mu.Unlock()
}

// ── Recorders ───────────────────────────────────────────────

// Indexed records a finished index pass.
func (f *Feed) Indexed(result *models.IndexResult) {
	f.Add(Entry{Kind: KindIndex, Collection: result.Collection, Message: result.StatusMessage})
}

// Cleared records a collection clear.
func (f *Feed) Cleared(collection string) {
	f.Add(Entry{Kind: KindClear, Collection: collection, Message: fmt.Sprintf("Collection %q cleared.", collection)})
}

// StateChanged implements agent.Observer.
func (f *Feed) StateChanged(_ context.Context, runID string, state models.AgentState, detail string) {
	msg := string(state)
	if detail != "" {
		msg += ": " + detail
	}
	f.Add(Entry{Kind: KindAgent, RunID: runID, State: string(state), Message: msg})
}

// ToolCalled implements agent.Observer.
func (f *Feed) ToolCalled(_ context.Context, runID string, inv models.ToolInvocation) {
	status := "ok"
	if inv.IsError {
		status = "error"
	}
	f.Add(Entry{Kind: KindTool, RunID: runID, State: status, Message: fmt.Sprintf("%s (%d ms)", inv.Tool, inv.LatencyMs)})
}

// RunFinished implements agent.Observer. The final state is already
// recorded by StateChanged.
func (f *Feed) RunFinished(context.Context, *models.AgentTurn) {}
