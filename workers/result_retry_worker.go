// workers/result_retry_worker.go
package workers

import (
	"context"
	"log"
	"pong-match-service/models"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type resultWriter interface {
	FinishMatch(ctx context.Context, matchID string, result models.MatchResult) error
}

type bracketAdvancer interface {
	AdvanceBracket(ctx context.Context, slot models.SlotCoordinate, winnerID int64) error
}

type pendingResult struct {
	result   models.MatchResult
	slot     *models.SlotCoordinate
	winnerID *int64
	written  bool // FinishMatch went through, only advancement is left
	attempts int
}

// ResultRetryWorker keeps terminal match writes that failed and retries them on a
// ticker until they land, then replays bracket advancement for tournament wins.
type ResultRetryWorker struct {
	store    resultWriter
	bracket  bracketAdvancer
	interval time.Duration
	clock    clockwork.Clock

	mu      sync.Mutex
	pending map[string]*pendingResult
}

func NewResultRetryWorker(store resultWriter, bracket bracketAdvancer, interval time.Duration) *ResultRetryWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ResultRetryWorker{
		store:    store,
		bracket:  bracket,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		pending:  make(map[string]*pendingResult),
	}
}

// WithClock swaps the ticker clock, for tests.
func (w *ResultRetryWorker) WithClock(clock clockwork.Clock) *ResultRetryWorker {
	w.clock = clock
	return w
}

// Defer queues a result. A newer result for the same match replaces the queued one.
func (w *ResultRetryWorker) Defer(matchID string, result models.MatchResult, slot *models.SlotCoordinate, winnerID *int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[matchID] = &pendingResult{result: result, slot: slot, winnerID: winnerID}
	log.Printf("⚠️ [Retry] queued result for match %s (%d pending)", matchID, len(w.pending))
}

// Pending reports how many results are waiting.
func (w *ResultRetryWorker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *ResultRetryWorker) Start(ctx context.Context) {
	log.Printf("🔁 Starting Result Retry Worker (every %s)…", w.interval)
	go w.run(ctx)
}

func (w *ResultRetryWorker) run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			w.Flush(ctx)
		case <-ctx.Done():
			log.Println("🛑 Result Retry Worker stopped")
			return
		}
	}
}

// Flush makes one pass over the queue.
func (w *ResultRetryWorker) Flush(ctx context.Context) {
	w.mu.Lock()
	ids := make([]string, 0, len(w.pending))
	for id := range w.pending {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		w.retry(ctx, id)
	}
}

func (w *ResultRetryWorker) retry(ctx context.Context, matchID string) {
	w.mu.Lock()
	item, ok := w.pending[matchID]
	if !ok {
		w.mu.Unlock()
		return
	}
	item.attempts++
	it := *item
	w.mu.Unlock()

	if !it.written {
		if err := w.store.FinishMatch(ctx, matchID, it.result); err != nil {
			log.Printf("❌ [Retry] match %s attempt %d: %v", matchID, it.attempts, err)
			return
		}
		w.mu.Lock()
		item.written = true
		w.mu.Unlock()
	}

	if it.slot != nil && it.winnerID != nil && w.bracket != nil {
		if err := w.bracket.AdvanceBracket(ctx, *it.slot, *it.winnerID); err != nil {
			log.Printf("❌ [Retry] advance from %s attempt %d: %v", it.slot, it.attempts, err)
			return
		}
	}

	w.mu.Lock()
	if w.pending[matchID] == item {
		delete(w.pending, matchID)
	}
	w.mu.Unlock()
	log.Printf("✅ [Retry] match %s settled after %d attempts", matchID, it.attempts)
}
