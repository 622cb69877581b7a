package game

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"pong-match-service/models"
)

var errFakeClosed = errors.New("fake conn closed")

type fakeConn struct {
	mu     sync.Mutex
	sent   []Outbound
	pings  int
	closed bool
}

func newFakeConn() *fakeConn { return &fakeConn{} }

func (f *fakeConn) Send(msg Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errFakeClosed
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeConn) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeConn) messages() []Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Outbound(nil), f.sent...)
}

func (f *fakeConn) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

// lastOf returns the newest message of type T sent to conn.
func lastOf[T Outbound](f *fakeConn) (T, bool) {
	msgs := f.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if m, ok := msgs[i].(T); ok {
			return m, true
		}
	}
	var zero T
	return zero, false
}

// countOf returns how many messages of type T were sent to conn.
func countOf[T Outbound](f *fakeConn) int {
	n := 0
	for _, m := range f.messages() {
		if _, ok := m.(T); ok {
			n++
		}
	}
	return n
}

type fakeStore struct {
	mu        sync.Mutex
	matches   map[string]*models.Match
	finished  map[string]models.MatchResult
	createErr error
	claimErr  error
	finishErr error
	gate      chan struct{} // when set, ClaimSlot waits on it
	claims    int

	finishGate chan struct{} // when set, FinishMatch waits on it
	finishing  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		matches:  make(map[string]*models.Match),
		finished: make(map[string]models.MatchResult),
	}
}

func (s *fakeStore) newMatch(p1, p2 int64, slot *models.SlotCoordinate) *models.Match {
	m := &models.Match{ID: uuid.NewString(), Status: models.MatchStatusOngoing, Player1ID: p1, Player2ID: p2}
	if slot != nil {
		m.TournamentID = &slot.TournamentID
		m.Bracket = &slot.Bracket
		m.Round = &slot.Round
		m.Slot = &slot.Slot
	}
	s.matches[m.ID] = m
	return m
}

func (s *fakeStore) CreateMatch(_ context.Context, p1, p2 int64) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.newMatch(p1, p2, nil), nil
}

func (s *fakeStore) ClaimSlot(ctx context.Context, slot models.SlotCoordinate, p1, p2 int64) (*models.Match, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return s.newMatch(p1, p2, &slot), nil
}

func (s *fakeStore) FinishMatch(ctx context.Context, id string, result models.MatchResult) error {
	s.mu.Lock()
	s.finishing++
	gate := s.finishGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishErr != nil {
		return s.finishErr
	}
	s.finished[id] = result
	return nil
}

func (s *fakeStore) CreateRematch(_ context.Context, id string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.matches[id]
	if !ok {
		return nil, models.ErrMatchNotFound
	}
	slot, _ := prev.Coordinate()
	return s.newMatch(prev.Player1ID, prev.Player2ID, &slot), nil
}

func (s *fakeStore) finishCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishing
}

func (s *fakeStore) result(id string) (models.MatchResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.finished[id]
	return r, ok
}

type advanceCall struct {
	slot     models.SlotCoordinate
	winnerID int64
}

type fakeBracket struct {
	mu    sync.Mutex
	calls []advanceCall
	err   error
}

func (b *fakeBracket) AdvanceBracket(_ context.Context, slot models.SlotCoordinate, winnerID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, advanceCall{slot: slot, winnerID: winnerID})
	return b.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(event string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fakeArchiver struct {
	mu  sync.Mutex
	ids []string
}

func (a *fakeArchiver) ArchiveMatch(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, id)
	return nil
}

type deferred struct {
	matchID  string
	result   models.MatchResult
	slot     *models.SlotCoordinate
	winnerID *int64
}

type fakeBacklog struct {
	mu    sync.Mutex
	items []deferred
}

func (b *fakeBacklog) Defer(id string, result models.MatchResult, slot *models.SlotCoordinate, winnerID *int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, deferred{matchID: id, result: result, slot: slot, winnerID: winnerID})
}
