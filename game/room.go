package game

import (
	"errors"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"pong-match-service/models"
)

var errRoomSettled = errors.New("room already settled")

// OutcomeKind classifies how a room ended.
type OutcomeKind int

const (
	OutcomeScore     OutcomeKind = iota // a side reached MaxScore
	OutcomeForfeit                      // grace expired with one side present
	OutcomeDraw                         // grace expired with both sides empty
	OutcomeAbandoned                    // dormant rematch room nobody came back to
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeScore:
		return "SCORE"
	case OutcomeForfeit:
		return "FORFEIT"
	case OutcomeDraw:
		return "DRAW"
	case OutcomeAbandoned:
		return "ABANDONED"
	}
	return "UNKNOWN"
}

// Outcome is the terminal state of a room, captured under the room lock.
type Outcome struct {
	Kind     OutcomeKind
	Winner   Side
	Score    [2]int
	Players  [2]int64
	Duration time.Duration
}

// HasWinner reports whether the outcome names a winning side.
func (o Outcome) HasWinner() bool {
	return o.Kind == OutcomeScore || o.Kind == OutcomeForfeit
}

func (o Outcome) WinnerID() *int64 {
	if !o.HasWinner() {
		return nil
	}
	id := o.Players[o.Winner]
	return &id
}

// Result is the record update written for this outcome.
func (o Outcome) Result() models.MatchResult {
	status := models.MatchStatusFinished
	if o.Kind == OutcomeDraw {
		status = models.MatchStatusDraw
	}
	return models.MatchResult{
		Status:       status,
		Player1Score: o.Score[SideLeft],
		Player2Score: o.Score[SideRight],
		WinnerID:     o.WinnerID(),
		Duration:     o.Duration,
	}
}

func (o Outcome) winnerLabel() string {
	if !o.HasWinner() {
		return "DRAW"
	}
	return o.Winner.String()
}

// FinishFunc runs once per terminal outcome, in the room goroutine and without the
// room lock held. Returning true keeps the room alive (it was reset for a rematch).
type FinishFunc func(r *Room, out Outcome) bool

type seat struct {
	userID int64
	conn   Conn
	y      float64
	up     bool
	down   bool
}

// Room is one live match. All state is guarded by mu; the tick loop, input handlers
// and the reconnect path all go through it.
type Room struct {
	ID   string
	Slot *models.SlotCoordinate

	mu            sync.Mutex
	matchID       string
	seats         [2]seat
	ball          Ball
	score         [2]int
	tick          uint64
	phase         phase
	userPaused    bool
	serve         serveTimer
	readyDeadline time.Time
	grace         graceState
	idleSince     time.Time // set while a rematch room waits for both players
	startedAt     time.Time

	clock       clockwork.Clock
	randFloat   func() float64
	rematchIdle time.Duration
	onFinish    FinishFunc

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// RoomConfig holds everything needed to open a room.
type RoomConfig struct {
	ID          string
	MatchID     string
	Players     [2]int64
	Slot        *models.SlotCoordinate
	Clock       clockwork.Clock
	RandFloat   func() float64
	RematchIdle time.Duration
	OnFinish    FinishFunc
}

// NewRoom builds a room with both seats assigned to identities but no connections
// bound yet. The first serve goes toward the right paddle.
func NewRoom(cfg RoomConfig) *Room {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RandFloat == nil {
		cfg.RandFloat = rand.Float64
	}
	if cfg.RematchIdle <= 0 {
		cfg.RematchIdle = DefaultRematchIdleTimeout
	}

	r := &Room{
		ID:          cfg.ID,
		Slot:        cfg.Slot,
		matchID:     cfg.MatchID,
		clock:       cfg.Clock,
		randFloat:   cfg.RandFloat,
		rematchIdle: cfg.RematchIdle,
		onFinish:    cfg.OnFinish,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	now := r.clock.Now()
	r.startedAt = now
	for s := range r.seats {
		r.seats[s] = seat{userID: cfg.Players[s], y: paddleStartY()}
	}
	r.phase = phaseLive
	r.startServe(now, 1)
	return r
}

// MatchID is the persisted record currently played in this room.
func (r *Room) MatchID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matchID
}

// Players returns the identities seated left and right.
func (r *Room) Players() [2]int64 {
	return [2]int64{r.seats[SideLeft].userID, r.seats[SideRight].userID}
}

// SideOf maps an identity to its seat. Seat identities never change after creation.
func (r *Room) SideOf(userID int64) (Side, bool) {
	for s := range r.seats {
		if r.seats[s].userID == userID {
			return Side(s), true
		}
	}
	return 0, false
}

// HasPlayers checks the seated pair, order-independent.
func (r *Room) HasPlayers(a, b int64) bool {
	p := r.Players()
	return (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a)
}

// Bind seats a connection at room creation.
func (r *Room) Bind(side Side, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seats[side].conn = conn
}

// Holder returns the connection currently bound to side, or nil.
func (r *Room) Holder(side Side) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seats[side].conn
}

func (r *Room) sideOfConnLocked(conn Conn) (Side, bool) {
	if conn == nil {
		return 0, false
	}
	for s := range r.seats {
		if r.seats[s].conn == conn {
			return Side(s), true
		}
	}
	return 0, false
}

func (r *Room) clearInputs() {
	for s := range r.seats {
		r.seats[s].up = false
		r.seats[s].down = false
	}
}

// SetInput records a held/released paddle key from the seat bound to conn.
func (r *Room) SetInput(conn Conn, dir Direction, pressed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	side, ok := r.sideOfConnLocked(conn)
	if !ok || r.phase == phaseSettling {
		return
	}
	switch dir {
	case DirUp:
		r.seats[side].up = pressed
	case DirDown:
		r.seats[side].down = pressed
	}
}

// SetPaused toggles the user pause from either seat and broadcasts the change at once.
func (r *Room) SetPaused(conn Conn, paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sideOfConnLocked(conn); !ok || r.phase == phaseSettling {
		return
	}
	r.setUserPausedLocked(r.clock.Now(), paused)
	r.broadcastLocked(r.snapshotLocked())
}

// Vacate unbinds conn from its seat. The first vacancy starts the grace countdown;
// it is never restarted while a seat stays empty.
func (r *Room) Vacate(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	side, ok := r.sideOfConnLocked(conn)
	if !ok || r.phase == phaseSettling {
		return false
	}
	now := r.clock.Now()
	r.seats[side].conn = nil
	r.seats[side].up = false
	r.seats[side].down = false

	r.serve.freeze(now)
	r.readyDeadline = time.Time{}
	r.phase = phaseWaitingReconnect
	if !r.grace.active {
		r.grace.start(now, ReconnectGrace)
	}
	r.idleSince = time.Time{}
	log.Printf("[Room %s] %s left, waiting %ds for reconnect", r.ID, side, r.grace.shown)
	r.broadcastLocked(r.snapshotLocked())
	return true
}

// Rebind attaches conn to side, returning whatever connection held it before.
// Once both seats are bound the room enters the READY handshake.
func (r *Room) Rebind(side Side, conn Conn) (Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == phaseSettling {
		return nil, errRoomSettled
	}
	now := r.clock.Now()
	prev := r.seats[side].conn
	r.seats[side].conn = conn
	r.seats[side].up = false
	r.seats[side].down = false

	if r.seats[SideLeft].conn != nil && r.seats[SideRight].conn != nil {
		r.grace.clear()
		r.idleSince = time.Time{}
		r.enterReady(now)
	} else if !r.grace.active {
		// first player back into a dormant rematch room
		r.phase = phaseWaitingReconnect
		r.grace.start(now, ReconnectGrace)
		r.idleSince = time.Time{}
	}
	r.broadcastLocked(r.snapshotLocked())
	return prev, nil
}

// ResetForRematch starts a fresh record in the same room after a tournament draw.
// Both seats are empty; the room stays dormant until a player returns.
func (r *Room) ResetForRematch(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	r.matchID = matchID
	r.score = [2]int{}
	r.userPaused = false
	r.readyDeadline = time.Time{}
	r.grace.clear()
	for s := range r.seats {
		r.seats[s].conn = nil
		r.seats[s].up = false
		r.seats[s].down = false
		r.seats[s].y = paddleStartY()
	}
	r.startedAt = now
	r.idleSince = now
	r.phase = phaseWaitingReconnect
	r.startServe(now, 1)
}

// Snapshot returns the current state broadcast.
func (r *Room) Snapshot() StateMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() StateMsg {
	return StateMsg{
		Type:   "game:state",
		Tick:   r.tick,
		Paused: r.pausedLocked(),
		Reason: r.reasonLocked(),
		Ball: BallView{
			X: r.ball.X, Y: r.ball.Y,
			VX: r.ball.VX, VY: r.ball.VY,
			R: BallRadius,
		},
		P1:    PaddleView{Y: r.seats[SideLeft].y},
		P2:    PaddleView{Y: r.seats[SideRight].y},
		Score: ScoreView{P1: r.score[SideLeft], P2: r.score[SideRight]},
	}
}

// broadcastLocked fans a message out to bound seats. Send never blocks.
func (r *Room) broadcastLocked(msg Outbound) {
	for s := range r.seats {
		if c := r.seats[s].conn; c != nil {
			_ = c.Send(msg)
		}
	}
}

// step advances the room by one tick. It returns the terminal outcome exactly once.
func (r *Room) step() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == phaseSettling {
		return Outcome{}, false
	}
	now := r.clock.Now()
	r.tick++

	if out, done := r.advanceTimersLocked(now); done {
		r.settleLocked(out)
		return out, true
	}
	if !r.pausedLocked() {
		if out, done := r.simulateLocked(now); done {
			r.settleLocked(out)
			return out, true
		}
	}
	r.broadcastLocked(r.snapshotLocked())
	return Outcome{}, false
}

func (r *Room) advanceTimersLocked(now time.Time) (Outcome, bool) {
	switch r.phase {
	case phaseWaitingReconnect:
		if r.grace.active {
			if r.grace.expired(now) {
				return r.graceOutcomeLocked(now), true
			}
			r.grace.refresh(now)
			return Outcome{}, false
		}
		if !r.idleSince.IsZero() && now.Sub(r.idleSince) >= r.rematchIdle {
			return r.outcomeLocked(now, OutcomeAbandoned, 0), true
		}
	case phaseReady:
		if !now.Before(r.readyDeadline) {
			r.leaveReady(now)
		}
	case phaseServing:
		if !r.userPaused && r.serve.due(now) {
			r.launchServe()
		}
	}
	return Outcome{}, false
}

// graceOutcomeLocked decides the expired grace period: a draw when nobody is seated,
// otherwise a forfeit win for whoever stayed.
func (r *Room) graceOutcomeLocked(now time.Time) Outcome {
	left := r.seats[SideLeft].conn != nil
	right := r.seats[SideRight].conn != nil
	switch {
	case left && !right:
		return r.outcomeLocked(now, OutcomeForfeit, SideLeft)
	case right && !left:
		return r.outcomeLocked(now, OutcomeForfeit, SideRight)
	default:
		return r.outcomeLocked(now, OutcomeDraw, 0)
	}
}

func (r *Room) outcomeLocked(now time.Time, kind OutcomeKind, winner Side) Outcome {
	return Outcome{
		Kind:     kind,
		Winner:   winner,
		Score:    r.score,
		Players:  r.Players(),
		Duration: now.Sub(r.startedAt),
	}
}

func (r *Room) simulateLocked(now time.Time) (Outcome, bool) {
	for s := range r.seats {
		st := &r.seats[s]
		st.y = movePaddle(st.y, st.up, st.down)
	}

	r.ball.X += r.ball.VX
	r.ball.Y += r.ball.VY
	r.ball.bounceWalls()
	r.ball.collidePaddles(r.seats[SideLeft].y, r.seats[SideRight].y)

	conceded, out := r.ball.exited()
	if !out {
		return Outcome{}, false
	}
	scorer := conceded.Opponent()
	r.score[scorer]++
	if r.score[scorer] >= MaxScore {
		return r.outcomeLocked(now, OutcomeScore, scorer), true
	}

	// next serve travels toward the side that conceded
	direction := 1
	if conceded == SideLeft {
		direction = -1
	}
	r.startServe(now, direction)
	return Outcome{}, false
}

// settleLocked freezes the room for good and tells both seats how it ended. No timer
// survives this point.
func (r *Room) settleLocked(out Outcome) {
	r.phase = phaseSettling
	r.serve.clear()
	r.grace.clear()
	r.readyDeadline = time.Time{}
	r.idleSince = time.Time{}
	r.clearInputs()
	if out.Kind == OutcomeAbandoned {
		return
	}
	r.broadcastLocked(GameOverMsg{
		Type:   "game:over",
		Winner: out.winnerLabel(),
		Score:  ScoreView{P1: out.Score[SideLeft], P2: out.Score[SideRight]},
	})
}

// Run drives the room at TickInterval until it settles for good or Stop is called.
func (r *Room) Run() {
	defer close(r.done)
	ticker := r.clock.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.Chan():
			out, done := r.step()
			if !done {
				continue
			}
			log.Printf("[Room %s] match %s over: %s %v", r.ID, r.MatchID(), out.Kind, out.Score)
			if r.onFinish == nil || !r.onFinish(r, out) {
				return
			}
		}
	}
}

// Stop ends the tick loop without settling the room.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Done is closed once Run has returned.
func (r *Room) Done() <-chan struct{} {
	return r.done
}
