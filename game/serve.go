package game

import (
	"fmt"
	"math"
	"time"
)

// phase is the room's ball/flow state. A user pause is an overlay on top of it
// (Room.userPaused) so that a pause can suspend a serve without discarding it.
type phase int

const (
	phaseLive phase = iota
	phaseServing
	phaseReady
	phaseWaitingReconnect
	phaseSettling
)

func (p phase) String() string {
	switch p {
	case phaseLive:
		return "LIVE"
	case phaseServing:
		return "SERVING"
	case phaseReady:
		return "READY"
	case phaseWaitingReconnect:
		return "WAITING_RECONNECT"
	case phaseSettling:
		return "SETTLING"
	}
	return "UNKNOWN"
}

// serveTimer is the single source of truth for the pending serve. While running,
// startedAt+scheduled is the fire time; while frozen, remaining is what is left.
type serveTimer struct {
	pending   bool
	direction int
	startedAt time.Time
	scheduled time.Duration
	frozen    bool
	remaining time.Duration
}

func (t *serveTimer) start(now time.Time, direction int, delay time.Duration) {
	*t = serveTimer{
		pending:   true,
		direction: direction,
		startedAt: now,
		scheduled: delay,
	}
}

// freeze captures remaining = scheduled - (now - startedAt).
func (t *serveTimer) freeze(now time.Time) {
	if !t.pending || t.frozen {
		return
	}
	elapsed := now.Sub(t.startedAt)
	t.remaining = t.scheduled - elapsed
	if t.remaining < 0 {
		t.remaining = 0
	}
	t.frozen = true
}

func (t *serveTimer) resume(now time.Time) {
	if !t.pending || !t.frozen {
		return
	}
	t.startedAt = now
	t.scheduled = t.remaining
	t.remaining = 0
	t.frozen = false
}

func (t *serveTimer) due(now time.Time) bool {
	return t.pending && !t.frozen && now.Sub(t.startedAt) >= t.scheduled
}

func (t *serveTimer) clear() {
	*t = serveTimer{}
}

func serveReason(direction int) string {
	if direction > 0 {
		return "RIGHT SERVES"
	}
	return "LEFT SERVES"
}

// graceState is the per-room disconnect countdown. One deadline per room; it is
// set on the first vacancy and cleared only when both slots are occupied again.
type graceState struct {
	active   bool
	deadline time.Time
	shown    int // seconds currently displayed, refreshed once per second
}

func (g *graceState) start(now time.Time, d time.Duration) {
	g.active = true
	g.deadline = now.Add(d)
	g.shown = int(math.Ceil(d.Seconds()))
}

// refresh updates the displayed seconds and reports whether the value changed.
func (g *graceState) refresh(now time.Time) bool {
	left := int(math.Ceil(g.deadline.Sub(now).Seconds()))
	if left < 0 {
		left = 0
	}
	if left == g.shown {
		return false
	}
	g.shown = left
	return true
}

func (g *graceState) expired(now time.Time) bool {
	return g.active && !now.Before(g.deadline)
}

func (g *graceState) clear() {
	*g = graceState{}
}

func (g *graceState) reason() string {
	return fmt.Sprintf("WAITING %ds FOR RECONNECT", g.shown)
}

// startServe parks the ball and schedules a launch toward direction. The serve starts
// frozen when something else already holds the ball (pause, handshake, vacancy).
func (r *Room) startServe(now time.Time, direction int) {
	r.ball.center()
	r.serve.start(now, direction, ServeDelay)
	switch {
	case r.phase == phaseWaitingReconnect || r.phase == phaseReady:
		r.serve.freeze(now)
	case r.userPaused:
		r.phase = phaseServing
		r.serve.freeze(now)
	default:
		r.phase = phaseServing
	}
}

// launchServe fires the pending serve along a random angle within ±30°.
func (r *Room) launchServe() {
	angle := (r.randFloat()*2 - 1) * serveMaxAngle
	r.ball.launch(r.serve.direction, angle)
	r.serve.clear()
	r.phase = phaseLive
}

// setUserPausedLocked toggles the user pause overlay. Pausing mid-serve freezes the
// remaining serve time; unpausing resumes it with exactly that much left.
func (r *Room) setUserPausedLocked(now time.Time, paused bool) {
	if paused == r.userPaused {
		return
	}
	r.userPaused = paused
	if paused {
		r.clearInputs()
		r.serve.freeze(now)
		return
	}
	if r.phase == phaseServing {
		r.serve.resume(now)
	}
}

// enterReady starts the post-reconnect handshake window.
func (r *Room) enterReady(now time.Time) {
	r.serve.freeze(now)
	r.phase = phaseReady
	r.readyDeadline = now.Add(ReadyHandshake)
}

// leaveReady ends the handshake: resume the suspended serve, resume live play, or stay
// paused under the user pause overlay.
func (r *Room) leaveReady(now time.Time) {
	r.readyDeadline = time.Time{}
	if r.serve.pending {
		r.phase = phaseServing
		if !r.userPaused {
			r.serve.resume(now)
		}
		return
	}
	r.phase = phaseLive
}

// reasonLocked is the human-readable pause reason for the snapshot.
func (r *Room) reasonLocked() string {
	switch r.phase {
	case phaseWaitingReconnect:
		if r.grace.active {
			return r.grace.reason()
		}
		return "WAITING FOR PLAYERS"
	case phaseReady:
		return "READY"
	case phaseSettling:
		return ""
	}
	if r.userPaused {
		return "PAUSED"
	}
	if r.phase == phaseServing {
		return serveReason(r.serve.direction)
	}
	return ""
}

func (r *Room) pausedLocked() bool {
	return r.phase != phaseLive || r.userPaused
}
