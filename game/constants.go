// Package game runs the authoritative side of the paddle game: matchmaking,
// per-match simulation, serve and pause handling, and the reconnect grace period.
package game

import (
	"math"
	"time"
)

// Field and body dimensions, in field units.
const (
	FieldWidth  = 800.0
	FieldHeight = 600.0

	PaddleWidth  = 20.0
	PaddleHeight = 100.0
	PaddleMargin = 40.0
	PaddleSpeed  = 6.0 // per tick

	BallRadius   = 10.0
	BallSpeed    = 5.0
	BallSpeedup  = 1.06
	BallMaxSpeed = 14.0

	MaxScore = 8
)

// Timings
const (
	TickInterval      = 16 * time.Millisecond
	ServeDelay        = 1200 * time.Millisecond
	ReadyHandshake    = 1200 * time.Millisecond
	ReconnectGrace    = 60 * time.Second
	HeartbeatInterval = 5 * time.Second

	DefaultRematchIdleTimeout = 10 * time.Minute
)

const serveMaxAngle = math.Pi / 6

// Side is one of the two player positions inside a room.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

// String is the wire label of the side.
func (s Side) String() string {
	if s == SideLeft {
		return "P1"
	}
	return "P2"
}

// Opponent returns the other side.
func (s Side) Opponent() Side {
	return 1 - s
}
