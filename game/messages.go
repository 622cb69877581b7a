package game

import (
	"encoding/json"
	"errors"
	"fmt"

	"pong-match-service/models"
)

// ErrMalformedMessage is returned for payloads that cannot be routed. Callers drop them.
var ErrMalformedMessage = errors.New("malformed message")

// Inbound is the closed set of client messages.
type Inbound interface {
	inbound()
}

type (
	PingMsg       struct{}
	QueueJoinMsg  struct{}
	QueueLeaveMsg struct{}
	ReconnectMsg  struct{}

	TournamentJoinMsg struct {
		Slot models.SlotCoordinate
	}

	InputMsg struct {
		Dir     Direction
		Pressed bool
	}

	PauseMsg struct {
		Paused bool
	}
)

func (PingMsg) inbound()           {}
func (QueueJoinMsg) inbound()      {}
func (QueueLeaveMsg) inbound()     {}
func (ReconnectMsg) inbound()      {}
func (TournamentJoinMsg) inbound() {}
func (InputMsg) inbound()          {}
func (PauseMsg) inbound()          {}

// Direction is a held paddle key.
type Direction string

const (
	DirUp   Direction = "up"
	DirDown Direction = "down"
)

type rawInbound struct {
	Type         string `json:"type"`
	Dir          string `json:"dir"`
	Pressed      *bool  `json:"pressed"`
	Paused       *bool  `json:"paused"`
	TournamentID int64  `json:"tournamentId"`
	Bracket      string `json:"bracket"`
	Round        int    `json:"round"`
	Slot         int    `json:"slot"`
}

// DecodeInbound parses one client frame.
func DecodeInbound(data []byte) (Inbound, error) {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch raw.Type {
	case "ping":
		return PingMsg{}, nil
	case "queue:join":
		return QueueJoinMsg{}, nil
	case "queue:leave":
		return QueueLeaveMsg{}, nil
	case "match:reconnect":
		return ReconnectMsg{}, nil
	case "tournament:join":
		slot := models.SlotCoordinate{
			TournamentID: raw.TournamentID,
			Bracket:      raw.Bracket,
			Round:        raw.Round,
			Slot:         raw.Slot,
		}
		if !slot.Valid() {
			return nil, fmt.Errorf("%w: invalid tournament slot %s", ErrMalformedMessage, slot)
		}
		return TournamentJoinMsg{Slot: slot}, nil
	case "game:input":
		dir := Direction(raw.Dir)
		if (dir != DirUp && dir != DirDown) || raw.Pressed == nil {
			return nil, fmt.Errorf("%w: bad input payload", ErrMalformedMessage)
		}
		return InputMsg{Dir: dir, Pressed: *raw.Pressed}, nil
	case "game:pause":
		if raw.Paused == nil {
			return nil, fmt.Errorf("%w: missing paused flag", ErrMalformedMessage)
		}
		return PauseMsg{Paused: *raw.Paused}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, raw.Type)
	}
}

// Outbound is the closed set of server messages. Each variant marshals with its "type" tag.
type Outbound interface {
	MessageType() string
}

// Denial reasons carried by match:reconnect_denied.
const (
	ReasonAuthMissing      = "AUTH_MISSING"
	ReasonSelfMatch        = "CANNOT_MATCH_YOURSELF"
	ReasonSlotConflict     = "SLOT_CONFLICT"
	ReasonSlotBusy         = "SLOT_BUSY"
	ReasonAlreadyFinished  = "ALREADY_FINISHED"
	ReasonNoActiveMatch    = "NO_ACTIVE_MATCH"
	ReasonAlreadyInMatch   = "ALREADY_IN_MATCH"
	ReasonPersistenceError = "PERSISTENCE_FAILURE"
)

type ConnectedMsg struct {
	Type string `json:"type"`
}

type PongMsg struct {
	Type string `json:"type"`
}

type QueueJoinedMsg struct {
	Type string                 `json:"type"`
	Slot *models.SlotCoordinate `json:"slot,omitempty"`
}

type QueueLeftMsg struct {
	Type string `json:"type"`
}

type MatchFoundMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"matchId"`
	YouAre  string `json:"youAre"`
}

type ReconnectDeniedMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type BallView struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
	R  float64 `json:"r"`
}

type PaddleView struct {
	Y float64 `json:"y"`
}

type ScoreView struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

type StateMsg struct {
	Type   string     `json:"type"`
	Tick   uint64     `json:"tick"`
	Paused bool       `json:"paused"`
	Reason string     `json:"reason,omitempty"`
	Ball   BallView   `json:"ball"`
	P1     PaddleView `json:"p1"`
	P2     PaddleView `json:"p2"`
	Score  ScoreView  `json:"score"`
}

// GameOverMsg.Winner is "P1", "P2" or "DRAW".
type GameOverMsg struct {
	Type   string    `json:"type"`
	Winner string    `json:"winner"`
	Score  ScoreView `json:"score"`
}

func (ConnectedMsg) MessageType() string       { return "connected" }
func (PongMsg) MessageType() string            { return "pong" }
func (QueueJoinedMsg) MessageType() string     { return "queue:joined" }
func (QueueLeftMsg) MessageType() string       { return "queue:left" }
func (MatchFoundMsg) MessageType() string      { return "match:found" }
func (ReconnectDeniedMsg) MessageType() string { return "match:reconnect_denied" }
func (StateMsg) MessageType() string           { return "game:state" }
func (GameOverMsg) MessageType() string        { return "game:over" }

func connected() ConnectedMsg { return ConnectedMsg{Type: "connected"} }
func pong() PongMsg           { return PongMsg{Type: "pong"} }
func queueLeft() QueueLeftMsg { return QueueLeftMsg{Type: "queue:left"} }

func queueJoined(slot *models.SlotCoordinate) QueueJoinedMsg {
	return QueueJoinedMsg{Type: "queue:joined", Slot: slot}
}

func matchFound(roomID string, side Side) MatchFoundMsg {
	return MatchFoundMsg{Type: "match:found", MatchID: roomID, YouAre: side.String()}
}

func denied(reason string) ReconnectDeniedMsg {
	return ReconnectDeniedMsg{Type: "match:reconnect_denied", Reason: reason}
}

// EncodeOutbound marshals a server message for the wire.
func EncodeOutbound(msg Outbound) ([]byte, error) {
	return json.Marshal(msg)
}
