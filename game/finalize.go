package game

import (
	"context"
	"log"
)

// finalize is the room's FinishFunc. game:over has already gone out, so both players
// are released for the queue before any I/O. It then persists the result, advances the
// bracket and, for a tournament draw, turns the room into a rematch. It returns true
// only in that last case.
func (c *Coordinator) finalize(room *Room, out Outcome) bool {
	if out.Kind == OutcomeAbandoned {
		log.Printf("[Match] rematch room %s abandoned, nobody returned", room.ID)
		c.deregister(room)
		return false
	}
	c.releasePlayers(room)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	matchID := room.MatchID()
	result := out.Result()
	winnerID := out.WinnerID()

	persisted := true
	if err := c.store.FinishMatch(ctx, matchID, result); err != nil {
		persisted = false
		log.Printf("[Match] failed to store result of %s: %v", matchID, err)
		c.deferResult(matchID, out, room)
	}

	if persisted && room.Slot != nil && winnerID != nil && c.bracket != nil {
		if err := c.bracket.AdvanceBracket(ctx, *room.Slot, *winnerID); err != nil {
			log.Printf("[Tournament] advance from %s failed: %v", room.Slot, err)
			c.deferResult(matchID, out, room)
		}
	}

	c.publish(EventMatchFinished, MatchEvent{
		RoomID:     room.ID,
		MatchID:    matchID,
		Player1ID:  out.Players[SideLeft],
		Player2ID:  out.Players[SideRight],
		Score:      ScoreView{P1: out.Score[SideLeft], P2: out.Score[SideRight]},
		Outcome:    out.Kind.String(),
		WinnerID:   winnerID,
		DurationMs: out.Duration.Milliseconds(),
		Slot:       room.Slot,
	})

	if persisted && c.archiver != nil {
		if err := c.archiver.ArchiveMatch(ctx, matchID); err != nil {
			log.Printf("[Archive] match %s: %v", matchID, err)
		}
	}

	if persisted && room.Slot != nil && out.Kind == OutcomeDraw {
		rec, err := c.store.CreateRematch(ctx, matchID)
		if err == nil {
			room.ResetForRematch(rec.ID)
			c.reclaimPlayers(room)
			log.Printf("[Tournament] slot %s drawn, rematch %s waiting in room %s", room.Slot, rec.ID, room.ID)
			c.publish(EventMatchRematch, MatchEvent{
				RoomID:    room.ID,
				MatchID:   rec.ID,
				Player1ID: out.Players[SideLeft],
				Player2ID: out.Players[SideRight],
				Slot:      room.Slot,
			})
			return true
		}
		log.Printf("[Tournament] rematch for %s failed: %v", matchID, err)
	}

	c.deregister(room)
	return false
}

func (c *Coordinator) deferResult(matchID string, out Outcome, room *Room) {
	if c.backlog == nil {
		return
	}
	var winnerID *int64
	if room.Slot != nil {
		winnerID = out.WinnerID()
	}
	c.backlog.Defer(matchID, out.Result(), room.Slot, winnerID)
}
