package game

import (
	"fmt"
	"log"

	"github.com/go-co-op/gocron/v2"
)

// StartLiveness schedules the heartbeat sweep every HeartbeatInterval.
func (c *Coordinator) StartLiveness() error {
	sched, err := gocron.NewScheduler(gocron.WithClock(c.clock))
	if err != nil {
		return fmt.Errorf("failed to create liveness scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(HeartbeatInterval),
		gocron.NewTask(c.SweepLiveness),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule liveness sweep: %w", err)
	}
	sched.Start()
	c.scheduler = sched
	log.Printf("[Liveness] heartbeat every %s", HeartbeatInterval)
	return nil
}

// SweepLiveness runs one heartbeat pass. Closed transports are dropped, transports
// that ignored the previous ping are terminated as zombies, everyone else gets a
// fresh ping.
func (c *Coordinator) SweepLiveness() {
	var closed, zombies, pinged []Conn

	c.mu.Lock()
	for conn, cl := range c.clients {
		switch {
		case !conn.IsOpen():
			closed = append(closed, conn)
		case cl.awaiting:
			zombies = append(zombies, conn)
		default:
			cl.awaiting = true
			pinged = append(pinged, conn)
		}
	}
	c.mu.Unlock()

	for _, conn := range closed {
		c.Disconnect(conn)
	}
	for _, conn := range zombies {
		_ = conn.Close()
		c.Disconnect(conn)
	}
	if len(zombies) > 0 {
		log.Printf("[Liveness] terminated %d unresponsive connections", len(zombies))
	}
	for _, conn := range pinged {
		if err := conn.Ping(); err != nil {
			log.Printf("[Liveness] ping failed: %v", err)
		}
	}
}
