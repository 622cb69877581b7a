package game

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"pong-match-service/models"
)

const persistTimeout = 10 * time.Second

type client struct {
	conn     Conn
	userID   int64
	awaiting bool // heartbeat ping sent, no reply yet
	queued   bool
	slot     *models.SlotCoordinate // queue membership, nil for the open queue
	pairing  bool                   // popped from a queue, persistence in flight
	room     *Room
}

// Options wires the coordinator's collaborators. Store is required.
type Options struct {
	Store       MatchStore
	Bracket     BracketAdvancer
	Publisher   Publisher
	Archiver    Archiver
	Backlog     ResultBacklog
	Clock       clockwork.Clock
	RandFloat   func() float64
	RematchIdle time.Duration
}

// Coordinator owns every registry of the match service: connections, both queue
// kinds, live rooms and the identity/slot indexes. Registries are guarded by mu;
// room state by each room's own lock. mu may be held while taking a room lock,
// never the other way around.
type Coordinator struct {
	mu           sync.Mutex
	clients      map[Conn]*client
	openQueue    []Conn
	slotQueues   map[models.SlotCoordinate][]Conn
	rooms        map[string]*Room
	roomBySlot   map[models.SlotCoordinate]*Room
	roomByUser   map[int64]*Room
	pendingSlots map[models.SlotCoordinate]struct{}
	pendingUsers map[int64]struct{}

	store       MatchStore
	bracket     BracketAdvancer
	publisher   Publisher
	archiver    Archiver
	backlog     ResultBacklog
	clock       clockwork.Clock
	randFloat   func() float64
	rematchIdle time.Duration

	scheduler gocron.Scheduler
	wg        sync.WaitGroup
}

func NewCoordinator(opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.RematchIdle <= 0 {
		opts.RematchIdle = DefaultRematchIdleTimeout
	}
	return &Coordinator{
		clients:      make(map[Conn]*client),
		slotQueues:   make(map[models.SlotCoordinate][]Conn),
		rooms:        make(map[string]*Room),
		roomBySlot:   make(map[models.SlotCoordinate]*Room),
		roomByUser:   make(map[int64]*Room),
		pendingSlots: make(map[models.SlotCoordinate]struct{}),
		pendingUsers: make(map[int64]struct{}),
		store:        opts.Store,
		bracket:      opts.Bracket,
		publisher:    opts.Publisher,
		archiver:     opts.Archiver,
		backlog:      opts.Backlog,
		clock:        opts.Clock,
		randFloat:    opts.RandFloat,
		rematchIdle:  opts.RematchIdle,
	}
}

// Connect registers a transport under an identity (0 when unauthenticated) and greets it.
func (c *Coordinator) Connect(conn Conn, userID int64) {
	c.mu.Lock()
	c.clients[conn] = &client{conn: conn, userID: userID}
	c.mu.Unlock()
	_ = conn.Send(connected())
}

// Handle routes one decoded client message.
func (c *Coordinator) Handle(conn Conn, msg Inbound) {
	switch m := msg.(type) {
	case PingMsg:
		c.MarkAlive(conn)
		_ = conn.Send(pong())
	case QueueJoinMsg:
		c.joinQueue(conn, nil)
	case TournamentJoinMsg:
		slot := m.Slot
		c.joinQueue(conn, &slot)
	case QueueLeaveMsg:
		c.leaveQueue(conn)
		_ = conn.Send(queueLeft())
	case ReconnectMsg:
		c.reconnect(conn)
	case InputMsg:
		if room := c.roomOf(conn); room != nil {
			room.SetInput(conn, m.Dir, m.Pressed)
		}
	case PauseMsg:
		if room := c.roomOf(conn); room != nil {
			room.SetPaused(conn, m.Paused)
		}
	}
}

// MarkAlive clears the pending heartbeat ping for conn.
func (c *Coordinator) MarkAlive(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl := c.clients[conn]; cl != nil {
		cl.awaiting = false
	}
}

// Disconnect forgets conn: it leaves any queue, and if it holds a room seat the seat is
// vacated. Safe to call more than once.
func (c *Coordinator) Disconnect(conn Conn) {
	c.mu.Lock()
	cl := c.clients[conn]
	if cl == nil {
		c.mu.Unlock()
		return
	}
	delete(c.clients, conn)
	c.dequeueLocked(cl)
	room := cl.room
	c.mu.Unlock()

	if room != nil {
		room.Vacate(conn)
	}
}

func (c *Coordinator) roomOf(conn Conn) *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl := c.clients[conn]; cl != nil {
		return cl.room
	}
	return nil
}

func (c *Coordinator) leaveQueue(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl := c.clients[conn]; cl != nil {
		c.dequeueLocked(cl)
	}
}

func (c *Coordinator) dequeueLocked(cl *client) {
	if !cl.queued {
		return
	}
	if cl.slot == nil {
		c.openQueue = removeConn(c.openQueue, cl.conn)
	} else {
		q := removeConn(c.slotQueues[*cl.slot], cl.conn)
		if len(q) == 0 {
			delete(c.slotQueues, *cl.slot)
		} else {
			c.slotQueues[*cl.slot] = q
		}
	}
	cl.queued = false
	cl.slot = nil
}

func removeConn(q []Conn, conn Conn) []Conn {
	return slices.DeleteFunc(q, func(x Conn) bool { return x == conn })
}

func (c *Coordinator) queueLocked(slot *models.SlotCoordinate) []Conn {
	if slot == nil {
		return c.openQueue
	}
	return c.slotQueues[*slot]
}

func (c *Coordinator) setQueueLocked(slot *models.SlotCoordinate, q []Conn) {
	if slot == nil {
		c.openQueue = q
		return
	}
	if len(q) == 0 {
		delete(c.slotQueues, *slot)
		return
	}
	c.slotQueues[*slot] = q
}

// joinQueue appends conn to the open queue (slot == nil) or to a tournament slot queue
// and pairs the first two entries when possible.
func (c *Coordinator) joinQueue(conn Conn, slot *models.SlotCoordinate) {
	c.mu.Lock()
	cl := c.clients[conn]
	if cl == nil || cl.pairing {
		c.mu.Unlock()
		return
	}
	if cl.userID != 0 && c.busyLocked(cl.userID, slot) {
		c.mu.Unlock()
		_ = conn.Send(denied(ReasonAlreadyInMatch))
		return
	}
	if cl.queued {
		if sameQueue(cl.slot, slot) {
			c.mu.Unlock()
			return
		}
		c.dequeueLocked(cl)
	}

	q := slices.DeleteFunc(c.queueLocked(slot), func(x Conn) bool { return !x.IsOpen() })
	q = append(q, conn)
	cl.queued = true
	cl.slot = slot
	_ = conn.Send(queueJoined(slot))

	if len(q) < 2 {
		c.setQueueLocked(slot, q)
		c.mu.Unlock()
		return
	}

	a, b := q[0], q[1]
	c.setQueueLocked(slot, q[2:])
	ca, cb := c.clients[a], c.clients[b]
	ca.queued, ca.slot = false, nil
	cb.queued, cb.slot = false, nil

	switch {
	case ca.userID == 0 || cb.userID == 0:
		c.mu.Unlock()
		_ = a.Send(denied(ReasonAuthMissing))
		_ = b.Send(denied(ReasonAuthMissing))
		return
	case ca.userID == cb.userID:
		// the earlier entry keeps its place
		c.setQueueLocked(slot, append([]Conn{a}, c.queueLocked(slot)...))
		ca.queued, ca.slot = true, slot
		c.mu.Unlock()
		_ = b.Send(denied(ReasonSelfMatch))
		return
	}

	// another tab of either identity may have been seated since this entry queued
	if busyA, busyB := c.busyLocked(ca.userID, slot), c.busyLocked(cb.userID, slot); busyA || busyB {
		var refused []Conn
		rest := c.queueLocked(slot)
		if busyB {
			refused = append(refused, b)
		} else {
			rest = append([]Conn{b}, rest...)
			cb.queued, cb.slot = true, slot
		}
		if busyA {
			refused = append(refused, a)
		} else {
			rest = append([]Conn{a}, rest...)
			ca.queued, ca.slot = true, slot
		}
		c.setQueueLocked(slot, rest)
		c.mu.Unlock()
		for _, conn := range refused {
			_ = conn.Send(denied(ReasonAlreadyInMatch))
		}
		return
	}

	if slot != nil {
		if room := c.roomBySlot[*slot]; room != nil {
			if room.HasPlayers(ca.userID, cb.userID) {
				c.rejoinLocked(room, ca, cb)
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
			_ = a.Send(denied(ReasonSlotConflict))
			_ = b.Send(denied(ReasonSlotConflict))
			return
		}
		if _, busy := c.pendingSlots[*slot]; busy {
			c.mu.Unlock()
			_ = a.Send(denied(ReasonSlotBusy))
			_ = b.Send(denied(ReasonSlotBusy))
			return
		}
		c.pendingSlots[*slot] = struct{}{}
	}
	c.pendingUsers[ca.userID] = struct{}{}
	c.pendingUsers[cb.userID] = struct{}{}
	ca.pairing, cb.pairing = true, true
	c.mu.Unlock()

	c.startMatch(ca, cb, slot)
}

// busyLocked reports whether userID holds a seat, or has a pairing in flight, anywhere
// other than slot's own room. A returning tournament pair may rejoin that room through
// the slot queue.
func (c *Coordinator) busyLocked(userID int64, slot *models.SlotCoordinate) bool {
	if _, ok := c.pendingUsers[userID]; ok {
		return true
	}
	room := c.roomByUser[userID]
	return room != nil && (slot == nil || c.roomBySlot[*slot] != room)
}

func sameQueue(a, b *models.SlotCoordinate) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// rejoinLocked puts both identities of a surviving slot room back in their seats.
func (c *Coordinator) rejoinLocked(room *Room, pair ...*client) {
	for _, cl := range pair {
		side, _ := room.SideOf(cl.userID)
		prev, err := room.Rebind(side, cl.conn)
		if err != nil {
			_ = cl.conn.Send(denied(ReasonNoActiveMatch))
			continue
		}
		if prev != nil && prev != cl.conn {
			c.detachLocked(prev)
			go prev.Close()
		}
		cl.room = room
		_ = cl.conn.Send(matchFound(room.ID, side))
	}
}

func (c *Coordinator) detachLocked(conn Conn) {
	if old := c.clients[conn]; old != nil {
		old.room = nil
	}
}

// startMatch persists the pairing and opens the room. Runs without mu; both identities
// are reserved in pendingUsers, and the slot if any in pendingSlots, until it returns.
func (c *Coordinator) startMatch(ca, cb *client, slot *models.SlotCoordinate) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var (
		rec *models.Match
		err error
	)
	if slot == nil {
		rec, err = c.store.CreateMatch(ctx, ca.userID, cb.userID)
	} else {
		rec, err = c.store.ClaimSlot(ctx, *slot, ca.userID, cb.userID)
	}

	c.mu.Lock()
	if slot != nil {
		delete(c.pendingSlots, *slot)
	}
	delete(c.pendingUsers, ca.userID)
	delete(c.pendingUsers, cb.userID)
	ca.pairing, cb.pairing = false, false
	if err != nil {
		c.mu.Unlock()
		reason := ReasonPersistenceError
		switch {
		case errors.Is(err, models.ErrSlotFinished):
			reason = ReasonAlreadyFinished
		case errors.Is(err, models.ErrSlotConflict):
			reason = ReasonSlotConflict
		default:
			log.Printf("[Match] failed to persist pairing %d vs %d: %v", ca.userID, cb.userID, err)
		}
		_ = ca.conn.Send(denied(reason))
		_ = cb.conn.Send(denied(reason))
		return
	}

	// the stored record decides who is player one
	left, right := ca, cb
	if rec.Player1ID == cb.userID {
		left, right = cb, ca
	}
	room := NewRoom(RoomConfig{
		ID:          uuid.NewString(),
		MatchID:     rec.ID,
		Players:     [2]int64{left.userID, right.userID},
		Slot:        slot,
		Clock:       c.clock,
		RandFloat:   c.randFloat,
		RematchIdle: c.rematchIdle,
		OnFinish:    c.finalize,
	})
	room.Bind(SideLeft, left.conn)
	room.Bind(SideRight, right.conn)

	c.rooms[room.ID] = room
	if slot != nil {
		c.roomBySlot[*slot] = room
	}
	var gone []Conn
	for _, cl := range []*client{left, right} {
		c.roomByUser[cl.userID] = room
		cl.room = room
		if _, ok := c.clients[cl.conn]; !ok || !cl.conn.IsOpen() {
			gone = append(gone, cl.conn)
		}
	}
	c.mu.Unlock()

	log.Printf("[Match] room %s opened for match %s (%d vs %d)", room.ID, rec.ID, left.userID, right.userID)
	_ = left.conn.Send(matchFound(room.ID, SideLeft))
	_ = right.conn.Send(matchFound(room.ID, SideRight))
	c.publish(EventMatchStarted, MatchEvent{
		RoomID:    room.ID,
		MatchID:   rec.ID,
		Player1ID: left.userID,
		Player2ID: right.userID,
		Slot:      slot,
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		room.Run()
	}()

	// transports that closed while the record was being written
	for _, conn := range gone {
		room.Vacate(conn)
	}
}

// reconnect resolves the caller's identity to its room and takes over its seat.
func (c *Coordinator) reconnect(conn Conn) {
	c.mu.Lock()
	cl := c.clients[conn]
	if cl == nil {
		c.mu.Unlock()
		return
	}
	if cl.userID == 0 {
		c.mu.Unlock()
		_ = conn.Send(denied(ReasonAuthMissing))
		return
	}
	room := c.roomByUser[cl.userID]
	if room == nil {
		c.mu.Unlock()
		_ = conn.Send(denied(ReasonNoActiveMatch))
		return
	}
	side, _ := room.SideOf(cl.userID)
	prev, err := room.Rebind(side, conn)
	if err != nil {
		c.mu.Unlock()
		_ = conn.Send(denied(ReasonNoActiveMatch))
		return
	}
	c.dequeueLocked(cl)
	cl.room = room
	if prev == conn {
		prev = nil
	}
	if prev != nil {
		c.detachLocked(prev)
	}
	c.mu.Unlock()

	// the old transport is no longer the holder, so its own disconnect is a no-op
	if prev != nil {
		log.Printf("[Match] user %d took over seat %s in room %s", cl.userID, side, room.ID)
		_ = prev.Close()
	}
	_ = conn.Send(matchFound(room.ID, side))
}

// releasePlayers frees both identities of a settled room so they can queue again while
// its result is still being written. The room stays reachable by id and slot.
func (c *Coordinator) releasePlayers(room *Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range room.Players() {
		if c.roomByUser[id] == room {
			delete(c.roomByUser, id)
		}
	}
	for _, cl := range c.clients {
		if cl.room == room {
			cl.room = nil
		}
	}
}

// reclaimPlayers points both identities back at a rematch room, unless one has already
// been seated elsewhere.
func (c *Coordinator) reclaimPlayers(room *Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range room.Players() {
		if _, pending := c.pendingUsers[id]; !pending && c.roomByUser[id] == nil {
			c.roomByUser[id] = room
		}
	}
}

// deregister drops every index entry that still points at room.
func (c *Coordinator) deregister(room *Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room.ID)
	if room.Slot != nil && c.roomBySlot[*room.Slot] == room {
		delete(c.roomBySlot, *room.Slot)
	}
	for _, id := range room.Players() {
		if c.roomByUser[id] == room {
			delete(c.roomByUser, id)
		}
	}
	for _, cl := range c.clients {
		if cl.room == room {
			cl.room = nil
		}
	}
}

func (c *Coordinator) publish(event string, payload MatchEvent) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(event, payload); err != nil {
		log.Printf("[Match] publish %s for %s failed: %v", event, payload.MatchID, err)
	}
}

// Stats is a point-in-time view of the registries.
type Stats struct {
	Connections  int            `json:"connections"`
	OpenQueue    int            `json:"open_queue"`
	SlotQueues   int            `json:"slot_queues"`
	Rooms        int            `json:"rooms"`
	PendingSlots int            `json:"pending_slots"`
	RoomsBySlot  map[string]int `json:"rooms_by_slot,omitempty"`
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{
		Connections:  len(c.clients),
		OpenQueue:    len(c.openQueue),
		SlotQueues:   len(c.slotQueues),
		Rooms:        len(c.rooms),
		PendingSlots: len(c.pendingSlots),
	}
	if len(c.roomBySlot) > 0 {
		st.RoomsBySlot = make(map[string]int, len(c.roomBySlot))
		for slot := range c.roomBySlot {
			st.RoomsBySlot[slot.Bracket]++
		}
	}
	return st
}

// Room looks up a live room by id.
func (c *Coordinator) Room(id string) *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[id]
}

// Shutdown stops the liveness job and every room loop, then waits for them.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if c.scheduler != nil {
		if err := c.scheduler.Shutdown(); err != nil {
			log.Printf("[Liveness] scheduler shutdown: %v", err)
		}
	}
	c.mu.Lock()
	for _, room := range c.rooms {
		room.Stop()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
