package realtime

import "sync"

// Member is anything that can sit in a room and receive encoded events.
type Member interface {
	UserID() string
	// Deliver queues msg for sending. It must not block.
	Deliver(msg []byte) bool
}

// Rooms groups members by match id. A member may be in several rooms.
type Rooms struct {
	mu      sync.RWMutex
	rooms   map[string]map[Member]struct{}
	members map[Member]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms:   make(map[string]map[Member]struct{}),
		members: make(map[Member]map[string]struct{}),
	}
}

func (r *Rooms) Join(room string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[room] == nil {
		r.rooms[room] = make(map[Member]struct{})
	}
	r.rooms[room][m] = struct{}{}
	if r.members[m] == nil {
		r.members[m] = make(map[string]struct{})
	}
	r.members[m][room] = struct{}{}
}

func (r *Rooms) Leave(room string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(room, m)
}

// LeaveAll removes m from every room it joined.
func (r *Rooms) LeaveAll(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.members[m] {
		r.leave(room, m)
	}
}

func (r *Rooms) leave(room string, m Member) {
	if set := r.rooms[room]; set != nil {
		delete(set, m)
		if len(set) == 0 {
			delete(r.rooms, room)
		}
	}
	if set := r.members[m]; set != nil {
		delete(set, room)
		if len(set) == 0 {
			delete(r.members, m)
		}
	}
}

// Broadcast delivers msg to every member of room except those belonging to
// excludeUser. It returns the number of members the message was queued for.
func (r *Rooms) Broadcast(room string, msg []byte, excludeUser string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sent := 0
	for m := range r.rooms[room] {
		if excludeUser != "" && m.UserID() == excludeUser {
			continue
		}
		if m.Deliver(msg) {
			sent++
		}
	}
	return sent
}

// Close removes room and all its memberships.
func (r *Rooms) Close(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for m := range r.rooms[room] {
		r.leave(room, m)
	}
}

func (r *Rooms) size(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}
