// Package realtime tracks live connections and the rooms they joined, and
// pushes frames to every connection in a room.
//
// Locking is partitioned: the registry lock only guards the room index, each
// room has its own lock for its member set, and each connection has a lock
// for the rooms it joined. Lock order is connection -> registry -> room.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/taskhive-dev/taskhive/internal/apperrors"
)

const DefaultSendBuffer = 64

// RoomKey names a broadcast group. Use UserRoom and ProjectRoom to build one.
type RoomKey string

func UserRoom(userID uint) RoomKey {
	return RoomKey(fmt.Sprintf("user:%d", userID))
}

func ProjectRoom(projectID uint) RoomKey {
	return RoomKey(fmt.Sprintf("project:%d", projectID))
}

var ErrRegistryClosed = errors.New("registry is shut down")

// Connection is one live transport session. Frames queued for it are read
// from Frames until Done is closed.
type Connection struct {
	ID       string
	Identity uint // authenticated user, 0 when anonymous

	send    chan []byte
	done    chan struct{}
	dropped atomic.Int64

	mu           sync.Mutex
	closed       bool
	userRoom     RoomKey
	projectRooms map[RoomKey]struct{}
}

// Frames yields queued outbound frames.
func (c *Connection) Frames() <-chan []byte {
	return c.send
}

// Done is closed once the connection has been disconnected.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Dropped counts frames discarded because the send buffer was full.
func (c *Connection) Dropped() int64 {
	return c.dropped.Load()
}

// Rooms returns a snapshot of every room the connection is in.
func (c *Connection) Rooms() []RoomKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := make([]RoomKey, 0, len(c.projectRooms)+1)
	if c.userRoom != "" {
		rooms = append(rooms, c.userRoom)
	}
	for key := range c.projectRooms {
		rooms = append(rooms, key)
	}

	return rooms
}

// enqueue never blocks. When the buffer is full the oldest queued frame is
// discarded to make room.
func (c *Connection) enqueue(frame []byte) bool {
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case c.send <- frame:
			return true
		default:
		}

		select {
		case <-c.send:
			c.dropped.Add(1)
		default:
		}
	}

	c.dropped.Add(1)
	return false
}

type room struct {
	mu      sync.RWMutex
	members map[*Connection]struct{}
	dead    bool // removed from the index; joiners must fetch a fresh room
}

type Registry struct {
	bufferSize int

	mu     sync.RWMutex
	rooms  map[RoomKey]*room
	conns  map[string]*Connection
	closed bool
}

func NewRegistry(bufferSize int) *Registry {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}

	return &Registry{
		bufferSize: bufferSize,
		rooms:      make(map[RoomKey]*room),
		conns:      make(map[string]*Connection),
	}
}

// Connect registers a new connection with no room memberships.
func (r *Registry) Connect(identity uint) (*Connection, error) {
	conn := &Connection{
		ID:           uuid.NewString(),
		Identity:     identity,
		send:         make(chan []byte, r.bufferSize),
		done:         make(chan struct{}),
		projectRooms: make(map[RoomKey]struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	r.conns[conn.ID] = conn

	return conn, nil
}

// JoinUserRoom puts conn in userID's room. A connection holds at most one
// user room; joining another replaces it. An authenticated connection may
// only join its own user room.
func (r *Registry) JoinUserRoom(conn *Connection, userID uint) error {
	if userID == 0 {
		return apperrors.InvalidState("User ID is required")
	}

	if conn.Identity != 0 && conn.Identity != userID {
		return apperrors.Forbidden("Cannot join another user's room")
	}

	key := UserRoom(userID)

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.closed {
		return ErrRegistryClosed
	}

	if conn.userRoom == key {
		return nil
	}

	if conn.userRoom != "" {
		r.removeMember(conn.userRoom, conn)
	}

	r.addMember(key, conn)
	conn.userRoom = key

	return nil
}

// JoinProjectRoom is idempotent.
func (r *Registry) JoinProjectRoom(conn *Connection, projectID uint) error {
	if projectID == 0 {
		return apperrors.InvalidState("Project ID is required")
	}

	key := ProjectRoom(projectID)

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.closed {
		return ErrRegistryClosed
	}

	if _, ok := conn.projectRooms[key]; ok {
		return nil
	}

	r.addMember(key, conn)
	conn.projectRooms[key] = struct{}{}

	return nil
}

// LeaveProjectRoom is idempotent; leaving a room never joined is a no-op.
func (r *Registry) LeaveProjectRoom(conn *Connection, projectID uint) {
	key := ProjectRoom(projectID)

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if _, ok := conn.projectRooms[key]; !ok {
		return
	}

	delete(conn.projectRooms, key)
	r.removeMember(key, conn)
}

// Disconnect drops conn from every room it joined and closes Done. Safe to
// call more than once.
func (r *Registry) Disconnect(conn *Connection) {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return
	}

	conn.closed = true
	rooms := make([]RoomKey, 0, len(conn.projectRooms)+1)
	if conn.userRoom != "" {
		rooms = append(rooms, conn.userRoom)
	}
	for key := range conn.projectRooms {
		rooms = append(rooms, key)
	}
	conn.userRoom = ""
	conn.projectRooms = make(map[RoomKey]struct{})
	conn.mu.Unlock()

	for _, key := range rooms {
		r.removeMember(key, conn)
	}

	r.mu.Lock()
	delete(r.conns, conn.ID)
	r.mu.Unlock()

	close(conn.done)
}

// Publish queues frame for every connection in room at call time and returns
// how many accepted it. Connections that join while the publish is in flight
// may or may not see it.
func (r *Registry) Publish(key RoomKey, frame []byte) int {
	r.mu.RLock()
	rm, ok := r.rooms[key]
	r.mu.RUnlock()

	if !ok {
		return 0
	}

	rm.mu.RLock()
	targets := make([]*Connection, 0, len(rm.members))
	for conn := range rm.members {
		targets = append(targets, conn)
	}
	rm.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if conn.enqueue(frame) {
			delivered++
		} else {
			log.Printf("Send buffer full for connection %s in room %s", conn.ID, key)
		}
	}

	return delivered
}

// Broadcast is Publish for callers that deliver through a Broadcaster.
// Delivery to an empty room is not an error.
func (r *Registry) Broadcast(_ context.Context, key RoomKey, frame []byte) error {
	r.Publish(key, frame)
	return nil
}

// CloseRoom delivers frame as the room's last push and then evicts every
// member.
func (r *Registry) CloseRoom(_ context.Context, key RoomKey, frame []byte) error {
	r.Publish(key, frame)
	r.EvictRoom(key)
	return nil
}

// EvictRoom removes every connection from room and returns how many were
// removed. The connections stay open and keep their other rooms.
func (r *Registry) EvictRoom(key RoomKey) int {
	r.mu.RLock()
	rm, ok := r.rooms[key]
	r.mu.RUnlock()

	if !ok {
		return 0
	}

	rm.mu.RLock()
	members := make([]*Connection, 0, len(rm.members))
	for conn := range rm.members {
		members = append(members, conn)
	}
	rm.mu.RUnlock()

	evicted := 0
	for _, conn := range members {
		conn.mu.Lock()
		if conn.userRoom == key {
			conn.userRoom = ""
			r.removeMember(key, conn)
			evicted++
		} else if _, ok := conn.projectRooms[key]; ok {
			delete(conn.projectRooms, key)
			r.removeMember(key, conn)
			evicted++
		}
		conn.mu.Unlock()
	}

	return evicted
}

// Members returns how many connections are currently in room.
func (r *Registry) Members(key RoomKey) int {
	r.mu.RLock()
	rm, ok := r.rooms[key]
	r.mu.RUnlock()

	if !ok {
		return 0
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	return len(rm.members)
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// Shutdown disconnects every live connection and refuses new ones.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		r.Disconnect(conn)
	}

	log.Printf("Realtime registry stopped, %d connections closed", len(conns))
}

func (r *Registry) addMember(key RoomKey, conn *Connection) {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[key]
		if !ok {
			rm = &room{members: make(map[*Connection]struct{})}
			r.rooms[key] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if rm.dead {
			rm.mu.Unlock()
			continue
		}
		rm.members[conn] = struct{}{}
		rm.mu.Unlock()

		return
	}
}

func (r *Registry) removeMember(key RoomKey, conn *Connection) {
	r.mu.RLock()
	rm, ok := r.rooms[key]
	r.mu.RUnlock()

	if !ok {
		return
	}

	rm.mu.Lock()
	delete(rm.members, conn)
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	if !empty {
		return
	}

	r.mu.Lock()
	rm.mu.Lock()
	if len(rm.members) == 0 && r.rooms[key] == rm {
		rm.dead = true
		delete(r.rooms, key)
	}
	rm.mu.Unlock()
	r.mu.Unlock()
}
