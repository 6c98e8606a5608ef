package broker

import (
	"errors"
	"sync"
)

var (
	// ErrAlreadyJoined is returned when a connection joins a second time.
	ErrAlreadyJoined = errors.New("connection already joined a group")
	// ErrAlreadyLeft is returned when a connection rejoins after leaving.
	ErrAlreadyLeft = errors.New("connection already left its group")
)

// Registry tracks live connections by topology group.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn              // connID -> Conn
	groups map[GroupKey]map[string]*Conn // group -> connID -> Conn
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Conn),
		groups: make(map[GroupKey]map[string]*Conn),
	}
}

// Join admits c into the group key. A connection joins exactly one group
// for its lifetime.
func (r *Registry) Join(key GroupKey, c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.left.Load() {
		return ErrAlreadyLeft
	}
	if c.joined {
		return ErrAlreadyJoined
	}

	group, ok := r.groups[key]
	if !ok {
		group = make(map[string]*Conn)
		r.groups[key] = group
	}
	group[c.ID] = c
	r.conns[c.ID] = c
	c.joined = true
	c.key = key
	return nil
}

// Leave removes c from its group. It reports the group and whether this
// call removed the connection; later calls report false.
func (r *Registry) Leave(c *Conn) (GroupKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !c.joined || c.left.Load() {
		c.left.Store(true)
		return c.key, false
	}
	c.left.Store(true)

	delete(r.conns, c.ID)
	if group, ok := r.groups[c.key]; ok {
		delete(group, c.ID)
		if len(group) == 0 {
			delete(r.groups, c.key)
		}
	}
	return c.key, true
}

// MembersOf returns a snapshot of the connections in a group.
func (r *Registry) MembersOf(key GroupKey) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group := r.groups[key]
	members := make([]*Conn, 0, len(group))
	for _, c := range group {
		members = append(members, c)
	}
	return members
}

// Connections returns a snapshot of every live connection.
func (r *Registry) Connections() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// GroupCount returns the number of non-empty groups.
func (r *Registry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// GroupSize returns the number of connections in a group.
func (r *Registry) GroupSize(key GroupKey) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[key])
}
