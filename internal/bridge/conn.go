package bridge

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justachat/irc-bridge/internal/constants"
)

// Conn represents one live bridged session. It is created after a socket
// passes admission control and removed from the registry when either side of
// the relay closes.
type Conn struct {
	// ID is process-lifetime unique and monotonic.
	ID uint64

	// IP and Port identify the client endpoint. IP is normalized (IPv6-mapped
	// prefix stripped).
	IP   string
	Port int

	// Transport is "plain" or "tls".
	Transport string

	// ConnectedAt is when admission completed.
	ConnectedAt time.Time

	sock net.Conn

	// wmu serializes socket writes; lines arrive from the upstream reader,
	// throttle notices from the socket reader, and kicks/broadcasts from the
	// admin plane.
	wmu sync.Mutex

	mu            sync.RWMutex
	nick          string
	user          string
	authenticated bool
	country       string
	countryCode   string
	city          string

	messages  atomic.Uint64
	throttled atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
}

// Info is the admin-facing snapshot of a live connection.
type Info struct {
	ID            uint64  `json:"id"`
	IP            string  `json:"ip"`
	Port          int     `json:"port"`
	Transport     string  `json:"transport"`
	Nick          string  `json:"nick,omitempty"`
	User          string  `json:"user,omitempty"`
	Authenticated bool    `json:"authenticated"`
	ConnectedAt   string  `json:"connected_at"`
	Duration      float64 `json:"duration_seconds"`
	Messages      uint64  `json:"messages"`
	Throttled     uint64  `json:"throttled"`
	Country       string  `json:"country,omitempty"`
	CountryCode   string  `json:"country_code,omitempty"`
	City          string  `json:"city,omitempty"`
}

func newConn(id uint64, sock net.Conn, ip string, port int, transport string) *Conn {
	return &Conn{
		ID:          id,
		IP:          ip,
		Port:        port,
		Transport:   transport,
		ConnectedAt: time.Now(),
		sock:        sock,
		closed:      make(chan struct{}),
	}
}

// WriteLine writes a complete protocol line to the client socket. Writes are
// serialized and bounded by a deadline so one stuck client cannot wedge the
// admin plane or the upstream reader.
func (c *Conn) WriteLine(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.sock.SetWriteDeadline(time.Now().Add(constants.SocketWriteTimeout)); err != nil {
		return err
	}
	_, err := c.sock.Write([]byte(line))
	return err
}

// Close closes the client socket once. The relay goroutines observe the
// closure through their blocked reads.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.sock.Close()
	})
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) setNick(nick string) {
	c.mu.Lock()
	c.nick = nick
	c.mu.Unlock()
}

func (c *Conn) setUser(user string) {
	c.mu.Lock()
	c.user = user
	c.mu.Unlock()
}

func (c *Conn) setAuthenticated() {
	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()
}

func (c *Conn) setLocation(country, countryCode, city string) {
	c.mu.Lock()
	c.country = country
	c.countryCode = countryCode
	c.city = city
	c.mu.Unlock()
}

// Snapshot returns the admin-facing view of the connection.
func (c *Conn) Snapshot() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Info{
		ID:            c.ID,
		IP:            c.IP,
		Port:          c.Port,
		Transport:     c.Transport,
		Nick:          c.nick,
		User:          c.user,
		Authenticated: c.authenticated,
		ConnectedAt:   c.ConnectedAt.UTC().Format(time.RFC3339),
		Duration:      time.Since(c.ConnectedAt).Seconds(),
		Messages:      c.messages.Load(),
		Throttled:     c.throttled.Load(),
		Country:       c.country,
		CountryCode:   c.countryCode,
		City:          c.city,
	}
}

// Registry is the live connection table shared between the connection
// handlers and the admin control plane. All methods are safe for concurrent
// use.
type Registry struct {
	mu    sync.RWMutex
	conns map[uint64]*Conn

	nextID atomic.Uint64
	total  atomic.Uint64
}

// NewRegistry creates an empty live connection table.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint64]*Conn)}
}

// Register allocates a connection id, creates the Conn and adds it to the
// table.
func (r *Registry) Register(sock net.Conn, ip string, port int, transport string) *Conn {
	id := r.nextID.Add(1)
	r.total.Add(1)

	conn := newConn(id, sock, ip, port, transport)

	r.mu.Lock()
	r.conns[id] = conn
	r.mu.Unlock()

	return conn
}

// Remove drops a connection from the table.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Get returns the live connection with the given id, or nil.
func (r *Registry) Get(id uint64) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Total returns the lifetime connection count.
func (r *Registry) Total() uint64 {
	return r.total.Load()
}

// List returns snapshots of all live connections.
func (r *Registry) List() []Info {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(conns))
	for _, conn := range conns {
		infos = append(infos, conn.Snapshot())
	}
	return infos
}

// Kick force-closes the connection with the given id after writing a
// KILL-style line. It returns false if the id is not live.
func (r *Registry) Kick(id uint64, reason string) bool {
	conn := r.Get(id)
	if conn == nil {
		return false
	}

	conn.WriteLine(KillLine(reason))
	conn.Close()
	return true
}

// KickByIP force-closes every live connection from the given IP, writing the
// ban rejection line first. It returns the number of connections closed.
// Implements the ban manager's Kicker.
func (r *Registry) KickByIP(ip, reason string) int {
	r.mu.RLock()
	matching := make([]*Conn, 0, 4)
	for _, conn := range r.conns {
		if conn.IP == ip {
			matching = append(matching, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range matching {
		conn.WriteLine(BannedLine(reason))
		conn.Close()
	}
	return len(matching)
}

// Broadcast writes a server NOTICE to every live connection and returns the
// number of clients written to.
func (r *Registry) Broadcast(message string) int {
	line := BroadcastNotice(message)

	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	sent := 0
	for _, conn := range conns {
		if err := conn.WriteLine(line); err == nil {
			sent++
		}
	}
	return sent
}

// CloseAll writes the given line to every live connection and closes them.
// Used at shutdown.
func (r *Registry) CloseAll(line string) {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		conn.WriteLine(line)
		conn.Close()
	}
}
