package ban

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/justachat/irc-bridge/internal/constants"
)

// Record represents a ban on a single IP address.
//
// Exactly one of the following holds: Permanent is true and ExpiresAt is nil,
// or Permanent is false and ExpiresAt is set.
type Record struct {
	// ID is the unique identifier for the ban record.
	ID string `json:"id"`

	// IP is the banned address.
	IP string `json:"ip"`

	// Reason provides context for why the IP was banned.
	Reason string `json:"reason"`

	// CreatedAt is when the ban was created.
	CreatedAt time.Time `json:"created_at"`

	// Permanent marks a ban with no expiry.
	Permanent bool `json:"permanent"`

	// ExpiresAt defines when the ban expires (nil for permanent bans).
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired checks if the ban has expired.
func (r *Record) Expired() bool {
	return !r.Permanent && r.ExpiresAt != nil && time.Now().After(*r.ExpiresAt)
}

// Kicker force-closes live connections matching an IP, writing the given
// terminal protocol line first. Implemented by the live connection registry.
type Kicker interface {
	KickByIP(ip, reason string) int
}

// Manager owns the in-memory ban table, backed by a Store. Mutations schedule
// a debounced persist; a final synchronous save happens at shutdown via
// Flush. All methods are safe for concurrent use.
type Manager struct {
	store *Store

	mu      sync.RWMutex
	records map[string]*Record

	kickerMu sync.RWMutex
	kicker   Kicker

	saveMu    sync.Mutex
	saveTimer *time.Timer
}

// NewManager creates a manager and loads the persisted ban table. A load
// failure is logged and the manager starts with an empty in-memory table;
// durability resumes at the next successful save.
func NewManager(store *Store) *Manager {
	records, err := store.Load()
	if err != nil {
		log.Error().Err(err).Str("path", store.Path()).Msg("Failed to load ban table, starting empty")
		records = make(map[string]*Record)
	} else if len(records) > 0 {
		log.Info().Int("count", len(records)).Msg("Loaded ban table")
	}

	return &Manager{
		store:   store,
		records: records,
	}
}

// SetKicker wires the live connection registry used to terminate existing
// connections when a ban requests it.
func (m *Manager) SetKicker(k Kicker) {
	m.kickerMu.Lock()
	m.kicker = k
	m.kickerMu.Unlock()
}

// Start runs the periodic expiry sweep until the context is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(constants.BanSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// IsBanned reports whether an active ban exists for the IP. A record found
// expired is lazily removed as a side effect, and the deletion is persisted.
func (m *Manager) IsBanned(ip string) bool {
	m.mu.Lock()
	record, ok := m.records[ip]
	if ok && record.Expired() {
		delete(m.records, ip)
		m.mu.Unlock()
		m.scheduleSave()
		return false
	}
	m.mu.Unlock()

	return ok
}

// Get returns the active ban record for the IP, or nil. Expired records are
// removed like in IsBanned.
func (m *Manager) Get(ip string) *Record {
	m.mu.Lock()
	record, ok := m.records[ip]
	if ok && record.Expired() {
		delete(m.records, ip)
		m.mu.Unlock()
		m.scheduleSave()
		return nil
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	copied := *record
	return &copied
}

// Ban inserts or overwrites the ban record for an IP. A non-positive duration
// means permanent. When kickExisting is set, all live connections from the IP
// are force-closed with the ban reason.
func (m *Manager) Ban(ip, reason string, duration time.Duration, kickExisting bool) *Record {
	record := &Record{
		ID:        uuid.NewString(),
		IP:        ip,
		Reason:    reason,
		CreatedAt: time.Now(),
		Permanent: duration <= 0,
	}
	if !record.Permanent {
		expires := record.CreatedAt.Add(duration)
		record.ExpiresAt = &expires
	}

	m.mu.Lock()
	m.records[ip] = record
	m.mu.Unlock()

	m.scheduleSave()

	log.Warn().
		Str("ip", ip).
		Str("reason", reason).
		Bool("permanent", record.Permanent).
		Dur("duration", duration).
		Bool("kick_existing", kickExisting).
		Msg("IP banned")

	if kickExisting {
		m.kickerMu.RLock()
		kicker := m.kicker
		m.kickerMu.RUnlock()

		if kicker != nil {
			if kicked := kicker.KickByIP(ip, reason); kicked > 0 {
				log.Info().Str("ip", ip).Int("kicked", kicked).Msg("Closed live connections for banned IP")
			}
		}
	}

	copied := *record
	return &copied
}

// Unban removes the ban record for an IP, returning whether a removal
// occurred.
func (m *Manager) Unban(ip string) bool {
	m.mu.Lock()
	_, ok := m.records[ip]
	if ok {
		delete(m.records, ip)
	}
	m.mu.Unlock()

	if ok {
		m.scheduleSave()
		log.Info().Str("ip", ip).Msg("IP unbanned")
	}
	return ok
}

// Count returns the number of ban records, including any not yet lazily
// expired.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// List returns all ban records, newest first.
func (m *Manager) List() []*Record {
	m.mu.RLock()
	records := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		copied := *record
		records = append(records, &copied)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records
}

// Flush cancels any pending debounced save and writes the ban table
// synchronously. Called at shutdown.
func (m *Manager) Flush() error {
	m.saveMu.Lock()
	if m.saveTimer != nil {
		m.saveTimer.Stop()
		m.saveTimer = nil
	}
	m.saveMu.Unlock()

	return m.save()
}

// scheduleSave coalesces save requests occurring within the debounce window
// into a single write.
func (m *Manager) scheduleSave() {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	if m.saveTimer != nil {
		return
	}

	m.saveTimer = time.AfterFunc(constants.BanSaveDebounce, func() {
		m.saveMu.Lock()
		m.saveTimer = nil
		m.saveMu.Unlock()

		if err := m.save(); err != nil {
			log.Error().Err(err).Msg("Failed to persist ban table")
		}
	})
}

// save writes a snapshot of the ban table through the store.
func (m *Manager) save() error {
	m.mu.RLock()
	snapshot := make(map[string]*Record, len(m.records))
	for ip, record := range m.records {
		copied := *record
		snapshot[ip] = &copied
	}
	m.mu.RUnlock()

	return m.store.Save(snapshot)
}

// sweep removes expired non-permanent records and persists if any were
// removed.
func (m *Manager) sweep() {
	m.mu.Lock()
	removed := 0
	for ip, record := range m.records {
		if record.Expired() {
			delete(m.records, ip)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Purged expired bans")
		m.scheduleSave()
	}
}
