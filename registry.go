package wsbridge

import (
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// entry is one live, attached connection tracked by a Registry.
type entry struct {
	id        string
	socket    *Socket
	transport NativeTransport
	createdAt time.Time

	// lastActivity holds unix nanoseconds of the latest message traffic.
	lastActivity atomic.Int64
}

func (e *entry) touch(now time.Time) {
	e.lastActivity.Store(now.UnixNano())
}

func (e *entry) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, e.lastActivity.Load()))
}

// Registry is an in-memory table of currently attached connections. It is
// created once at server start, lives for the process lifetime, and is never
// reset mid-process except by explicit administrative action (CloseAll).
//
// Invariant: the table size equals the number of currently attached,
// not-yet-closed sockets. Entries are removed through a single path — the
// socket's own close event — so organic closes, CloseAll and CleanupStale
// cannot double-count.
type Registry struct {
	log   zerolog.Logger
	conns cmap.ConcurrentMap[string, *entry]

	lifetime atomic.Int64
	closed   atomic.Int64

	now func() time.Time
}

// NewRegistry creates a registry that logs nowhere.
func NewRegistry() *Registry {
	return NewRegistryWithLogger(zerolog.Nop())
}

// NewRegistryWithLogger creates a registry emitting lifecycle logs to log.
func NewRegistryWithLogger(log zerolog.Logger) *Registry {
	return &Registry{
		log:   log,
		conns: cmap.New[*entry](),
		now:   time.Now,
	}
}

// Register adds an attached socket to the registry and returns its
// connection id. Ids are ULIDs: time-ordered with monotonic entropy, so
// collisions are effectively impossible and listings sort by creation.
//
// Register may be called at most once per socket; a second call returns
// ErrAlreadyRegistered and does not double-count. Registration installs a
// close listener that removes the entry and a message listener that tracks
// activity for staleness accounting.
func (r *Registry) Register(s *Socket, t NativeTransport) (string, error) {
	if !s.registered.CompareAndSwap(false, true) {
		return "", ErrAlreadyRegistered
	}

	id := ulid.Make().String()
	now := r.now()
	e := &entry{id: id, socket: s, transport: t, createdAt: now}
	e.touch(now)

	r.conns.Set(id, e)
	r.lifetime.Add(1)

	s.AddListener(KindMessage, func(Event) {
		e.touch(r.now())
	})
	s.AddListener(KindClose, func(Event) {
		r.remove(id)
	})
	// The close event may have fired before the listener above existed
	// (a socket closed during attachment); never leak such an entry.
	if s.ReadyState() == Closed {
		r.remove(id)
	}

	r.log.Debug().Str("conn", id).Msg("connection registered")
	return id, nil
}

// remove drops an entry and counts the closure. It is idempotent: cleanup
// may race an organic close, and removing an already-removed entry is a
// no-op, not an error.
func (r *Registry) remove(id string) {
	if _, ok := r.conns.Pop(id); ok {
		r.closed.Add(1)
		r.log.Debug().Str("conn", id).Msg("connection removed")
	}
}

// CleanupStale removes every connection whose idle time is at or above
// idleThreshold, requests close of its socket, and returns the number
// removed. Connections below the threshold are never touched.
func (r *Registry) CleanupStale(idleThreshold time.Duration) int {
	now := r.now()
	var removed int
	for item := range r.conns.IterBuffered() {
		e := item.Val
		if e.idle(now) < idleThreshold {
			continue
		}
		r.remove(e.id)
		removed++
		if err := e.socket.CloseWithStatus(StatusGoingAway, "idle timeout"); err != nil {
			r.log.Warn().Err(err).Str("conn", e.id).Msg("closing stale connection")
		}
	}
	return removed
}

// CloseAll requests close of every tracked socket with the given status. It
// does not remove entries itself: removal rides the same close-listener path
// as organic closes, so each entry disappears when its socket's close event
// fires.
func (r *Registry) CloseAll(code StatusCode, reason string) {
	for item := range r.conns.IterBuffered() {
		if err := item.Val.socket.CloseWithStatus(code, reason); err != nil {
			r.log.Warn().Err(err).Str("conn", item.Key).Msg("closing connection")
		}
	}
}
