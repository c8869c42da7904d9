package wsbridge

import (
	"sort"
	"time"
)

// ConnectionInfo describes one tracked connection at snapshot time.
type ConnectionInfo struct {
	ID         string        `json:"id"`
	State      ReadyState    `json:"state"`
	Age        time.Duration `json:"age"`
	Idle       time.Duration `json:"idle"`
	RemoteAddr string        `json:"remoteAddr,omitempty"`
}

// Stats is a point-in-time snapshot of a Registry.
type Stats struct {
	// Current is the number of currently attached, not-yet-closed
	// connections.
	Current int `json:"current"`
	// Lifetime counts every connection ever registered.
	Lifetime int64 `json:"lifetime"`
	// Closed counts connections that have been removed.
	Closed int64 `json:"closed"`
	// AverageAge is the mean age of current connections, zero when none.
	AverageAge time.Duration `json:"averageAge"`
	// Connections lists current connections ordered by id (and therefore by
	// creation time, since ids are ULIDs).
	Connections []ConnectionInfo `json:"connections,omitempty"`
}

// Stats returns a read-only snapshot of the registry. Reading never mutates
// registry state.
func (r *Registry) Stats() Stats {
	now := r.now()
	st := Stats{
		Lifetime: r.lifetime.Load(),
		Closed:   r.closed.Load(),
	}

	var totalAge time.Duration
	for item := range r.conns.IterBuffered() {
		e := item.Val
		info := ConnectionInfo{
			ID:    e.id,
			State: e.socket.ReadyState(),
			Age:   now.Sub(e.createdAt),
			Idle:  e.idle(now),
		}
		if a, ok := e.transport.(Addressed); ok {
			if addr := a.RemoteAddr(); addr != nil {
				info.RemoteAddr = addr.String()
			}
		}
		totalAge += info.Age
		st.Connections = append(st.Connections, info)
	}

	st.Current = len(st.Connections)
	if st.Current > 0 {
		st.AverageAge = totalAge / time.Duration(st.Current)
	}
	sort.Slice(st.Connections, func(i, j int) bool {
		return st.Connections[i].ID < st.Connections[j].ID
	})
	return st
}
