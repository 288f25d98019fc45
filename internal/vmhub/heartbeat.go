package vmhub

import (
	"context"
	"sync"
	"time"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
	"github.com/GoatGit/semibot-sub006/internal/conn"
)

// heartbeatSupervisor is the Heartbeat Supervisor (C4): a periodic job that
// scans connections for liveness and invokes a callback on timeout. It never
// mutates connection state itself — the hub's callback performs the
// mutation, keeping the scan loop free of side effects it doesn't own.
type heartbeatSupervisor struct {
	hub *Hub

	mu     sync.Mutex
	ticker *time.Ticker
	stopCh chan struct{}
}

func newHeartbeatSupervisor(hub *Hub) *heartbeatSupervisor {
	return &heartbeatSupervisor{hub: hub}
}

func (s *heartbeatSupervisor) start(scanInterval, livenessBound time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(scanInterval)
	s.stopCh = make(chan struct{})
	ticker := s.ticker
	stopCh := s.stopCh

	go func() {
		for {
			select {
			case <-stopCh:
				return
			case now := <-ticker.C:
				s.scan(now, livenessBound)
			}
		}
	}()
}

func (s *heartbeatSupervisor) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stopCh)
	s.ticker = nil
}

// scan iterates the hub's current connections and invokes onTimeout for any
// ready connection silent past livenessBound.
func (s *heartbeatSupervisor) scan(now time.Time, livenessBound time.Duration) {
	s.hub.mu.RLock()
	conns := make([]*conn.Connection, 0, len(s.hub.connections))
	for _, c := range s.hub.connections {
		conns = append(conns, c)
	}
	s.hub.mu.RUnlock()

	for _, c := range conns {
		if c.Status() != conn.StatusReady {
			continue
		}
		if now.Sub(c.LastHeartbeatAt()) > livenessBound {
			s.onTimeout(c)
		}
	}
}

// onTimeout is the hub-installed callback: it performs the full teardown
// sequence (§4.4) with the heartbeat-timeout close code and reason, then
// writes a gateway audit entry for the timeout.
func (s *heartbeatSupervisor) onTimeout(c *conn.Connection) {
	s.hub.teardownConnection(c, CloseHeartbeatTimeout, "Heartbeat timeout")
	if s.hub.deps.Logs != nil {
		_ = s.hub.deps.Logs.LogExecution(context.Background(), c.OrgID, collaborators.AuditEntry{
			Source: "gateway",
			Action: "heartbeat_timeout",
			Detail: map[string]any{"user_id": c.UserID},
		})
	}
}
