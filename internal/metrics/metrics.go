// Package metrics keeps process counters and serves them as JSON.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	signups         atomic.Uint64
	logins          atomic.Uint64
	activeConns     atomic.Int64
	messages        atomic.Uint64
	roomsCreated    atomic.Uint64
	archiveFailures atomic.Uint64
	archiveDropped  atomic.Uint64
	bridgeDegraded  atomic.Uint64
	bridgeFailures  atomic.Uint64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncSignup() { m.signups.Add(1) }
func (m *Metrics) IncLogin() { m.logins.Add(1) }
func (m *Metrics) IncConn() { m.activeConns.Add(1) }
func (m *Metrics) DecConn() { m.activeConns.Add(-1) }
func (m *Metrics) IncMessage() { m.messages.Add(1) }
func (m *Metrics) IncRoomCreated() { m.roomsCreated.Add(1) }
func (m *Metrics) IncArchiveFailure() { m.archiveFailures.Add(1) }
func (m *Metrics) IncArchiveDropped() { m.archiveDropped.Add(1) }
func (m *Metrics) IncBridgeDegraded() { m.bridgeDegraded.Add(1) }
func (m *Metrics) IncBridgeFailure() { m.bridgeFailures.Add(1) }

// Snapshot returns the current counter values keyed by metric name.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"signups_total":          m.signups.Load(),
		"logins_total":           m.logins.Load(),
		"active_connections":     m.activeConns.Load(),
		"messages_total":         m.messages.Load(),
		"rooms_created_total":    m.roomsCreated.Load(),
		"archive_failures_total": m.archiveFailures.Load(),
		"archive_dropped_total":  m.archiveDropped.Load(),
		"bridge_degraded_total":  m.bridgeDegraded.Load(),
		"bridge_failures_total":  m.bridgeFailures.Load(),
	}
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
