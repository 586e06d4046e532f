package relay

import (
	"sync/atomic"
	"time"
)

// Stats holds runtime counters
type Stats struct {
	DatagramsReceived atomic.Uint64
	DatagramsDropped  atomic.Uint64
	DatagramsCorrupt  atomic.Uint64
	PacketsForwarded  atomic.Uint64
	EncodeErrors      atomic.Uint64
	WriteErrors       atomic.Uint64
	PeersRegistered   atomic.Uint64
	PeersExpired      atomic.Uint64
}

type StatsSnapshot struct {
	DatagramsReceived uint64    `json:"datagrams_received"`
	DatagramsDropped  uint64    `json:"datagrams_dropped"`
	DatagramsCorrupt  uint64    `json:"datagrams_corrupt"`
	PacketsForwarded  uint64    `json:"packets_forwarded"`
	EncodeErrors      uint64    `json:"encode_errors"`
	WriteErrors       uint64    `json:"write_errors"`
	PeersRegistered   uint64    `json:"peers_registered"`
	PeersExpired      uint64    `json:"peers_expired"`
	Peers             int       `json:"peers"`
	Sessions          int       `json:"sessions"`
	LastCleanup       time.Time `json:"last_cleanup"`
	LastCleanupPeers  int       `json:"last_cleanup_peers"`
}

// Snapshot returns a copy of the current statistics
func (r *Relay) Snapshot() StatsSnapshot {
	r.mu.RLock()
	peers, sessions := len(r.peers), len(r.sessions)
	lastCleanup, lastCleanupPeers := r.lastCleanup, r.lastCleanupPeers
	r.mu.RUnlock()

	return StatsSnapshot{
		DatagramsReceived: r.stats.DatagramsReceived.Load(),
		DatagramsDropped:  r.stats.DatagramsDropped.Load(),
		DatagramsCorrupt:  r.stats.DatagramsCorrupt.Load(),
		PacketsForwarded:  r.stats.PacketsForwarded.Load(),
		EncodeErrors:      r.stats.EncodeErrors.Load(),
		WriteErrors:       r.stats.WriteErrors.Load(),
		PeersRegistered:   r.stats.PeersRegistered.Load(),
		PeersExpired:      r.stats.PeersExpired.Load(),
		Peers:             peers,
		Sessions:          sessions,
		LastCleanup:       lastCleanup,
		LastCleanupPeers:  lastCleanupPeers,
	}
}
