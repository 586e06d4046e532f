// Package relay forwards race datagrams between the players of a session.
//
// Every peer gets its own protocol.Parser. When a datagram from one peer decodes, the
// relay rebuilds the richest packet it can from it and sends that packet to every other
// peer of the session, time-patched for the recipient.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"sbrw-mp-go/pkg/buffers"
	"sbrw-mp-go/pkg/capture"
	"sbrw-mp-go/pkg/log"
	"sbrw-mp-go/pkg/protocol"
)

// PacketConn is the part of net.PacketConn the relay uses.
type PacketConn interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	LocalAddr() net.Addr
	Close() error
}

// Recorder receives a copy of every inbound datagram.
type Recorder interface {
	Record(d capture.Datagram) error
}

type Relay struct {
	conn     PacketConn
	config   *Config
	recorder Recorder
	now      func() time.Time

	mu               sync.RWMutex
	peers            map[string]*Peer
	sessions         map[uuid.UUID]*Session
	open             *Session // newest session still accepting players
	lastCleanup      time.Time
	lastCleanupPeers int

	stats Stats

	shutdownCh chan struct{}
	shutdownWg sync.WaitGroup
	closeOnce  sync.Once
}

// New creates a relay on conn and starts the stale peer cleanup routine.
func New(conn PacketConn, config *Config) *Relay {
	if config == nil {
		config = DefaultConfig()
	}
	r := &Relay{
		conn:       conn,
		config:     config,
		now:        time.Now,
		peers:      make(map[string]*Peer),
		sessions:   make(map[uuid.UUID]*Session),
		shutdownCh: make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		r.shutdownWg.Add(1)
		go func() {
			defer r.shutdownWg.Done()
			r.cleanupRoutine()
		}()
	}
	return r
}

// SetRecorder installs rec. Call it before Listen.
func (r *Relay) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// peer returns the peer for addr, registering it in a session when unknown.
func (r *Relay) peer(addr net.Addr, now time.Time) *Peer {
	key := addr.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.peers[key]; ok {
		p.LastSeen = now
		return p
	}

	s := r.open
	if s == nil || len(s.peers) >= r.config.MaxSessionPlayers {
		s = newSession(now)
		r.sessions[s.ID] = s
		r.open = s
		log.Info().Str("session", s.ID.String()).Msg("session created")
	}
	p := newPeer(addr, s, now)
	s.peers = append(s.peers, p)
	r.peers[key] = p
	r.stats.PeersRegistered.Add(1)

	log.Info().
		Str("peer", key).
		Str("session", s.ID.String()).
		Int("players", len(s.peers)).
		Msg("peer joined")
	return p
}

// HandleDatagram decodes one datagram from a peer and forwards it to the rest of its
// session. Undersized datagrams are counted and dropped without error; a truncated
// sub-packet is counted and returned.
func (r *Relay) HandleDatagram(data []byte, from net.Addr) error {
	now := r.now()
	r.stats.DatagramsReceived.Add(1)

	if r.recorder != nil {
		err := r.recorder.Record(capture.Datagram{Time: now, Source: from.String(), Data: data})
		if err != nil {
			log.Warn().Err(err).Msg("failed to record datagram")
		}
	}

	src := r.peer(from, now)

	src.mu.Lock()
	defer src.mu.Unlock()

	if err := src.parser.Parse(data); err != nil {
		if errors.Is(err, protocol.ErrPacketTooSmall) {
			r.stats.DatagramsDropped.Add(1)
			return nil
		}
		r.stats.DatagramsCorrupt.Add(1)
		log.Warn().Str("peer", from.String()).Err(err).Msg("corrupt datagram")
		return fmt.Errorf("relay: datagram from %s: %w", from, err)
	}

	r.mu.RLock()
	targets := src.Session.others(src)
	r.mu.RUnlock()

	for _, target := range targets {
		out, err := src.packetFor(target.timeDiff(now))
		if err != nil {
			r.stats.EncodeErrors.Add(1)
			log.Warn().Str("peer", from.String()).Err(err).Msg("cannot rebuild packet")
			continue
		}
		if out == nil {
			continue
		}
		if _, err := r.conn.WriteTo(out, target.Addr); err != nil {
			r.stats.WriteErrors.Add(1)
			log.Warn().Str("peer", target.Addr.String()).Err(err).Msg("failed to forward packet")
			continue
		}
		r.stats.PacketsForwarded.Add(1)
		log.Debug().
			Str("from", from.String()).
			Str("to", target.Addr.String()).
			Int("size", len(out)).
			Msg("forwarded")
	}
	return nil
}

// Listen reads datagrams until ctx is done or the connection is closed.
func (r *Relay) Listen(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { r.conn.Close() })
	defer stop()

	log.Info().Str("addr", r.conn.LocalAddr().String()).Msg("relay listening")
	for {
		buf := buffers.DatagramPool.Get()
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			buffers.DatagramPool.Put(buf)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn().Err(err).Msg("udp read error")
			continue
		}

		if err := r.HandleDatagram(buf[:n], addr); err != nil {
			log.Debug().Err(err).Msg("datagram rejected")
		}
		buffers.DatagramPool.Put(buf)
	}
}

// CleanupStalePeers removes peers silent for longer than timeout and drops sessions
// left empty. It returns the number of peers removed.
func (r *Relay) CleanupStalePeers(timeout time.Duration) int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, p := range r.peers {
		if now.Sub(p.LastSeen) <= timeout {
			continue
		}
		p.Session.remove(p)
		delete(r.peers, key)
		removed++
		log.Info().Str("peer", key).Str("session", p.Session.ID.String()).Msg("peer expired")

		if len(p.Session.peers) == 0 {
			delete(r.sessions, p.Session.ID)
			if r.open == p.Session {
				r.open = nil
			}
			log.Info().Str("session", p.Session.ID.String()).Msg("session closed")
		}
	}
	r.stats.PeersExpired.Add(uint64(removed))
	r.lastCleanup = now
	r.lastCleanupPeers = removed
	return removed
}

func (r *Relay) cleanupRoutine() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.CleanupStalePeers(r.config.PeerTimeout)
		case <-r.shutdownCh:
			return
		}
	}
}

// Sessions returns a point-in-time view of all sessions.
func (r *Relay) Sessions() []SessionInfo {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	slices.SortFunc(sessions, func(a, b *Session) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	views := make([]SessionInfo, len(sessions))
	peers := make([][]*Peer, len(sessions))
	for i, s := range sessions {
		views[i] = SessionInfo{ID: s.ID.String(), CreatedAt: s.CreatedAt}
		peers[i] = append([]*Peer(nil), s.peers...)
		for _, p := range s.peers {
			views[i].Peers = append(views[i].Peers, PeerInfo{
				Addr:     p.Addr.String(),
				JoinedAt: p.JoinedAt,
				LastSeen: p.LastSeen,
			})
		}
	}
	r.mu.RUnlock()

	for i := range views {
		for j, p := range peers[i] {
			p.mu.Lock()
			views[i].Peers[j].PlayerInfo = p.parser.IsPlayerInfoOK()
			views[i].Peers[j].CarState = p.parser.IsCarStateOK()
			p.mu.Unlock()
		}
	}
	return views
}

// Close stops the cleanup routine and closes the connection.
func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.shutdownCh)
		r.shutdownWg.Wait()
		if err = r.conn.Close(); errors.Is(err, net.ErrClosed) {
			err = nil
		}
		log.Info().Msg("relay shutdown complete")
	})
	return err
}
