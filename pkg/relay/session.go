package relay

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"sbrw-mp-go/pkg/protocol"
)

// Peer is one race client, identified by its UDP source address.
type Peer struct {
	Addr     net.Addr
	Session  *Session
	JoinedAt time.Time
	LastSeen time.Time

	mu     sync.Mutex // protects parser
	parser *protocol.Parser
}

func newPeer(addr net.Addr, s *Session, now time.Time) *Peer {
	return &Peer{
		Addr:     addr,
		Session:  s,
		JoinedAt: now,
		LastSeen: now,
		parser:   protocol.NewParser(),
	}
}

// timeDiff is what a recipient gets in the car-state delta: milliseconds since it joined.
func (p *Peer) timeDiff(now time.Time) int64 {
	return now.Sub(p.JoinedAt).Milliseconds()
}

// packetFor builds the richest datagram the last decoded packet allows.
// Must be called with p.mu held.
func (p *Peer) packetFor(timeDiff int64) ([]byte, error) {
	switch {
	case p.parser.IsOK():
		return p.parser.PlayerPacket(timeDiff), nil
	case p.parser.IsCarStateOK():
		return p.parser.CarStatePacket(timeDiff)
	default:
		return p.parser.PlayerInfoPacket(timeDiff), nil
	}
}

// Session is a race grid: the set of peers that see each other's packets.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time
	peers     []*Peer
}

func newSession(now time.Time) *Session {
	return &Session{ID: uuid.New(), CreatedAt: now}
}

func (s *Session) others(p *Peer) []*Peer {
	out := make([]*Peer, 0, len(s.peers))
	for _, q := range s.peers {
		if q != p {
			out = append(out, q)
		}
	}
	return out
}

func (s *Session) remove(p *Peer) {
	for i, q := range s.peers {
		if q == p {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			return
		}
	}
}

type PeerInfo struct {
	Addr       string    `json:"addr"`
	JoinedAt   time.Time `json:"joined_at"`
	LastSeen   time.Time `json:"last_seen"`
	PlayerInfo bool      `json:"player_info"`
	CarState   bool      `json:"car_state"`
}

type SessionInfo struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Peers     []PeerInfo `json:"peers"`
}
