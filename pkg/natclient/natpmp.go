// Package natclient opens the relay's UDP port on the local gateway with NAT-PMP.
package natclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"

	"sbrw-mp-go/pkg/log"
)

const (
	// DefaultLifetime is requested when the caller asks for none.
	DefaultLifetime = time.Hour
	requestTimeout  = 3 * time.Second
)

var ErrMappingClosed = errors.New("natclient: mapping closed")

// portMapper is the part of *natpmp.Client a Mapping talks to.
type portMapper interface {
	GetExternalAddress() (*natpmp.GetExternalAddressResult, error)
	AddPortMapping(protocol string, internalPort, requestedExternalPort int, lifetime int) (*natpmp.AddPortMappingResult, error)
}

// Mapping is a UDP port mapping granted by the gateway.
type Mapping struct {
	Gateway      net.IP
	ExternalIP   net.IP
	InternalPort uint16
	ExternalPort uint16
	Lifetime     time.Duration

	mu     sync.Mutex
	client portMapper
	closed bool
}

// MapUDPPort discovers the default gateway and asks it to forward port to this host.
func MapUDPPort(port uint16, lifetime time.Duration) (*Mapping, error) {
	gw, err := gateway.DiscoverGateway()
	if err != nil {
		return nil, fmt.Errorf("natclient: gateway discovery failed: %w", err)
	}
	log.Info().Str("gateway", gw.String()).Msg("using NAT-PMP gateway")
	return mapUDP(natpmp.NewClientWithTimeout(gw, requestTimeout), gw, port, lifetime)
}

func mapUDP(client portMapper, gw net.IP, port uint16, lifetime time.Duration) (*Mapping, error) {
	m := &Mapping{
		Gateway:      gw,
		InternalPort: port,
		ExternalPort: port,
		client:       client,
	}

	// best effort
	if res, err := client.GetExternalAddress(); err != nil {
		log.Warn().Err(err).Msg("NAT-PMP: cannot get external address")
	} else {
		m.ExternalIP = net.IP(res.ExternalIPAddress[:])
	}

	if err := m.request(lifetime); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mapping) request(lifetime time.Duration) error {
	res, err := m.client.AddPortMapping("udp", int(m.InternalPort), int(m.ExternalPort), leaseSeconds(lifetime))
	if err != nil {
		return fmt.Errorf("natclient: udp mapping for port %d failed: %w", m.InternalPort, err)
	}
	granted := uint16(res.MappedExternalPort)
	if granted != m.ExternalPort {
		log.Warn().
			Uint16("requested", m.ExternalPort).
			Uint16("granted", granted).
			Msg("NAT-PMP: gateway assigned a different external port")
	}
	m.ExternalPort = granted
	m.Lifetime = time.Duration(res.PortMappingLifetimeInSeconds) * time.Second

	log.Info().
		Uint16("internal", m.InternalPort).
		Uint16("external", m.ExternalPort).
		Dur("lifetime", m.Lifetime).
		Msg("NAT-PMP: mapping granted")
	return nil
}

// Renew asks the gateway to extend the mapping by lifetime.
func (m *Mapping) Renew(lifetime time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMappingClosed
	}
	return m.request(lifetime)
}

// KeepAlive renews the mapping at half its granted lifetime until ctx is done.
func (m *Mapping) KeepAlive(ctx context.Context, lifetime time.Duration) {
	for {
		m.mu.Lock()
		wait := m.Lifetime / 2
		m.mu.Unlock()
		if wait <= 0 {
			wait = time.Minute
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := m.Renew(lifetime); err != nil {
			if errors.Is(err, ErrMappingClosed) {
				return
			}
			log.Warn().Err(err).Msg("NAT-PMP: renewal failed")
		}
	}
}

// Close deletes the mapping. A lifetime of zero is the NAT-PMP delete request.
func (m *Mapping) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if _, err := m.client.AddPortMapping("udp", int(m.InternalPort), 0, 0); err != nil {
		return fmt.Errorf("natclient: failed to delete mapping for port %d: %w", m.InternalPort, err)
	}
	log.Info().Uint16("internal", m.InternalPort).Msg("NAT-PMP: mapping removed")
	return nil
}

// leaseSeconds converts a lifetime to whole seconds, never zero since zero deletes.
func leaseSeconds(d time.Duration) int {
	if d <= 0 {
		d = DefaultLifetime
	}
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
