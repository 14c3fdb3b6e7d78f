package chirp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/constellation-daq/constellation-go/internal/queue"
)

// DiscoveredService records a peer's advertised service. Equality (as used
// for identity/dedup purposes) is (HostUUID, ServiceID, Port) only — Address
// and Alive are not part of identity.
type DiscoveredService struct {
	HostUUID  uuid.UUID
	ServiceID ServiceIdentifier
	Address   net.IP
	Port      uint16
	Alive     bool
}

func sameIdentity(a, b DiscoveredService) bool {
	return a.HostUUID == b.HostUUID && a.ServiceID == b.ServiceID && a.Port == b.Port
}

// Callback is invoked when a service matching a registered request is
// discovered (OFFER) or departs (DEPART, with Alive=false).
type Callback func(DiscoveredService)

// Manager implements the CHIRP BroadcastManager: it owns the offer
// registry, the callback registry, the discovered-service cache, and the
// background listener goroutine.
type Manager struct {
	log *zap.Logger
	b   *beacon
	tq  *queue.Queue

	offersMu sync.Mutex
	offers   map[uint16]ServiceIdentifier // port -> service id

	callbacksMu sync.Mutex
	callbacks   map[ServiceIdentifier]Callback

	discoveredMu sync.Mutex
	discovered   []DiscoveredService
}

// New creates a Manager bound to the given interface/group, sharing tq with
// the rest of the satellite so discovered-service callbacks execute on the
// single task-loop goroutine.
func New(hostUUID uuid.UUID, group, iface string, port int, tq *queue.Queue, log *zap.Logger) (*Manager, error) {
	b, err := newBeacon(hostUUID, group, iface, port)
	if err != nil {
		return nil, err
	}
	return &Manager{
		log:       log,
		b:         b,
		tq:        tq,
		offers:    map[uint16]ServiceIdentifier{},
		callbacks: map[ServiceIdentifier]Callback{},
	}, nil
}

// RegisterOffer advertises a service on the given port, idempotent per
// port; re-registration replaces the previous entry and logs a warning.
func (m *Manager) RegisterOffer(sid ServiceIdentifier, port uint16) {
	m.offersMu.Lock()
	defer m.offersMu.Unlock()
	if _, exists := m.offers[port]; exists {
		m.log.Warn("replacing CHIRP service registration", zap.Uint16("port", port))
	}
	m.offers[port] = sid
}

// RegisterRequest arms a callback for a service kind. If services matching
// sid are already in the discovered cache, one invocation per already-
// discovered peer is enqueued immediately.
func (m *Manager) RegisterRequest(sid ServiceIdentifier, cb Callback) {
	m.callbacksMu.Lock()
	if _, exists := m.callbacks[sid]; exists {
		m.log.Warn("overwriting CHIRP callback", zap.Stringer("service", sid))
	}
	m.callbacks[sid] = cb
	m.callbacksMu.Unlock()

	for _, svc := range m.GetDiscovered(sid) {
		svc := svc
		m.tq.Push(func() { cb(svc) }, "chirp:discovered-replay")
	}
}

// GetDiscovered returns the currently cached services matching sid.
func (m *Manager) GetDiscovered(sid ServiceIdentifier) []DiscoveredService {
	m.discoveredMu.Lock()
	defer m.discoveredMu.Unlock()
	var out []DiscoveredService
	for _, s := range m.discovered {
		if s.ServiceID == sid {
			out = append(out, s)
		}
	}
	return out
}

// BroadcastOffers emits OFFER for every registered service, or only those
// matching sid when sid is non-nil.
func (m *Manager) BroadcastOffers(sid *ServiceIdentifier) {
	m.offersMu.Lock()
	offers := make(map[uint16]ServiceIdentifier, len(m.offers))
	for k, v := range m.offers {
		offers[k] = v
	}
	m.offersMu.Unlock()

	for port, s := range offers {
		if sid != nil && *sid != s {
			continue
		}
		if err := m.b.send(s, TypeOffer, port); err != nil {
			m.log.Error("broadcast CHIRP OFFER failed", zap.Error(err))
		}
	}
}

// BroadcastRequests emits REQUEST for every armed callback.
func (m *Manager) BroadcastRequests() {
	m.callbacksMu.Lock()
	sids := make([]ServiceIdentifier, 0, len(m.callbacks))
	for sid := range m.callbacks {
		sids = append(sids, sid)
	}
	m.callbacksMu.Unlock()

	for _, sid := range sids {
		if err := m.b.send(sid, TypeRequest, 0); err != nil {
			m.log.Error("broadcast CHIRP REQUEST failed", zap.Error(err))
		}
	}
}

// BroadcastDepart emits DEPART for every offered service. Called at
// shutdown.
func (m *Manager) BroadcastDepart() {
	m.offersMu.Lock()
	offers := make(map[uint16]ServiceIdentifier, len(m.offers))
	for k, v := range m.offers {
		offers[k] = v
	}
	m.offersMu.Unlock()

	for port, sid := range offers {
		if err := m.b.send(sid, TypeDepart, port); err != nil {
			m.log.Error("broadcast CHIRP DEPART failed", zap.Error(err))
		}
	}
}

// Run listens for CHIRP datagrams until ctx is cancelled, implementing the
// REQUEST/OFFER/DEPART handling steps of the protocol.
func (m *Manager) Run(ctx context.Context, selfUUID uuid.UUID) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		default:
		}

		_ = m.b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		msg, err := m.b.receive(buf)
		if err != nil {
			m.log.Debug("CHIRP receive error", zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		if msg.Group != m.b.group {
			continue
		}
		if msg.HostUUID == selfUUID {
			continue
		}

		switch msg.Type {
		case TypeRequest:
			sid := msg.ServiceID
			m.BroadcastOffers(&sid)
		case TypeOffer:
			m.discoverService(*msg)
		case TypeDepart:
			if msg.Port != 0 {
				m.departService(*msg)
			}
		}
	}
}

func (m *Manager) discoverService(msg Message) {
	svc := DiscoveredService{HostUUID: msg.HostUUID, ServiceID: msg.ServiceID, Address: msg.FromAddr, Port: msg.Port, Alive: true}

	m.discoveredMu.Lock()
	for _, existing := range m.discovered {
		if sameIdentity(existing, svc) {
			m.discoveredMu.Unlock()
			m.log.Debug("CHIRP service already discovered", zap.Stringer("service", msg.ServiceID), zap.Stringer("host", msg.HostUUID))
			return
		}
	}
	m.discovered = append(m.discovered, svc)
	m.discoveredMu.Unlock()

	m.log.Info("discovered CHIRP service",
		zap.Stringer("service", msg.ServiceID),
		zap.Stringer("host", msg.HostUUID),
		zap.Uint16("port", msg.Port))

	m.callbacksMu.Lock()
	cb, ok := m.callbacks[msg.ServiceID]
	m.callbacksMu.Unlock()
	if !ok {
		m.log.Debug("no CHIRP callback registered", zap.Stringer("service", msg.ServiceID))
		return
	}
	m.tq.Push(func() { cb(svc) }, "chirp:offer")
}

func (m *Manager) departService(msg Message) {
	target := DiscoveredService{HostUUID: msg.HostUUID, ServiceID: msg.ServiceID, Port: msg.Port}

	m.discoveredMu.Lock()
	idx := -1
	for i, existing := range m.discovered {
		if sameIdentity(existing, target) {
			idx = i
			break
		}
	}
	var removed DiscoveredService
	if idx >= 0 {
		removed = m.discovered[idx]
		m.discovered = append(m.discovered[:idx], m.discovered[idx+1:]...)
	}
	m.discoveredMu.Unlock()

	if idx < 0 {
		m.log.Debug("CHIRP depart for unknown service", zap.Stringer("service", msg.ServiceID), zap.Stringer("host", msg.HostUUID))
		return
	}

	removed.Alive = false
	m.log.Debug("CHIRP service departed", zap.Stringer("service", msg.ServiceID), zap.Stringer("host", msg.HostUUID))

	m.callbacksMu.Lock()
	cb, ok := m.callbacks[msg.ServiceID]
	m.callbacksMu.Unlock()
	if !ok {
		return
	}
	m.tq.Push(func() { cb(removed) }, "chirp:depart")
}

func (m *Manager) shutdown() {
	m.log.Info("CHIRP listener shutting down")
	m.BroadcastDepart()
	time.Sleep(500 * time.Millisecond)
	_ = m.b.close()
}
