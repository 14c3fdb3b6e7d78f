package chirp

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/constellation-daq/constellation-go/internal/queue"
)

func newTestManager() *Manager {
	return &Manager{
		log:       zap.NewNop(),
		tq:        queue.New(),
		offers:    map[uint16]ServiceIdentifier{},
		callbacks: map[ServiceIdentifier]Callback{},
	}
}

func drainOne(t *testing.T, tq *queue.Queue) {
	t.Helper()
	task, ok := tq.Pop(time.Second)
	if !ok {
		t.Fatal("expected a queued task, got none")
	}
	task.Fn()
}

func TestDiscoverThenRegisterReplaysImmediately(t *testing.T) {
	m := newTestManager()
	host := uuid.New()
	m.discoverService(Message{HostUUID: host, ServiceID: ServiceHeartbeat, Port: 61234, Type: TypeOffer})

	var got DiscoveredService
	m.RegisterRequest(ServiceHeartbeat, func(d DiscoveredService) { got = d })
	drainOne(t, m.tq)

	if got.HostUUID != host || got.Port != 61234 {
		t.Fatalf("expected replay of already-discovered service, got %+v", got)
	}
}

func TestRegisterThenDiscoverInvokesCallback(t *testing.T) {
	m := newTestManager()
	host := uuid.New()

	var got DiscoveredService
	m.RegisterRequest(ServiceHeartbeat, func(d DiscoveredService) { got = d })
	m.discoverService(Message{HostUUID: host, ServiceID: ServiceHeartbeat, Port: 61234, Type: TypeOffer})
	drainOne(t, m.tq)

	if got.HostUUID != host {
		t.Fatalf("expected callback invoked for discovered service, got %+v", got)
	}
}

func TestDuplicateOfferIsIgnored(t *testing.T) {
	m := newTestManager()
	host := uuid.New()
	msg := Message{HostUUID: host, ServiceID: ServiceControl, Port: 1000, Type: TypeOffer}

	m.discoverService(msg)
	m.discoverService(msg)

	if len(m.GetDiscovered(ServiceControl)) != 1 {
		t.Fatalf("expected exactly one discovered entry, got %d", len(m.GetDiscovered(ServiceControl)))
	}
}

func TestDepartRemovesDiscoveredService(t *testing.T) {
	m := newTestManager()
	host := uuid.New()
	msg := Message{HostUUID: host, ServiceID: ServiceControl, Port: 1000, Type: TypeOffer}
	m.discoverService(msg)

	var depart DiscoveredService
	m.RegisterRequest(ServiceControl, func(d DiscoveredService) { depart = d })
	drainOne(t, m.tq) // replay from RegisterRequest

	m.departService(Message{HostUUID: host, ServiceID: ServiceControl, Port: 1000, Type: TypeDepart})
	drainOne(t, m.tq)

	if depart.Alive {
		t.Fatal("expected departed service callback to report Alive=false")
	}
	if len(m.GetDiscovered(ServiceControl)) != 0 {
		t.Fatal("expected discovered service to be removed after depart")
	}
}
