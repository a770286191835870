package servicebuilder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/lbaas-driver/internal/models"
)

type fakeStore struct {
	listeners map[string]*models.Listener
	pools     map[string]*models.Pool
	monitors  map[string]*models.HealthMonitor
	reads     int
}

func (f *fakeStore) GetListener(ctx context.Context, id string) (*models.Listener, error) {
	f.reads++
	return f.listeners[id], nil
}

func (f *fakeStore) GetPool(ctx context.Context, id string) (*models.Pool, error) {
	f.reads++
	return f.pools[id], nil
}

func (f *fakeStore) GetHealthMonitor(ctx context.Context, id string) (*models.HealthMonitor, error) {
	f.reads++
	return f.monitors[id], nil
}

// testGraph builds a two-listener load balancer: one pool with three
// members and a health monitor, hung off the first listener.
func testGraph() (*models.LoadBalancer, *fakeStore) {
	lb := &models.LoadBalancer{ID: "lb-1", ProvisioningStatus: models.StatusActive}
	pool := &models.Pool{ID: "pool-1", LBAlgorithm: "ROUND_ROBIN", LoadBalancer: lb}
	for _, id := range []string{"m-1", "m-2", "m-3"} {
		pool.Members = append(pool.Members, &models.Member{ID: id, Pool: pool})
	}
	pool.HealthMonitor = &models.HealthMonitor{ID: "hm-1", Type: "HTTP", Pool: pool}
	pool.SessionPersistence = &models.SessionPersistence{Type: "HTTP_COOKIE", CookieName: "sticky"}

	l1 := &models.Listener{ID: "lsn-1", Protocol: "HTTP", ProtocolPort: 80, LoadBalancer: lb, DefaultPool: pool}
	l2 := &models.Listener{ID: "lsn-2", Protocol: "TCP", ProtocolPort: 443, LoadBalancer: lb}
	lb.Listeners = []*models.Listener{l1, l2}
	lb.Pools = []*models.Pool{pool}

	store := &fakeStore{
		listeners: map[string]*models.Listener{"lsn-1": l1, "lsn-2": l2},
		pools:     map[string]*models.Pool{"pool-1": pool},
		monitors:  map[string]*models.HealthMonitor{"hm-1": pool.HealthMonitor},
	}
	return lb, store
}

func testDevice() *models.Device {
	return &models.Device{
		ID:            "dev-1",
		Name:          "edge-1",
		AdminStateUp:  true,
		MasqueradeMAC: "fa:16:3e:00:00:01",
		LocalLinkInformation: []models.LinkInfo{
			{SwitchID: "sw-1", PortID: "eth0"},
		},
	}
}

func TestBuildFullGraph(t *testing.T) {
	lb, store := testGraph()
	b := New(Config{Mode: ModeTrustCaller}, store)

	svc, err := b.Build(context.Background(), lb, &models.Agent{ID: "agent-1"}, testDevice(), nil)

	require.NoError(t, err)
	require.Len(t, svc.Listeners, 2)
	require.Len(t, svc.Pools, 1)
	require.Len(t, svc.HealthMonitors, 1)

	assert.Equal(t, "pool-1", svc.Listeners[0].DefaultPoolID)
	assert.Empty(t, svc.Listeners[1].DefaultPoolID)
	assert.Equal(t, []models.Ref{{ID: "m-1"}, {ID: "m-2"}, {ID: "m-3"}}, svc.Pools[0].Members)
	assert.Equal(t, "pool-1", svc.HealthMonitors[0].PoolID)
	require.NotNil(t, svc.Pools[0].SessionPersistence)
	assert.Equal(t, "sticky", svc.Pools[0].SessionPersistence.CookieName)
}

func TestBuildIsIdempotent(t *testing.T) {
	lb, store := testGraph()
	b := New(Config{Mode: ModeTrustCaller}, store)

	first, err := b.Build(context.Background(), lb, nil, testDevice(), nil)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), lb, nil, testDevice(), nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildLazyReadsRows(t *testing.T) {
	lb, store := testGraph()
	// The store row disagrees with the in-memory entity; lazy mode must
	// prefer the row while keeping relations from the in-memory graph.
	fresh := *store.listeners["lsn-1"]
	fresh.ConnectionLimit = 5000
	store.listeners["lsn-1"] = &fresh

	b := New(Config{Mode: ModeLazy}, store)
	svc, err := b.Build(context.Background(), lb, nil, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, 5000, svc.Listeners[0].ConnectionLimit)
	assert.Equal(t, "pool-1", svc.Listeners[0].DefaultPoolID)
	assert.Positive(t, store.reads)
}

func TestBuildLazyEntityDeletedMidFlight(t *testing.T) {
	tests := []struct {
		name   string
		remove func(store *fakeStore)
	}{
		{name: "listener gone", remove: func(s *fakeStore) { delete(s.listeners, "lsn-1") }},
		{name: "pool gone", remove: func(s *fakeStore) { delete(s.pools, "pool-1") }},
		{name: "monitor gone", remove: func(s *fakeStore) { delete(s.monitors, "hm-1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb, store := testGraph()
			tt.remove(store)
			b := New(Config{Mode: ModeLazy}, store)

			_, err := b.Build(context.Background(), lb, nil, nil, nil)

			assert.ErrorIs(t, err, ErrEntityGone)
		})
	}
}

func TestBuildTrustCallerSkipsStore(t *testing.T) {
	lb, store := testGraph()
	b := New(Config{Mode: ModeTrustCaller}, store)

	_, err := b.Build(context.Background(), lb, nil, nil, nil)

	require.NoError(t, err)
	assert.Zero(t, store.reads)
}

func TestBuildPartialShape(t *testing.T) {
	lb, store := testGraph()
	b := New(Config{Mode: ModeTrustCaller}, store)

	only := lb.Listeners[1]
	svc, err := b.Build(context.Background(), lb, nil, nil, Partial{
		Listeners: func(ctx context.Context, lb *models.LoadBalancer, ap Appender) error {
			return ap.AddListener(ctx, only)
		},
	})

	require.NoError(t, err)
	require.Len(t, svc.Listeners, 1)
	assert.Equal(t, "lsn-2", svc.Listeners[0].ID)
	assert.Empty(t, svc.Pools)
	assert.Empty(t, svc.HealthMonitors)
}

func TestBuildEmptyPartialKeepsCollections(t *testing.T) {
	lb, store := testGraph()
	b := New(Config{Mode: ModeTrustCaller}, store)

	svc, err := b.Build(context.Background(), lb, nil, nil, Partial{})

	require.NoError(t, err)
	assert.NotNil(t, svc.Listeners)
	assert.NotNil(t, svc.Pools)
	assert.NotNil(t, svc.HealthMonitors)
	assert.Empty(t, svc.Listeners)
}

func TestDeviceLinksSynthesizesLBMac(t *testing.T) {
	device := testDevice()

	links := DeviceLinks(device)

	require.Len(t, links, 1)
	assert.Equal(t, "fa:16:3e:00:00:01", links[0].LBMac)
	// The source device stays untouched.
	assert.Empty(t, device.LocalLinkInformation[0].LBMac)
}

func TestDeviceLinksWithoutLinkInfo(t *testing.T) {
	device := testDevice()
	device.LocalLinkInformation = nil

	links := DeviceLinks(device)

	require.Len(t, links, 1)
	assert.Equal(t, device.MasqueradeMAC, links[0].LBMac)
}

func TestBuildDeviceSnapshot(t *testing.T) {
	lb, store := testGraph()
	b := New(Config{Mode: ModeTrustCaller}, store)

	svc, err := b.Build(context.Background(), lb, nil, testDevice(), nil)

	require.NoError(t, err)
	require.NotNil(t, svc.Device)
	assert.Equal(t, "dev-1", svc.Device.ID)
	require.Len(t, svc.Device.LocalLinkInformation, 1)
	assert.Equal(t, "fa:16:3e:00:00:01", svc.Device.LocalLinkInformation[0].LBMac)
}
