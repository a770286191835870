package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/lbaas-driver/internal/models"
	"github.com/Sh00ty/lbaas-driver/internal/servicebuilder"
)

type resolved struct {
	agent  *models.Agent
	device *models.Device
	err    error
}

type fakeScheduler struct {
	byLB map[string]resolved
}

func (f *fakeScheduler) Resolve(ctx context.Context, lb *models.LoadBalancer) (*models.Agent, *models.Device, error) {
	r := f.byLB[lb.ID]
	return r.agent, r.device, r.err
}

type rpcCall struct {
	method string
	kind   models.EntityKind
	svc    *models.ServiceDescriptor
	host   string
}

type fakeRPC struct {
	calls []rpcCall
	fail  error
}

func (f *fakeRPC) record(method string, kind models.EntityKind, svc *models.ServiceDescriptor, host string) error {
	if f.fail != nil {
		return f.fail
	}
	f.calls = append(f.calls, rpcCall{method: method, kind: kind, svc: svc, host: host})
	return nil
}

func (f *fakeRPC) Create(ctx context.Context, kind models.EntityKind, payload any, svc *models.ServiceDescriptor, host string) error {
	return f.record("create", kind, svc, host)
}

func (f *fakeRPC) Update(ctx context.Context, kind models.EntityKind, oldPayload, payload any, svc *models.ServiceDescriptor, host string) error {
	return f.record("update", kind, svc, host)
}

func (f *fakeRPC) Delete(ctx context.Context, kind models.EntityKind, payload any, svc *models.ServiceDescriptor, host string) error {
	return f.record("delete", kind, svc, host)
}

func (f *fakeRPC) UpdateLoadBalancerStats(ctx context.Context, lb *models.LoadBalancer, svc *models.ServiceDescriptor, host string) error {
	return f.record("stats", models.KindLoadBalancer, svc, host)
}

func (f *fakeRPC) AddACLBind(ctx context.Context, listener *models.Listener, group *models.ACLGroup, bind *models.ACLBind, svc *models.ServiceDescriptor, host string) error {
	return f.record("add_acl_bind", models.KindACLGroup, svc, host)
}

func (f *fakeRPC) RemoveACLBind(ctx context.Context, listener *models.Listener, group *models.ACLGroup, bind *models.ACLBind, svc *models.ServiceDescriptor, host string) error {
	return f.record("remove_acl_bind", models.KindACLGroup, svc, host)
}

func (f *fakeRPC) UpdateACLGroup(ctx context.Context, group *models.ACLGroup, svc *models.ServiceDescriptor, host string) error {
	return f.record("update_acl_group", models.KindACLGroup, svc, host)
}

type statusCall struct {
	kind   models.EntityKind
	id     string
	status models.Status
}

type fakeStatus struct {
	calls []statusCall
}

func (f *fakeStatus) SetStatus(ctx context.Context, kind models.EntityKind, id string, status models.Status) error {
	f.calls = append(f.calls, statusCall{kind: kind, id: id, status: status})
	return nil
}

type fakeRemover struct {
	deleted []string
}

func (f *fakeRemover) DeleteLoadBalancer(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakePorts struct {
	boundLB string
	links   []models.LinkInfo
}

func (f *fakePorts) BindVIPPort(ctx context.Context, lb *models.LoadBalancer, agentHost string, links []models.LinkInfo) error {
	f.boundLB = lb.ID
	f.links = links
	return nil
}

func testLB() *models.LoadBalancer {
	lb := &models.LoadBalancer{ID: "lb-1", Provider: "vnlb", ProvisioningStatus: models.StatusActive}
	pool := &models.Pool{ID: "pool-1", LoadBalancer: lb}
	pool.Members = []*models.Member{{ID: "m-1", Pool: pool}}
	listener := &models.Listener{ID: "lsn-1", LoadBalancer: lb, DefaultPool: pool}
	other := &models.Listener{ID: "lsn-2", LoadBalancer: lb}
	lb.Listeners = []*models.Listener{listener, other}
	lb.Pools = []*models.Pool{pool}
	return lb
}

type fixture struct {
	sched  *fakeScheduler
	rpc    *fakeRPC
	status *fakeStatus
	rem    *fakeRemover
	deps   Deps
}

func newFixture(lb *models.LoadBalancer) *fixture {
	f := &fixture{
		sched: &fakeScheduler{byLB: map[string]resolved{
			lb.ID: {
				agent:  &models.Agent{ID: "agent-1", Host: "agent-1-host", Alive: true, AdminStateUp: true},
				device: &models.Device{ID: "dev-1", AdminStateUp: true, MasqueradeMAC: "fa:16:3e:00:00:01"},
			},
		}},
		rpc:    &fakeRPC{},
		status: &fakeStatus{},
		rem:    &fakeRemover{},
	}
	f.deps = Deps{
		Scheduler: f.sched,
		Builder:   servicebuilder.New(servicebuilder.Config{Mode: servicebuilder.ModeTrustCaller}, nil),
		RPC:       f.rpc,
		Status:    f.status,
		Remover:   f.rem,
	}
	return f
}

func TestListenerCreateDispatchesFullGraph(t *testing.T) {
	lb := testLB()
	f := newFixture(lb)
	m := NewListenerManager(Config{Provider: "vnlb"}, f.deps)

	err := m.Create(context.Background(), lb.Listeners[0])

	require.NoError(t, err)
	require.Len(t, f.rpc.calls, 1)
	call := f.rpc.calls[0]
	assert.Equal(t, "create", call.method)
	assert.Equal(t, models.KindListener, call.kind)
	assert.Equal(t, "agent-1-host", call.host)
	assert.Len(t, call.svc.Listeners, 2)
	assert.Len(t, call.svc.Pools, 1)
}

func TestListenerCreateIncrementalShape(t *testing.T) {
	lb := testLB()
	f := newFixture(lb)
	m := NewListenerManager(Config{Provider: "vnlb", Incremental: true}, f.deps)

	err := m.Create(context.Background(), lb.Listeners[0])

	require.NoError(t, err)
	require.Len(t, f.rpc.calls, 1)
	svc := f.rpc.calls[0].svc
	require.Len(t, svc.Listeners, 1)
	assert.Equal(t, "lsn-1", svc.Listeners[0].ID)
	require.Len(t, svc.Pools, 1)
	assert.Equal(t, "pool-1", svc.Pools[0].ID)
}

func TestListenerDeleteIncrementalShape(t *testing.T) {
	lb := testLB()
	f := newFixture(lb)
	m := NewListenerManager(Config{Provider: "vnlb", Incremental: true}, f.deps)

	err := m.Delete(context.Background(), lb.Listeners[0])

	require.NoError(t, err)
	require.Len(t, f.rpc.calls, 1)
	svc := f.rpc.calls[0].svc
	require.Len(t, svc.Listeners, 1)
	assert.Empty(t, svc.Pools)
}

func TestMemberCreateIncrementalShape(t *testing.T) {
	lb := testLB()
	f := newFixture(lb)
	m := NewMemberManager(Config{Provider: "vnlb", Incremental: true}, f.deps)

	err := m.Create(context.Background(), lb.Pools[0].Members[0])

	require.NoError(t, err)
	require.Len(t, f.rpc.calls, 1)
	svc := f.rpc.calls[0].svc
	assert.Empty(t, svc.Listeners)
	require.Len(t, svc.Pools, 1)
	assert.Equal(t, []models.Ref{{ID: "m-1"}}, svc.Pools[0].Members)
}

func TestDispatchFailureMarksEntityAndLoadBalancer(t *testing.T) {
	lb := testLB()
	f := newFixture(lb)
	dispatchErr := errors.New("broker unavailable")
	f.rpc.fail = dispatchErr
	m := NewListenerManager(Config{Provider: "vnlb"}, f.deps)

	err := m.Create(context.Background(), lb.Listeners[0])

	assert.ErrorIs(t, err, dispatchErr)
	require.Len(t, f.status.calls, 2)
	assert.Equal(t, statusCall{kind: models.KindLoadBalancer, id: "lb-1", status: models.StatusError}, f.status.calls[0])
	assert.Equal(t, statusCall{kind: models.KindListener, id: "lsn-1", status: models.StatusError}, f.status.calls[1])
}

func TestResolveFailureMarksError(t *testing.T) {
	lb := testLB()
	f := newFixture(lb)
	schedErr := errors.New("no agents")
	f.sched.byLB[lb.ID] = resolved{err: schedErr}
	m := NewPoolManager(Config{Provider: "vnlb"}, f.deps)

	err := m.Create(context.Background(), lb.Pools[0])

	assert.ErrorIs(t, err, schedErr)
	require.Len(t, f.status.calls, 2)
	assert.Empty(t, f.rpc.calls)
}

func TestDetachedMemberFailsFast(t *testing.T) {
	lb := testLB()
	f := newFixture(lb)
	m := NewMemberManager(Config{Provider: "vnlb"}, f.deps)

	orphan := &models.Member{ID: "m-x"}
	err := m.Create(context.Background(), orphan)

	assert.ErrorIs(t, err, ErrNoAttachedLoadBalancer)
	assert.Empty(t, f.rpc.calls)
}

func TestLoadBalancerCreateBindsVIPPort(t *testing.T) {
	lb := testLB()
	lb.ProvisioningStatus = models.StatusPendingCreate
	f := newFixture(lb)
	ports := &fakePorts{}
	f.deps.Ports = ports
	m := NewLoadBalancerManager(Config{Provider: "vnlb"}, f.deps)

	err := m.Create(context.Background(), lb)

	require.NoError(t, err)
	assert.Equal(t, "lb-1", ports.boundLB)
	require.Len(t, ports.links, 1)
	assert.Equal(t, "fa:16:3e:00:00:01", ports.links[0].LBMac)
	require.Len(t, f.rpc.calls, 1)
	assert.Equal(t, "create", f.rpc.calls[0].method)
}

func TestLoadBalancerCreateWithoutBindingFails(t *testing.T) {
	lb := testLB()
	f := newFixture(lb)
	f.sched.byLB[lb.ID] = resolved{}
	m := NewLoadBalancerManager(Config{Provider: "vnlb"}, f.deps)

	err := m.Create(context.Background(), lb)

	require.Error(t, err)
	assert.Empty(t, f.rpc.calls)
	require.Len(t, f.status.calls, 1)
	assert.Equal(t, statusCall{kind: models.KindLoadBalancer, id: "lb-1", status: models.StatusError}, f.status.calls[0])
}

func TestLoadBalancerSilentLocalDelete(t *testing.T) {
	lb := testLB()
	lb.ProvisioningStatus = models.StatusPendingDelete
	f := newFixture(lb)
	f.sched.byLB[lb.ID] = resolved{}
	m := NewLoadBalancerManager(Config{Provider: "vnlb"}, f.deps)

	err := m.Delete(context.Background(), lb)

	require.NoError(t, err)
	assert.Equal(t, []string{"lb-1"}, f.rem.deleted)
	assert.Empty(t, f.rpc.calls)
}

func TestStatsSkipsUnboundLoadBalancer(t *testing.T) {
	lb := testLB()
	f := newFixture(lb)
	f.sched.byLB[lb.ID] = resolved{}
	m := NewLoadBalancerManager(Config{Provider: "vnlb"}, f.deps)

	err := m.Stats(context.Background(), lb)

	require.NoError(t, err)
	assert.Empty(t, f.rpc.calls)
	assert.Empty(t, f.status.calls)
}
