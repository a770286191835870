// Package servicebuilder assembles service descriptors: denormalized
// snapshots of a load balancer and its dependent graph, shaped for
// dispatch to an agent.
package servicebuilder

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/lbaas-driver/internal/models"
)

// ErrEntityGone means a lazy re-read found no row for an entity the
// in-memory graph still references, usually a delete racing the build.
var ErrEntityGone = errors.New("entity row disappeared during assembly")

// Mode selects entity fidelity. Lazy re-reads every appended entity from
// the store by id; TrustCaller uses the in-memory entity as-is. This is a
// per-deployment throughput/consistency trade-off.
type Mode int

const (
	ModeLazy Mode = iota
	ModeTrustCaller
)

type Config struct {
	Mode Mode
}

type EntityStore interface {
	GetListener(ctx context.Context, id string) (*models.Listener, error)
	GetPool(ctx context.Context, id string) (*models.Pool, error)
	GetHealthMonitor(ctx context.Context, id string) (*models.HealthMonitor, error)
}

// Appender receives the entities a strategy decided to attach. Relations
// (policy ids, member ids, default pool) are always taken from the
// in-memory graph, only row fields are subject to the fidelity mode.
type Appender interface {
	AddListener(ctx context.Context, listener *models.Listener) error
	AddPool(ctx context.Context, pool *models.Pool) error
}

// Strategy decides how much of the surrounding graph goes into the
// descriptor.
type Strategy interface {
	Collect(ctx context.Context, lb *models.LoadBalancer, ap Appender) error
}

// FullGraph attaches every listener and pool of the load balancer. This
// is the default.
type FullGraph struct{}

func (FullGraph) Collect(ctx context.Context, lb *models.LoadBalancer, ap Appender) error {
	for _, listener := range lb.Listeners {
		if err := ap.AddListener(ctx, listener); err != nil {
			return err
		}
	}
	for _, pool := range lb.Pools {
		if err := ap.AddPool(ctx, pool); err != nil {
			return err
		}
	}
	return nil
}

// Partial lets the caller attach only the entities a change actually
// touched, avoiding the store reads of the full walk. Nil collectors are
// skipped. The resulting payload shape is identical to FullGraph's.
type Partial struct {
	Listeners func(ctx context.Context, lb *models.LoadBalancer, ap Appender) error
	Pools     func(ctx context.Context, lb *models.LoadBalancer, ap Appender) error
}

func (p Partial) Collect(ctx context.Context, lb *models.LoadBalancer, ap Appender) error {
	if p.Listeners != nil {
		if err := p.Listeners(ctx, lb, ap); err != nil {
			return err
		}
	}
	if p.Pools != nil {
		if err := p.Pools(ctx, lb, ap); err != nil {
			return err
		}
	}
	return nil
}

type Builder struct {
	cfg   Config
	store EntityStore
}

func New(cfg Config, store EntityStore) *Builder {
	return &Builder{cfg: cfg, store: store}
}

// Build assembles the descriptor for one dispatch. Entities are appended
// in traversal order; the descriptor is consistent only as of the moment
// of assembly.
func (b *Builder) Build(
	ctx context.Context,
	lb *models.LoadBalancer,
	agent *models.Agent,
	device *models.Device,
	strategy Strategy,
) (*models.ServiceDescriptor, error) {
	if strategy == nil {
		strategy = FullGraph{}
	}

	svc := &models.ServiceDescriptor{
		LoadBalancer:   lb,
		Listeners:      []models.ListenerSnapshot{},
		Pools:          []models.PoolSnapshot{},
		HealthMonitors: []models.HealthMonitorSnapshot{},
	}
	if err := strategy.Collect(ctx, lb, &appender{builder: b, svc: svc}); err != nil {
		return nil, fmt.Errorf("failed to collect service graph for loadbalancer %s: %w", lb.ID, err)
	}
	if device != nil {
		svc.Device = deviceSnapshot(device)
	}
	return svc, nil
}

type appender struct {
	builder *Builder
	svc     *models.ServiceDescriptor
}

func (a *appender) AddListener(ctx context.Context, listener *models.Listener) error {
	if listener == nil {
		return nil
	}

	row := listener
	if a.builder.cfg.Mode == ModeLazy {
		var err error
		row, err = a.builder.store.GetListener(ctx, listener.ID)
		if err != nil {
			return fmt.Errorf("failed to read listener %s: %w", listener.ID, err)
		}
		if row == nil {
			return fmt.Errorf("listener %s: %w", listener.ID, ErrEntityGone)
		}
	}

	snap := models.ListenerSnapshot{
		Listener:   *row,
		L7Policies: refs(listener.L7Policies),
	}
	snap.LoadBalancer = nil
	snap.DefaultPool = nil
	if listener.DefaultPool != nil {
		snap.DefaultPoolID = listener.DefaultPool.ID
	}

	log.Debug().Msgf("append listener %s", listener.ID)
	a.svc.Listeners = append(a.svc.Listeners, snap)
	return nil
}

func (a *appender) AddPool(ctx context.Context, pool *models.Pool) error {
	if pool == nil {
		return nil
	}

	row := pool
	if a.builder.cfg.Mode == ModeLazy {
		var err error
		row, err = a.builder.store.GetPool(ctx, pool.ID)
		if err != nil {
			return fmt.Errorf("failed to read pool %s: %w", pool.ID, err)
		}
		if row == nil {
			return fmt.Errorf("pool %s: %w", pool.ID, ErrEntityGone)
		}
	}

	snap := models.PoolSnapshot{
		Pool:       *row,
		L7Policies: refs(pool.L7Policies),
	}
	snap.LoadBalancer = nil
	snap.HealthMonitor = nil
	snap.Members = make([]models.Ref, 0, len(pool.Members))
	for _, member := range pool.Members {
		snap.Members = append(snap.Members, models.Ref{ID: member.ID})
	}
	if row.SessionPersistence != nil {
		sp := *row.SessionPersistence
		snap.SessionPersistence = &sp
	}

	log.Debug().Msgf("append pool %s", pool.ID)
	a.svc.Pools = append(a.svc.Pools, snap)

	if pool.HealthMonitor == nil {
		return nil
	}

	monitor := pool.HealthMonitor
	if a.builder.cfg.Mode == ModeLazy {
		var err error
		monitor, err = a.builder.store.GetHealthMonitor(ctx, monitor.ID)
		if err != nil {
			return fmt.Errorf("failed to read healthmonitor %s: %w", pool.HealthMonitor.ID, err)
		}
		if monitor == nil {
			return fmt.Errorf("healthmonitor %s: %w", pool.HealthMonitor.ID, ErrEntityGone)
		}
	}

	monSnap := models.HealthMonitorSnapshot{
		HealthMonitor: *monitor,
		PoolID:        pool.ID,
	}
	monSnap.Pool = nil

	log.Debug().Msgf("append healthmonitor %s for pool %s", monitor.ID, pool.ID)
	a.svc.HealthMonitors = append(a.svc.HealthMonitors, monSnap)
	return nil
}

func refs[E interface{ GetID() string }](entities []E) []models.Ref {
	out := make([]models.Ref, 0, len(entities))
	for _, e := range entities {
		out = append(out, models.Ref{ID: e.GetID()})
	}
	return out
}

// DeviceLinks passes the device link info through unmodified except for
// the synthesized lb_mac taken from the masquerade MAC. Agents and port
// binding profiles use it to program the VIP port.
func DeviceLinks(device *models.Device) []models.LinkInfo {
	links := make([]models.LinkInfo, len(device.LocalLinkInformation))
	copy(links, device.LocalLinkInformation)
	if len(links) == 0 {
		links = []models.LinkInfo{{}}
	}
	links[0].LBMac = device.MasqueradeMAC

	if device.MasqueradeMAC == "" {
		log.Error().Msgf("no masquerade_mac in device %s", device.ID)
	}
	return links
}

func deviceSnapshot(device *models.Device) *models.DeviceSnapshot {
	links := DeviceLinks(device)

	return &models.DeviceSnapshot{
		ID:                   device.ID,
		Name:                 device.Name,
		AdminStateUp:         device.AdminStateUp,
		MasqueradeMAC:        device.MasqueradeMAC,
		LocalLinkInformation: links,
	}
}
