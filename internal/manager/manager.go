// Package manager orchestrates entity lifecycle calls: validate the
// attachment, resolve the agent/device binding, assemble the service
// descriptor and dispatch it to the agent. Failures are funneled into the
// status store before being returned to the caller.
package manager

import (
	"context"
	"errors"
	"fmt"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/lbaas-driver/internal/metrics"
	"github.com/Sh00ty/lbaas-driver/internal/models"
	"github.com/Sh00ty/lbaas-driver/internal/servicebuilder"
)

var (
	ErrNoAttachedLoadBalancer = errors.New("entity has no associated loadbalancer")
	ErrACLBind                = errors.New("failed to change acl bind of listener")
	ErrACLGroupUpdate         = errors.New("failed to update acl group")
)

type Scheduler interface {
	Resolve(ctx context.Context, lb *models.LoadBalancer) (*models.Agent, *models.Device, error)
}

type Builder interface {
	Build(
		ctx context.Context,
		lb *models.LoadBalancer,
		agent *models.Agent,
		device *models.Device,
		strategy servicebuilder.Strategy,
	) (*models.ServiceDescriptor, error)
}

// AgentRPC is the fire-and-forget transport to the agent. The dispatch
// call itself may block on network I/O; its failure is fatal to the
// current lifecycle call.
type AgentRPC interface {
	Create(ctx context.Context, kind models.EntityKind, payload any, svc *models.ServiceDescriptor, agentHost string) error
	Update(ctx context.Context, kind models.EntityKind, oldPayload, payload any, svc *models.ServiceDescriptor, agentHost string) error
	Delete(ctx context.Context, kind models.EntityKind, payload any, svc *models.ServiceDescriptor, agentHost string) error
	UpdateLoadBalancerStats(ctx context.Context, lb *models.LoadBalancer, svc *models.ServiceDescriptor, agentHost string) error
	AddACLBind(ctx context.Context, listener *models.Listener, group *models.ACLGroup, bind *models.ACLBind, svc *models.ServiceDescriptor, agentHost string) error
	RemoveACLBind(ctx context.Context, listener *models.Listener, group *models.ACLGroup, bind *models.ACLBind, svc *models.ServiceDescriptor, agentHost string) error
	UpdateACLGroup(ctx context.Context, group *models.ACLGroup, svc *models.ServiceDescriptor, agentHost string) error
}

type StatusUpdater interface {
	SetStatus(ctx context.Context, kind models.EntityKind, id string, status models.Status) error
}

// PortBinder provisions the VIP port on the agent host. Port plumbing is
// owned by the surrounding platform; a nil binder means it is handled
// elsewhere.
type PortBinder interface {
	BindVIPPort(ctx context.Context, lb *models.LoadBalancer, agentHost string, links []models.LinkInfo) error
}

type LoadBalancerRemover interface {
	DeleteLoadBalancer(ctx context.Context, id string) error
}

type Config struct {
	// Provider is this deployment's provider name; ACL operations for
	// load balancers of other providers are silent no-ops.
	Provider string
	// Incremental switches create/delete dispatches to caller-supplied
	// partial aggregation instead of the full graph walk.
	Incremental bool
}

type Deps struct {
	Scheduler Scheduler
	Builder   Builder
	RPC       AgentRPC
	Status    StatusUpdater
	Ports     PortBinder
	Remover   LoadBalancerRemover
	Metrics   metrics.Metrics
}

type base struct {
	cfg  Config
	deps Deps
}

func newBase(cfg Config, deps Deps) base {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	return base{cfg: cfg, deps: deps}
}

// setupCRUD performs the steps common to most lifecycle calls: attachment
// check, binding resolution and descriptor assembly.
func (b *base) setupCRUD(
	ctx context.Context,
	entity models.Entity,
	strategy servicebuilder.Strategy,
) (string, *models.ServiceDescriptor, error) {
	lb := entity.Root()
	if lb == nil {
		return "", nil, ErrNoAttachedLoadBalancer
	}
	agent, device, err := b.deps.Scheduler.Resolve(ctx, lb)
	if err != nil {
		return "", nil, err
	}
	if agent == nil {
		return "", nil, fmt.Errorf("no binding for loadbalancer %s", lb.ID)
	}
	svc, err := b.deps.Builder.Build(ctx, lb, agent, device, strategy)
	if err != nil {
		return "", nil, err
	}
	return agent.Host, svc, nil
}

func (b *base) createEntity(ctx context.Context, entity models.Entity, strategy servicebuilder.Strategy) error {
	host, svc, err := b.setupCRUD(ctx, entity, strategy)
	if err != nil {
		log.Error().Err(err).Msgf("%s create failed", entity.Kind())
		b.markError(ctx, entity)
		return err
	}
	if err := b.deps.RPC.Create(ctx, entity.Kind(), entity, svc, host); err != nil {
		log.Error().Err(err).Msgf("%s create dispatch failed", entity.Kind())
		b.markError(ctx, entity)
		return err
	}
	b.deps.Metrics.Increment("manager.create." + entity.Kind().String())
	return nil
}

// updateEntity always ships the full graph, the agent diffs old against
// new itself.
func (b *base) updateEntity(ctx context.Context, oldEntity, entity models.Entity) error {
	host, svc, err := b.setupCRUD(ctx, entity, nil)
	if err != nil {
		log.Error().Err(err).Msgf("%s update failed", entity.Kind())
		b.markError(ctx, entity)
		return err
	}
	if err := b.deps.RPC.Update(ctx, entity.Kind(), oldEntity, entity, svc, host); err != nil {
		log.Error().Err(err).Msgf("%s update dispatch failed", entity.Kind())
		b.markError(ctx, entity)
		return err
	}
	b.deps.Metrics.Increment("manager.update." + entity.Kind().String())
	return nil
}

func (b *base) deleteEntity(ctx context.Context, entity models.Entity, strategy servicebuilder.Strategy) error {
	host, svc, err := b.setupCRUD(ctx, entity, strategy)
	if err != nil {
		log.Error().Err(err).Msgf("%s delete failed", entity.Kind())
		b.markError(ctx, entity)
		return err
	}
	if err := b.deps.RPC.Delete(ctx, entity.Kind(), entity, svc, host); err != nil {
		log.Error().Err(err).Msgf("%s delete dispatch failed", entity.Kind())
		b.markError(ctx, entity)
		return err
	}
	b.deps.Metrics.Increment("manager.delete." + entity.Kind().String())
	return nil
}

// markError is the best-effort error funnel: the acted-on entity and its
// owning load balancer go to ERROR status; the caller still gets the
// original error re-raised.
func (b *base) markError(ctx context.Context, entity models.Entity) {
	if lb := entity.Root(); lb != nil && entity.Kind() != models.KindLoadBalancer {
		b.setErrorStatus(ctx, models.KindLoadBalancer, lb.ID)
	}
	b.setErrorStatus(ctx, entity.Kind(), entity.GetID())
	b.deps.Metrics.Increment("manager.error." + entity.Kind().String())
}

func (b *base) setErrorStatus(ctx context.Context, kind models.EntityKind, id string) {
	err := retry.Do(
		func() error {
			return b.deps.Status.SetStatus(ctx, kind, id, models.StatusError)
		},
		retry.Attempts(3),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Error().Err(err).Msgf("failed to mark %s %s as errored", kind, id)
	}
}

// strategy returns nil (full graph) unless incremental aggregation is
// configured.
func (b *base) strategy(partial servicebuilder.Partial) servicebuilder.Strategy {
	if !b.cfg.Incremental {
		return nil
	}
	return partial
}
