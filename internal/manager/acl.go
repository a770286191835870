package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/lbaas-driver/internal/models"
	"github.com/Sh00ty/lbaas-driver/internal/servicebuilder"
)

// ACLGroupManager fans ACL group changes out to the devices serving the
// bound load balancers.
type ACLGroupManager struct {
	base
}

func NewACLGroupManager(cfg Config, deps Deps) *ACLGroupManager {
	return &ACLGroupManager{base: newBase(cfg, deps)}
}

func (m *ACLGroupManager) sameProvider(lb *models.LoadBalancer) bool {
	return strings.EqualFold(lb.Provider, m.cfg.Provider)
}

// aclService resolves the binding and builds the minimal descriptor an
// ACL dispatch carries: the load balancer, its device and the group.
func (m *ACLGroupManager) aclService(
	ctx context.Context,
	lb *models.LoadBalancer,
	group *models.ACLGroup,
) (string, *models.ServiceDescriptor, error) {
	agent, device, err := m.deps.Scheduler.Resolve(ctx, lb)
	if err != nil {
		return "", nil, err
	}
	if agent == nil {
		return "", nil, fmt.Errorf("no binding for loadbalancer %s", lb.ID)
	}
	svc, err := m.deps.Builder.Build(ctx, lb, agent, device, servicebuilder.Partial{})
	if err != nil {
		return "", nil, err
	}
	svc.ACLGroup = group
	return agent.Host, svc, nil
}

// AddBind creates the ACL data group on the device and binds it to the
// listener. A provider mismatch is a silent no-op.
func (m *ACLGroupManager) AddBind(
	ctx context.Context,
	bind *models.ACLBind,
	lb *models.LoadBalancer,
	listener *models.Listener,
	group *models.ACLGroup,
) error {
	if !m.sameProvider(lb) {
		log.Debug().Msgf("skip acl bind: loadbalancer %s provider %s is not %s",
			lb.ID, lb.Provider, m.cfg.Provider)
		return nil
	}

	host, svc, err := m.aclService(ctx, lb, group)
	if err != nil {
		return fmt.Errorf("%w %s on group %s: %w", ErrACLBind, listener.ID, group.ID, err)
	}
	if err := m.deps.RPC.AddACLBind(ctx, listener, group, bind, svc, host); err != nil {
		return fmt.Errorf("%w %s on group %s: %w", ErrACLBind, listener.ID, group.ID, err)
	}
	m.deps.Metrics.Increment("manager.acl_bind.add")
	return nil
}

// RemoveBind unbinds the listener and lets the agent garbage-collect the
// shared data group.
func (m *ACLGroupManager) RemoveBind(
	ctx context.Context,
	bind *models.ACLBind,
	lb *models.LoadBalancer,
	listener *models.Listener,
	group *models.ACLGroup,
) error {
	if !m.sameProvider(lb) {
		log.Debug().Msgf("skip acl unbind: loadbalancer %s provider %s is not %s",
			lb.ID, lb.Provider, m.cfg.Provider)
		return nil
	}

	host, svc, err := m.aclService(ctx, lb, group)
	if err != nil {
		return fmt.Errorf("%w %s on group %s: %w", ErrACLBind, listener.ID, group.ID, err)
	}
	if err := m.deps.RPC.RemoveACLBind(ctx, listener, group, bind, svc, host); err != nil {
		return fmt.Errorf("%w %s on group %s: %w", ErrACLBind, listener.ID, group.ID, err)
	}
	m.deps.Metrics.Increment("manager.acl_bind.remove")
	return nil
}

// UpdateGroup resolves a binding per load balancer, groups by the
// resolved device so each device gets exactly one update, then dispatches
// per distinct device. The first failure aborts the batch; devices
// already dispatched to are not rolled back.
func (m *ACLGroupManager) UpdateGroup(
	ctx context.Context,
	group *models.ACLGroup,
	loadbalancers []*models.LoadBalancer,
) error {
	matched := make([]*models.LoadBalancer, 0, len(loadbalancers))
	for _, lb := range loadbalancers {
		if m.sameProvider(lb) {
			matched = append(matched, lb)
		}
	}
	if len(matched) == 0 {
		log.Debug().Msgf("skip acl group %s update: no loadbalancers of provider %s",
			group.ID, m.cfg.Provider)
		return nil
	}

	type dispatch struct {
		host string
		svc  *models.ServiceDescriptor
	}
	byDevice := make(map[string]dispatch, len(matched))
	order := make([]string, 0, len(matched))
	for _, lb := range matched {
		host, svc, err := m.aclService(ctx, lb, group)
		if err != nil {
			return fmt.Errorf("%w %s: loadbalancer %s: %w", ErrACLGroupUpdate, group.ID, lb.ID, err)
		}
		deviceID := svc.Device.ID
		if _, seen := byDevice[deviceID]; !seen {
			order = append(order, deviceID)
		}
		byDevice[deviceID] = dispatch{host: host, svc: svc}
	}

	for _, deviceID := range order {
		d := byDevice[deviceID]
		if err := m.deps.RPC.UpdateACLGroup(ctx, group, d.svc, d.host); err != nil {
			return fmt.Errorf("%w %s: device %s: %w", ErrACLGroupUpdate, group.ID, deviceID, err)
		}
		log.Info().Msgf("acl group %s updated on device %s", group.ID, deviceID)
	}
	m.deps.Metrics.Increment("manager.acl_group.update")
	return nil
}
