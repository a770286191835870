package manager

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/lbaas-driver/internal/models"
	"github.com/Sh00ty/lbaas-driver/internal/servicebuilder"
)

type LoadBalancerManager struct {
	base
}

func NewLoadBalancerManager(cfg Config, deps Deps) *LoadBalancerManager {
	return &LoadBalancerManager{base: newBase(cfg, deps)}
}

// Create schedules the load balancer onto a serving pair, binds the VIP
// port to the agent host and dispatches the initial descriptor. The
// payload is built after port binding, the platform may assign networking
// details during it.
func (m *LoadBalancerManager) Create(ctx context.Context, lb *models.LoadBalancer) error {
	agent, device, err := m.deps.Scheduler.Resolve(ctx, lb)
	if err != nil {
		log.Error().Err(err).Msgf("loadbalancer %s create failed", lb.ID)
		m.markError(ctx, lb)
		return err
	}
	if agent == nil {
		// A pending-delete load balancer slipped into the create path.
		err := fmt.Errorf("no binding for loadbalancer %s", lb.ID)
		log.Error().Err(err).Msgf("loadbalancer %s create failed", lb.ID)
		m.markError(ctx, lb)
		return err
	}

	if m.deps.Ports != nil {
		err = m.deps.Ports.BindVIPPort(ctx, lb, agent.Host, servicebuilder.DeviceLinks(device))
		if err != nil {
			log.Error().Err(err).Msgf("loadbalancer %s vip port binding failed", lb.ID)
			m.markError(ctx, lb)
			return err
		}
	}

	svc, err := m.deps.Builder.Build(ctx, lb, agent, device, nil)
	if err != nil {
		m.markError(ctx, lb)
		return err
	}
	if err := m.deps.RPC.Create(ctx, models.KindLoadBalancer, lb, svc, agent.Host); err != nil {
		log.Error().Err(err).Msgf("loadbalancer %s create dispatch failed", lb.ID)
		m.markError(ctx, lb)
		return err
	}
	m.deps.Metrics.Increment("manager.create.loadbalancer")
	return nil
}

func (m *LoadBalancerManager) Update(ctx context.Context, oldLB, lb *models.LoadBalancer) error {
	return m.updateEntity(ctx, oldLB, lb)
}

// Delete tears the load balancer down on its agent. A load balancer that
// is pending-delete without a binding is removed locally without any
// dispatch.
func (m *LoadBalancerManager) Delete(ctx context.Context, lb *models.LoadBalancer) error {
	agent, device, err := m.deps.Scheduler.Resolve(ctx, lb)
	if err != nil {
		log.Error().Err(err).Msgf("loadbalancer %s delete failed", lb.ID)
		m.markError(ctx, lb)
		return err
	}

	if agent == nil && device == nil {
		if err := m.deps.Remover.DeleteLoadBalancer(ctx, lb.ID); err != nil {
			log.Error().Err(err).Msgf("loadbalancer %s local delete failed", lb.ID)
			m.markError(ctx, lb)
			return err
		}
		return nil
	}

	svc, err := m.deps.Builder.Build(ctx, lb, agent, device, nil)
	if err != nil {
		m.markError(ctx, lb)
		return err
	}
	if err := m.deps.RPC.Delete(ctx, models.KindLoadBalancer, lb, svc, agent.Host); err != nil {
		log.Error().Err(err).Msgf("loadbalancer %s delete dispatch failed", lb.ID)
		m.markError(ctx, lb)
		return err
	}
	m.deps.Metrics.Increment("manager.delete.loadbalancer")
	return nil
}

// Stats asks the agent to push the load balancer statistics back through
// the status plane.
func (m *LoadBalancerManager) Stats(ctx context.Context, lb *models.LoadBalancer) error {
	agent, device, err := m.deps.Scheduler.Resolve(ctx, lb)
	if err != nil {
		log.Error().Err(err).Msgf("loadbalancer %s stats failed", lb.ID)
		m.markError(ctx, lb)
		return err
	}
	if agent == nil {
		log.Info().Msgf("skip stats for unbound loadbalancer %s", lb.ID)
		return nil
	}

	svc, err := m.deps.Builder.Build(ctx, lb, agent, device, nil)
	if err != nil {
		m.markError(ctx, lb)
		return err
	}
	if err := m.deps.RPC.UpdateLoadBalancerStats(ctx, lb, svc, agent.Host); err != nil {
		log.Error().Err(err).Msgf("loadbalancer %s stats dispatch failed", lb.ID)
		m.markError(ctx, lb)
		return err
	}
	return nil
}
