// Package scheduler binds load balancers to a serving pair: the control
// agent and the device it manages. The binding row is the only shared
// mutable state, everything else is read-only inventory.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/lbaas-driver/internal/metrics"
	"github.com/Sh00ty/lbaas-driver/internal/models"
)

var (
	// ErrDeviceDisappeared means the bound device id no longer exists in
	// the inventory. Fatal, never retried.
	ErrDeviceDisappeared = errors.New("bound device disappeared from inventory")
	// ErrDeviceDisabled means the bound device is administratively down
	// and the load balancer does not carry the maintenance name token.
	ErrDeviceDisabled = errors.New("bound device is administratively disabled")
	// ErrSchedulerBusy means the device-leasing loop ran out of its wait
	// budget under lock contention.
	ErrSchedulerBusy = errors.New("device leasing exceeded wait budget")
	// ErrLeaseContended is returned by BindingStore.LeaseDevice when
	// another scheduler holds the placeholder row locks. Retriable.
	ErrLeaseContended = errors.New("placeholder rows are locked by another scheduler")
)

// DevicePicker selects a device id for the locked placeholder row.
type DevicePicker func(ctx context.Context) (string, error)

type BindingStore interface {
	// GetBinding returns (nil, nil) when no binding exists.
	GetBinding(ctx context.Context, loadbalancerID string) (*models.Binding, error)
	// CreatePlaceholder inserts a binding with the unassigned device
	// sentinel. Inserting an already existing row is not an error.
	CreatePlaceholder(ctx context.Context, binding *models.Binding) error
	UpdateBindingAgent(ctx context.Context, loadbalancerID, agentID string) error
	// LeaseDevice locks the placeholder rows, runs pick for the given
	// row if its device is still unassigned and commits the result. It
	// returns the committed device id, which is the concurrent winner's
	// one if the row was raced in before the lock was acquired.
	LeaseDevice(ctx context.Context, loadbalancerID string, pick DevicePicker) (string, error)
}

type AgentStore interface {
	// GetAgent returns (nil, nil) when the agent is unknown.
	GetAgent(ctx context.Context, agentID string) (*models.Agent, error)
}

type AgentSelector interface {
	Select(ctx context.Context, lb *models.LoadBalancer) (*models.Agent, error)
}

type DeviceSelector interface {
	Select(ctx context.Context, lb *models.LoadBalancer) (*models.Device, error)
	// Load returns (nil, nil) when the device is unknown.
	Load(ctx context.Context, deviceID string) (*models.Device, error)
}

type Config struct {
	// MaxLeaseWait bounds the cumulative backoff of the device-leasing
	// loop. The loop has no attempt cap, each attempt's cost is
	// dominated by lock wait.
	MaxLeaseWait time.Duration
	// SpecialNamePrefix enables the maintenance override: a disabled
	// device is still accepted when the load balancer name contains the
	// prefix followed by the first 8 characters of the device id.
	SpecialNamePrefix string
}

const defaultMaxLeaseWait = 30 * time.Second

type Scheduler struct {
	cfg      Config
	bindings BindingStore
	agents   AgentStore
	agentSel AgentSelector
	devSel   DeviceSelector
	mtr      metrics.Metrics

	sleep  func(time.Duration)
	jitter func() time.Duration
}

func New(
	cfg Config,
	bindings BindingStore,
	agents AgentStore,
	agentSel AgentSelector,
	devSel DeviceSelector,
	mtr metrics.Metrics,
) *Scheduler {
	if cfg.MaxLeaseWait <= 0 {
		cfg.MaxLeaseWait = defaultMaxLeaseWait
	}
	if mtr == nil {
		mtr = metrics.Noop{}
	}
	return &Scheduler{
		cfg:      cfg,
		bindings: bindings,
		agents:   agents,
		agentSel: agentSel,
		devSel:   devSel,
		mtr:      mtr,
		sleep:    time.Sleep,
		jitter: func() time.Duration {
			return time.Duration(rand.Float64() * float64(time.Second))
		},
	}
}

// Resolve returns the serving pair for the load balancer, creating or
// repairing the binding as needed. A (nil, nil, nil) result means the load
// balancer is pending-delete without a binding and the caller should clean
// it up locally without touching any agent.
func (s *Scheduler) Resolve(ctx context.Context, lb *models.LoadBalancer) (*models.Agent, *models.Device, error) {
	binding, err := s.bindings.GetBinding(ctx, lb.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load binding for loadbalancer %s: %w", lb.ID, err)
	}

	if binding != nil {
		agent, err := s.resolveAgent(ctx, lb, binding)
		if err != nil {
			return nil, nil, err
		}
		if binding.Placeholder() {
			// A previous scheduling attempt died between the placeholder
			// insert and the lease commit. Resume the lease.
			device, err := s.leaseDevice(ctx, lb)
			if err != nil {
				return nil, nil, err
			}
			return agent, device, nil
		}
		device, err := s.resolveBoundDevice(ctx, lb, binding.DeviceID)
		if err != nil {
			return nil, nil, err
		}
		return agent, device, nil
	}

	switch lb.ProvisioningStatus {
	case models.StatusPendingCreate:
		// fresh load balancer, schedule below
	case models.StatusPendingDelete:
		// The binding is already gone while the load balancer row is
		// not. Tell the caller to delete it locally.
		log.Info().Msgf("no binding for loadbalancer %s, silent local delete", lb.ID)
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf(
			"no binding for loadbalancer %s in status %s", lb.ID, lb.ProvisioningStatus)
	}

	agent, err := s.agentSel.Select(ctx, lb)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to select agent for loadbalancer %s: %w", lb.ID, err)
	}
	err = s.bindings.CreatePlaceholder(ctx, &models.Binding{
		LoadBalancerID: lb.ID,
		AgentID:        agent.ID,
		DeviceID:       models.UnassignedDevice,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create placeholder binding for loadbalancer %s: %w", lb.ID, err)
	}

	device, err := s.leaseDevice(ctx, lb)
	if err != nil {
		return nil, nil, err
	}

	log.Info().Msgf("loadbalancer %s is scheduled to agent %s device %s", lb.ID, agent.ID, device.ID)
	return agent, device, nil
}

// resolveAgent returns the bound agent, transparently rescheduling onto a
// new one when the bound agent is dead or disabled.
func (s *Scheduler) resolveAgent(ctx context.Context, lb *models.LoadBalancer, binding *models.Binding) (*models.Agent, error) {
	agent, err := s.agents.GetAgent(ctx, binding.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent %s: %w", binding.AgentID, err)
	}
	if agent != nil && agent.Alive && agent.AdminStateUp {
		return agent, nil
	}

	log.Info().Msgf("reschedule loadbalancer %s, agent %s is unavailable", lb.ID, binding.AgentID)
	agent, err = s.agentSel.Select(ctx, lb)
	if err != nil {
		return nil, fmt.Errorf("failed to reschedule loadbalancer %s: %w", lb.ID, err)
	}
	if err := s.bindings.UpdateBindingAgent(ctx, lb.ID, agent.ID); err != nil {
		return nil, fmt.Errorf("failed to rebind loadbalancer %s to agent %s: %w", lb.ID, agent.ID, err)
	}
	s.mtr.Increment("scheduler.reschedule")
	log.Info().Msgf("loadbalancer %s is rescheduled to agent %s", lb.ID, agent.ID)
	return agent, nil
}

func (s *Scheduler) resolveBoundDevice(ctx context.Context, lb *models.LoadBalancer, deviceID string) (*models.Device, error) {
	device, err := s.devSel.Load(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load device %s: %w", deviceID, err)
	}
	if device == nil {
		return nil, fmt.Errorf("loadbalancer %s device %s: %w", lb.ID, deviceID, ErrDeviceDisappeared)
	}
	if device.AdminStateUp {
		return device, nil
	}
	if s.maintenanceOverride(lb, device) {
		log.Debug().Msgf("choose disabled device %s for loadbalancer %s by name token", device.ID, lb.ID)
		return device, nil
	}
	return nil, fmt.Errorf("loadbalancer %s device %s: %w", lb.ID, deviceID, ErrDeviceDisabled)
}

// maintenanceOverride matches the operational escape hatch: the load
// balancer name must contain the configured prefix immediately followed by
// the first 8 characters of the device id.
func (s *Scheduler) maintenanceOverride(lb *models.LoadBalancer, device *models.Device) bool {
	if lb.Name == "" || s.cfg.SpecialNamePrefix == "" {
		return false
	}
	if !strings.Contains(lb.Name, s.cfg.SpecialNamePrefix) {
		return false
	}
	idPrefix := device.ID
	if len(idPrefix) > 8 {
		idPrefix = idPrefix[:8]
	}
	return strings.Contains(lb.Name, s.cfg.SpecialNamePrefix+idPrefix)
}

// leaseDevice commits a device id into the placeholder row under the
// store's row lock. Lock conflicts are retried with uniform jitter until
// the cumulative wait exceeds the configured ceiling; there is no attempt
// cap.
func (s *Scheduler) leaseDevice(ctx context.Context, lb *models.LoadBalancer) (*models.Device, error) {
	pick := func(ctx context.Context) (string, error) {
		device, err := s.devSel.Select(ctx, lb)
		if err != nil {
			return "", fmt.Errorf("failed to select device for loadbalancer %s: %w", lb.ID, err)
		}
		return device.ID, nil
	}

	var wait time.Duration
	for attempt := 1; ; attempt++ {
		deviceID, err := s.bindings.LeaseDevice(ctx, lb.ID, pick)
		if err == nil {
			s.mtr.Duration("scheduler.lease_wait", wait)
			device, err := s.devSel.Load(ctx, deviceID)
			if err != nil {
				return nil, fmt.Errorf("failed to load leased device %s: %w", deviceID, err)
			}
			if device == nil {
				return nil, fmt.Errorf("loadbalancer %s device %s: %w", lb.ID, deviceID, ErrDeviceDisappeared)
			}
			return device, nil
		}
		if !errors.Is(err, ErrLeaseContended) {
			return nil, fmt.Errorf("failed to lease device for loadbalancer %s: %w", lb.ID, err)
		}

		interval := s.jitter()
		if wait+interval > s.cfg.MaxLeaseWait {
			s.mtr.Increment("scheduler.lease_busy")
			return nil, fmt.Errorf("loadbalancer %s after %d attempts: %w", lb.ID, attempt, ErrSchedulerBusy)
		}
		wait += interval
		log.Info().Msgf("attempt %d lease conflict for loadbalancer %s: %v", attempt, lb.ID, err)
		s.sleep(interval)
	}
}
