// Package selector holds the default agent and device selection policies:
// a consistent-hash ring over the live inventory keyed by load balancer
// id, so repeated selections for one load balancer stay sticky while the
// inventory is stable.
package selector

import (
	"context"
	"errors"
	"fmt"

	"github.com/lafikl/consistent"

	"github.com/Sh00ty/lbaas-driver/internal/models"
)

var (
	ErrNoAgents  = errors.New("no alive agents to schedule on")
	ErrNoDevices = errors.New("no active devices to schedule on")
)

type AgentInventory interface {
	// ListCandidateAgents returns agents that are alive and enabled.
	ListCandidateAgents(ctx context.Context) ([]*models.Agent, error)
}

type DeviceInventory interface {
	// ListActiveDevices returns devices that are administratively up.
	ListActiveDevices(ctx context.Context) ([]*models.Device, error)
	// GetDevice returns (nil, nil) when the device is unknown.
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
}

type ConsistentAgentSelector struct {
	inventory AgentInventory
}

func NewConsistentAgentSelector(inventory AgentInventory) *ConsistentAgentSelector {
	return &ConsistentAgentSelector{inventory: inventory}
}

func (s *ConsistentAgentSelector) Select(ctx context.Context, lb *models.LoadBalancer) (*models.Agent, error) {
	agents, err := s.inventory.ListCandidateAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate agents: %w", err)
	}

	byID := make(map[string]*models.Agent, len(agents))
	ring := consistent.New()
	for _, agent := range agents {
		if !agent.Alive || !agent.AdminStateUp {
			continue
		}
		byID[agent.ID] = agent
		ring.Add(agent.ID)
	}
	if len(byID) == 0 {
		return nil, ErrNoAgents
	}

	agentID, err := ring.Get(lb.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to pick agent for loadbalancer %s: %w", lb.ID, err)
	}
	return byID[agentID], nil
}

type ConsistentDeviceSelector struct {
	inventory DeviceInventory
}

func NewConsistentDeviceSelector(inventory DeviceInventory) *ConsistentDeviceSelector {
	return &ConsistentDeviceSelector{inventory: inventory}
}

func (s *ConsistentDeviceSelector) Select(ctx context.Context, lb *models.LoadBalancer) (*models.Device, error) {
	devices, err := s.inventory.ListActiveDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active devices: %w", err)
	}

	byID := make(map[string]*models.Device, len(devices))
	ring := consistent.New()
	for _, device := range devices {
		if !device.AdminStateUp {
			continue
		}
		byID[device.ID] = device
		ring.Add(device.ID)
	}
	if len(byID) == 0 {
		return nil, ErrNoDevices
	}

	deviceID, err := ring.Get(lb.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to pick device for loadbalancer %s: %w", lb.ID, err)
	}
	return byID[deviceID], nil
}

func (s *ConsistentDeviceSelector) Load(ctx context.Context, deviceID string) (*models.Device, error) {
	return s.inventory.GetDevice(ctx, deviceID)
}
