// Package kafka carries lifecycle dispatches to the agents. Messages are
// keyed by agent host so one agent's updates stay ordered on one
// partition; delivery is fire-and-forget, nobody waits for the agent to
// finish programming the device.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"

	"github.com/Sh00ty/lbaas-driver/internal/models"
)

type envelope struct {
	ID         string                    `json:"id"`
	Method     string                    `json:"method"`
	AgentHost  string                    `json:"agent_host"`
	Payload    any                       `json:"payload,omitempty"`
	OldPayload any                       `json:"old_payload,omitempty"`
	Service    *models.ServiceDescriptor `json:"service,omitempty"`
	Listener   *models.Listener          `json:"listener,omitempty"`
	ACLGroup   *models.ACLGroup          `json:"acl_group,omitempty"`
	ACLBind    *models.ACLBind           `json:"acl_bind,omitempty"`
	SentAtMs   int64                     `json:"sent_at_ms"`
}

type Client struct {
	writer *kafka.Writer
}

func NewClient(brokers []string, topic string) *Client {
	return &Client{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (c *Client) send(ctx context.Context, env envelope) error {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return fmt.Errorf("failed to generate dispatch id: %w", err)
	}
	env.ID = id
	env.SentAtMs = time.Now().UnixMilli()

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s dispatch: %w", env.Method, err)
	}
	err = c.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.AgentHost),
		Value: raw,
	})
	if err != nil {
		return fmt.Errorf("failed to dispatch %s to agent %s: %w", env.Method, env.AgentHost, err)
	}

	log.Debug().Msgf("dispatched %s to agent %s (%s)", env.Method, env.AgentHost, env.ID)
	return nil
}

func (c *Client) Create(ctx context.Context, kind models.EntityKind, payload any, svc *models.ServiceDescriptor, agentHost string) error {
	return c.send(ctx, envelope{
		Method:    "create_" + kind.String(),
		AgentHost: agentHost,
		Payload:   payload,
		Service:   svc,
	})
}

func (c *Client) Update(ctx context.Context, kind models.EntityKind, oldPayload, payload any, svc *models.ServiceDescriptor, agentHost string) error {
	return c.send(ctx, envelope{
		Method:     "update_" + kind.String(),
		AgentHost:  agentHost,
		Payload:    payload,
		OldPayload: oldPayload,
		Service:    svc,
	})
}

func (c *Client) Delete(ctx context.Context, kind models.EntityKind, payload any, svc *models.ServiceDescriptor, agentHost string) error {
	return c.send(ctx, envelope{
		Method:    "delete_" + kind.String(),
		AgentHost: agentHost,
		Payload:   payload,
		Service:   svc,
	})
}

func (c *Client) UpdateLoadBalancerStats(ctx context.Context, lb *models.LoadBalancer, svc *models.ServiceDescriptor, agentHost string) error {
	return c.send(ctx, envelope{
		Method:    "update_loadbalancer_stats",
		AgentHost: agentHost,
		Payload:   lb,
		Service:   svc,
	})
}

func (c *Client) AddACLBind(ctx context.Context, listener *models.Listener, group *models.ACLGroup, bind *models.ACLBind, svc *models.ServiceDescriptor, agentHost string) error {
	return c.send(ctx, envelope{
		Method:    "add_acl_bind",
		AgentHost: agentHost,
		Listener:  listener,
		ACLGroup:  group,
		ACLBind:   bind,
		Service:   svc,
	})
}

func (c *Client) RemoveACLBind(ctx context.Context, listener *models.Listener, group *models.ACLGroup, bind *models.ACLBind, svc *models.ServiceDescriptor, agentHost string) error {
	return c.send(ctx, envelope{
		Method:    "remove_acl_bind",
		AgentHost: agentHost,
		Listener:  listener,
		ACLGroup:  group,
		ACLBind:   bind,
		Service:   svc,
	})
}

func (c *Client) UpdateACLGroup(ctx context.Context, group *models.ACLGroup, svc *models.ServiceDescriptor, agentHost string) error {
	return c.send(ctx, envelope{
		Method:    "update_acl_group",
		AgentHost: agentHost,
		ACLGroup:  group,
		Service:   svc,
	})
}

func (c *Client) Close() error {
	return c.writer.Close()
}
