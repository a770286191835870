// Package agentmonitor tracks agent liveness over a gossip cluster. The
// driver node joins the same memberlist as the agents and folds node
// transitions into the agents table, which is what the scheduler reads
// when it picks or re-picks an agent.
package agentmonitor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/lbaas-driver/internal/models"
)

type Config struct {
	NodeName            string        `envconfig:"DRIVER_NODE_ID"`
	Port                int           `envconfig:"GOSSIP_PORT"`
	GossipProbeInterval time.Duration `envconfig:"GOSSIP_PROBE_INTERVAL"`
	GossipProbeTimeout  time.Duration `envconfig:"GOSSIP_PROBE_TIMEOUT"`
	SeedNodes           []string      `envconfig:"-"`
}

type MemberList struct {
	list      *memberlist.Memberlist
	seedNodes []string
}

func New(ctx context.Context, cfg Config, notify chan models.AgentEvent) (*MemberList, error) {
	const eventBufSize = 256

	events := make(chan memberlist.NodeEvent, eventBufSize)
	config := memberlist.DefaultLocalConfig()
	config.Name = cfg.NodeName
	config.BindPort = cfg.Port
	config.AdvertisePort = cfg.Port
	config.LogOutput = io.Discard
	config.ProbeInterval = cfg.GossipProbeInterval
	config.ProbeTimeout = cfg.GossipProbeTimeout
	config.Events = &memberlist.ChannelEventDelegate{
		Ch: events,
	}

	ml, err := memberlist.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case mlEvent, opened := <-events:
				if !opened {
					return
				}
				log.Debug().Msgf(
					"got event from node %s: type=%d, node.status=%d",
					mlEvent.Node.Name,
					mlEvent.Event,
					mlEvent.Node.State,
				)
				eventType := models.AgentEventUnknown
				switch mlEvent.Event {
				case memberlist.NodeJoin:
					eventType = models.AgentEventJoined
				case memberlist.NodeLeave:
					switch mlEvent.Node.State {
					case memberlist.StateLeft:
						eventType = models.AgentEventLeft
					case memberlist.StateDead:
						eventType = models.AgentEventDead
					case memberlist.StateSuspect:
						eventType = models.AgentEventSuspect
					case memberlist.StateAlive:
						eventType = models.AgentEventDead
					}
				case memberlist.NodeUpdate:
					if mlEvent.Node.State == memberlist.StateSuspect {
						eventType = models.AgentEventSuspect
					}
				}
				if eventType == models.AgentEventUnknown {
					log.Warn().Msgf(
						"got unknown event from node %s: type=%d, node.status=%d",
						mlEvent.Node.Name,
						mlEvent.Event,
						mlEvent.Node.State,
					)
					continue
				}
				event := models.AgentEvent{
					Type: eventType,
					Host: mlEvent.Node.Name,
				}
				select {
				case notify <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return &MemberList{
		list:      ml,
		seedNodes: cfg.SeedNodes,
	}, nil
}

func (l *MemberList) Join(ctx context.Context) error {
	_, err := l.list.Join(l.seedNodes)
	if err != nil {
		return fmt.Errorf("failed to join memberlist: %w", err)
	}
	return nil
}

func (l *MemberList) GracefullyClose(timeout time.Duration) error {
	log.Warn().Msg("start graceful leaving from gossip cluster")

	return l.list.Leave(timeout)
}

func (l *MemberList) Close() error {
	log.Warn().Msg("force leave gossip cluster")

	return l.list.Shutdown()
}
