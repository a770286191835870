package agentmonitor

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/lbaas-driver/internal/models"
)

type AgentLiveness interface {
	UpdateAgentLiveness(ctx context.Context, host string, alive bool) error
}

// Monitor drains gossip events into the liveness store. A suspect agent
// stays alive; only dead and left transitions take it out of the
// candidate set.
type Monitor struct {
	events   chan models.AgentEvent
	liveness AgentLiveness
}

func NewMonitor(events chan models.AgentEvent, liveness AgentLiveness) *Monitor {
	return &Monitor{
		events:   events,
		liveness: liveness,
	}
}

func (m *Monitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, opened := <-m.events:
			if !opened {
				return
			}
			alive := false
			switch event.Type {
			case models.AgentEventJoined:
				alive = true
			case models.AgentEventSuspect:
				log.Warn().Msgf("agent %s is suspect, keeping it schedulable", event.Host)
				continue
			case models.AgentEventLeft, models.AgentEventDead:
			default:
				continue
			}

			if err := m.liveness.UpdateAgentLiveness(ctx, event.Host, alive); err != nil {
				log.Error().Err(err).Msgf("failed to update liveness of agent %s", event.Host)
				continue
			}
			log.Info().Msgf("agent %s liveness set to %t", event.Host, alive)
		}
	}
}
