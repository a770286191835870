// Package requestwatcher consumes northbound lifecycle requests from the
// queue and drives the entity managers. One consumer group per driver
// node; a request that fails stays uncommitted and is redelivered.
package requestwatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"

	"github.com/Sh00ty/lbaas-driver/internal/manager"
	"github.com/Sh00ty/lbaas-driver/internal/models"
)

// Managers bundles the lifecycle entry points the watcher fans requests
// into.
type Managers struct {
	LoadBalancers  *manager.LoadBalancerManager
	Listeners      *manager.ListenerManager
	Pools          *manager.PoolManager
	Members        *manager.MemberManager
	HealthMonitors *manager.HealthMonitorManager
	L7Policies     *manager.L7PolicyManager
	L7Rules        *manager.L7RuleManager
	ACLGroups      *manager.ACLGroupManager
}

type Watcher struct {
	msgReader *kafka.Reader
	mgrs      Managers
}

func New(nodeID string, addrs []string, topic string, mgrs Managers) *Watcher {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     addrs,
		Topic:       topic,
		MaxBytes:    10 * 1024 * 1024,
		GroupID:     nodeID,
		StartOffset: kafka.LastOffset,
	})
	return &Watcher{
		msgReader: reader,
		mgrs:      mgrs,
	}
}

func (w *Watcher) Run(ctx context.Context) error {
	for {
		msg, err := w.msgReader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			_ = w.msgReader.CommitMessages(ctx, msg)
			continue
		}
		req := Request{}
		err = json.Unmarshal(msg.Value, &req)
		if err != nil {
			log.Error().Err(err).Msg("failed to decode request from json")
			_ = w.msgReader.CommitMessages(ctx, msg)
			continue
		}

		log.Info().Msgf("handling request %s: %s %s", req.ID, req.Op, req.Kind)

		err = w.handle(ctx, req)
		if err != nil {
			log.Error().Err(err).Msgf("failed to handle request %s: %s %s", req.ID, req.Op, req.Kind)
			continue
		}
		err = w.msgReader.CommitMessages(ctx, msg)
		if err != nil {
			log.Error().Err(err).Msg("failed to commit message: it will be doubled")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, req Request) error {
	switch models.EntityKind(req.Kind) {
	case models.KindLoadBalancer:
		return w.handleLoadBalancer(ctx, req)
	case models.KindListener:
		return w.handleListener(ctx, req)
	case models.KindPool:
		return w.handlePool(ctx, req)
	case models.KindMember:
		return w.handleMember(ctx, req)
	case models.KindHealthMonitor:
		return w.handleHealthMonitor(ctx, req)
	case models.KindL7Policy:
		return w.handleL7Policy(ctx, req)
	case models.KindL7Rule:
		return w.handleL7Rule(ctx, req)
	case models.KindACLGroup:
		return w.handleACLGroup(ctx, req)
	case "acl_bind":
		return w.handleACLBind(ctx, req)
	}
	return fmt.Errorf("unknown entity kind %q", req.Kind)
}

func (w *Watcher) handleLoadBalancer(ctx context.Context, req Request) error {
	before, after, err := decodePair[models.LoadBalancer](req)
	if err != nil {
		return fmt.Errorf("failed to decode loadbalancer documents: %w", err)
	}
	switch req.Op {
	case opCreate:
		return w.mgrs.LoadBalancers.Create(ctx, after)
	case opUpdate:
		return w.mgrs.LoadBalancers.Update(ctx, before, after)
	case opDelete:
		return w.mgrs.LoadBalancers.Delete(ctx, before)
	case opStats:
		return w.mgrs.LoadBalancers.Stats(ctx, after)
	}
	return fmt.Errorf("unknown op %q for loadbalancer", req.Op)
}

func (w *Watcher) handleListener(ctx context.Context, req Request) error {
	before, after, err := decodePair[models.Listener](req)
	if err != nil {
		return fmt.Errorf("failed to decode listener documents: %w", err)
	}
	attach := func(l *models.Listener) {
		if l == nil {
			return
		}
		l.LoadBalancer = req.LoadBalancer
		if req.Pool != nil {
			req.Pool.LoadBalancer = req.LoadBalancer
			l.DefaultPool = req.Pool
			if req.LoadBalancer != nil {
				req.LoadBalancer.Pools = append(req.LoadBalancer.Pools, req.Pool)
			}
		}
	}
	attach(before)
	attach(after)
	switch req.Op {
	case opCreate:
		return w.mgrs.Listeners.Create(ctx, after)
	case opUpdate:
		return w.mgrs.Listeners.Update(ctx, before, after)
	case opDelete:
		return w.mgrs.Listeners.Delete(ctx, before)
	}
	return fmt.Errorf("unknown op %q for listener", req.Op)
}

func (w *Watcher) handlePool(ctx context.Context, req Request) error {
	before, after, err := decodePair[models.Pool](req)
	if err != nil {
		return fmt.Errorf("failed to decode pool documents: %w", err)
	}
	attach := func(p *models.Pool) {
		if p == nil {
			return
		}
		p.LoadBalancer = req.LoadBalancer
		if req.Listener != nil {
			req.Listener.LoadBalancer = req.LoadBalancer
			req.Listener.DefaultPool = p
			if req.LoadBalancer != nil {
				req.LoadBalancer.Listeners = append(req.LoadBalancer.Listeners, req.Listener)
			}
		}
	}
	attach(before)
	attach(after)
	switch req.Op {
	case opCreate:
		return w.mgrs.Pools.Create(ctx, after)
	case opUpdate:
		return w.mgrs.Pools.Update(ctx, before, after)
	case opDelete:
		return w.mgrs.Pools.Delete(ctx, before)
	}
	return fmt.Errorf("unknown op %q for pool", req.Op)
}

func (w *Watcher) handleMember(ctx context.Context, req Request) error {
	before, after, err := decodePair[models.Member](req)
	if err != nil {
		return fmt.Errorf("failed to decode member documents: %w", err)
	}
	if req.Pool != nil {
		req.Pool.LoadBalancer = req.LoadBalancer
	}
	if before != nil {
		before.Pool = req.Pool
	}
	if after != nil {
		after.Pool = req.Pool
	}
	switch req.Op {
	case opCreate:
		return w.mgrs.Members.Create(ctx, after)
	case opUpdate:
		return w.mgrs.Members.Update(ctx, before, after)
	case opDelete:
		return w.mgrs.Members.Delete(ctx, before)
	}
	return fmt.Errorf("unknown op %q for member", req.Op)
}

func (w *Watcher) handleHealthMonitor(ctx context.Context, req Request) error {
	before, after, err := decodePair[models.HealthMonitor](req)
	if err != nil {
		return fmt.Errorf("failed to decode healthmonitor documents: %w", err)
	}
	if req.Pool != nil {
		req.Pool.LoadBalancer = req.LoadBalancer
	}
	if before != nil {
		before.Pool = req.Pool
	}
	if after != nil {
		after.Pool = req.Pool
	}
	switch req.Op {
	case opCreate:
		return w.mgrs.HealthMonitors.Create(ctx, after)
	case opUpdate:
		return w.mgrs.HealthMonitors.Update(ctx, before, after)
	case opDelete:
		return w.mgrs.HealthMonitors.Delete(ctx, before)
	}
	return fmt.Errorf("unknown op %q for healthmonitor", req.Op)
}

func (w *Watcher) handleL7Policy(ctx context.Context, req Request) error {
	before, after, err := decodePair[models.L7Policy](req)
	if err != nil {
		return fmt.Errorf("failed to decode l7policy documents: %w", err)
	}
	if req.Listener != nil {
		req.Listener.LoadBalancer = req.LoadBalancer
		if req.Pool != nil {
			req.Pool.LoadBalancer = req.LoadBalancer
			req.Listener.DefaultPool = req.Pool
		}
	}
	if before != nil {
		before.Listener = req.Listener
	}
	if after != nil {
		after.Listener = req.Listener
	}
	switch req.Op {
	case opCreate:
		return w.mgrs.L7Policies.Create(ctx, after)
	case opUpdate:
		return w.mgrs.L7Policies.Update(ctx, before, after)
	case opDelete:
		return w.mgrs.L7Policies.Delete(ctx, before)
	}
	return fmt.Errorf("unknown op %q for l7policy", req.Op)
}

func (w *Watcher) handleL7Rule(ctx context.Context, req Request) error {
	before, after, err := decodePair[models.L7Rule](req)
	if err != nil {
		return fmt.Errorf("failed to decode l7rule documents: %w", err)
	}
	if req.Listener != nil {
		req.Listener.LoadBalancer = req.LoadBalancer
		if req.Pool != nil {
			req.Pool.LoadBalancer = req.LoadBalancer
			req.Listener.DefaultPool = req.Pool
		}
	}
	if req.Policy != nil {
		req.Policy.Listener = req.Listener
	}
	if before != nil {
		before.Policy = req.Policy
	}
	if after != nil {
		after.Policy = req.Policy
	}
	switch req.Op {
	case opCreate:
		return w.mgrs.L7Rules.Create(ctx, after)
	case opUpdate:
		return w.mgrs.L7Rules.Update(ctx, before, after)
	case opDelete:
		return w.mgrs.L7Rules.Delete(ctx, before)
	}
	return fmt.Errorf("unknown op %q for l7rule", req.Op)
}

func (w *Watcher) handleACLGroup(ctx context.Context, req Request) error {
	if req.ACLGroup == nil {
		return fmt.Errorf("acl group request %s carries no group", req.ID)
	}
	if req.Op != opUpdate {
		return fmt.Errorf("unknown op %q for acl group", req.Op)
	}
	return w.mgrs.ACLGroups.UpdateGroup(ctx, req.ACLGroup, req.LoadBalancers)
}

func (w *Watcher) handleACLBind(ctx context.Context, req Request) error {
	before, after, err := decodePair[models.ACLBind](req)
	if err != nil {
		return fmt.Errorf("failed to decode acl bind documents: %w", err)
	}
	if req.ACLGroup == nil || req.LoadBalancer == nil || req.Listener == nil {
		return fmt.Errorf("acl bind request %s misses context", req.ID)
	}
	req.Listener.LoadBalancer = req.LoadBalancer
	switch req.Op {
	case opCreate:
		return w.mgrs.ACLGroups.AddBind(ctx, after, req.LoadBalancer, req.Listener, req.ACLGroup)
	case opDelete:
		return w.mgrs.ACLGroups.RemoveBind(ctx, before, req.LoadBalancer, req.Listener, req.ACLGroup)
	}
	return fmt.Errorf("unknown op %q for acl bind", req.Op)
}

func (w *Watcher) Close() error {
	return w.msgReader.Close()
}
