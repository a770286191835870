package manager

import (
	"context"

	"github.com/Sh00ty/lbaas-driver/internal/models"
	"github.com/Sh00ty/lbaas-driver/internal/servicebuilder"
)

// listenerGraph attaches one listener plus its default pool, the shape
// every l7 change dispatches with.
func listenerGraph(listener *models.Listener) servicebuilder.Partial {
	return servicebuilder.Partial{
		Listeners: func(ctx context.Context, lb *models.LoadBalancer, ap servicebuilder.Appender) error {
			return ap.AddListener(ctx, listener)
		},
		Pools: func(ctx context.Context, lb *models.LoadBalancer, ap servicebuilder.Appender) error {
			if listener == nil {
				return nil
			}
			return ap.AddPool(ctx, listener.DefaultPool)
		},
	}
}

func ruleListener(rule *models.L7Rule) *models.Listener {
	if rule.Policy == nil {
		return nil
	}
	return rule.Policy.Listener
}

type L7PolicyManager struct {
	base
}

func NewL7PolicyManager(cfg Config, deps Deps) *L7PolicyManager {
	return &L7PolicyManager{base: newBase(cfg, deps)}
}

func (m *L7PolicyManager) Create(ctx context.Context, policy *models.L7Policy) error {
	return m.createEntity(ctx, policy, m.strategy(listenerGraph(policy.Listener)))
}

func (m *L7PolicyManager) Update(ctx context.Context, oldPolicy, policy *models.L7Policy) error {
	return m.updateEntity(ctx, oldPolicy, policy)
}

func (m *L7PolicyManager) Delete(ctx context.Context, policy *models.L7Policy) error {
	return m.deleteEntity(ctx, policy, m.strategy(listenerGraph(policy.Listener)))
}

type L7RuleManager struct {
	base
}

func NewL7RuleManager(cfg Config, deps Deps) *L7RuleManager {
	return &L7RuleManager{base: newBase(cfg, deps)}
}

func (m *L7RuleManager) Create(ctx context.Context, rule *models.L7Rule) error {
	return m.createEntity(ctx, rule, m.strategy(listenerGraph(ruleListener(rule))))
}

func (m *L7RuleManager) Update(ctx context.Context, oldRule, rule *models.L7Rule) error {
	return m.updateEntity(ctx, oldRule, rule)
}

func (m *L7RuleManager) Delete(ctx context.Context, rule *models.L7Rule) error {
	return m.deleteEntity(ctx, rule, m.strategy(listenerGraph(ruleListener(rule))))
}
