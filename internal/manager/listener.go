package manager

import (
	"context"

	"github.com/Sh00ty/lbaas-driver/internal/models"
	"github.com/Sh00ty/lbaas-driver/internal/servicebuilder"
)

type ListenerManager struct {
	base
}

func NewListenerManager(cfg Config, deps Deps) *ListenerManager {
	return &ListenerManager{base: newBase(cfg, deps)}
}

func (m *ListenerManager) Create(ctx context.Context, listener *models.Listener) error {
	// A fresh listener has no l7 policies yet; its default pool may
	// already exist and must ride along.
	strategy := m.strategy(servicebuilder.Partial{
		Listeners: func(ctx context.Context, lb *models.LoadBalancer, ap servicebuilder.Appender) error {
			return ap.AddListener(ctx, listener)
		},
		Pools: func(ctx context.Context, lb *models.LoadBalancer, ap servicebuilder.Appender) error {
			if listener.DefaultPool == nil {
				return nil
			}
			for _, pool := range lb.Pools {
				if pool.ID == listener.DefaultPool.ID {
					return ap.AddPool(ctx, pool)
				}
			}
			return nil
		},
	})
	return m.createEntity(ctx, listener, strategy)
}

func (m *ListenerManager) Update(ctx context.Context, oldListener, listener *models.Listener) error {
	return m.updateEntity(ctx, oldListener, listener)
}

func (m *ListenerManager) Delete(ctx context.Context, listener *models.Listener) error {
	// L7 policies are already gone by the time a listener may be
	// deleted; pools are left untouched.
	strategy := m.strategy(servicebuilder.Partial{
		Listeners: func(ctx context.Context, lb *models.LoadBalancer, ap servicebuilder.Appender) error {
			return ap.AddListener(ctx, listener)
		},
	})
	return m.deleteEntity(ctx, listener, strategy)
}
