package manager

import (
	"context"

	"github.com/Sh00ty/lbaas-driver/internal/models"
	"github.com/Sh00ty/lbaas-driver/internal/servicebuilder"
)

type PoolManager struct {
	base
}

func NewPoolManager(cfg Config, deps Deps) *PoolManager {
	return &PoolManager{base: newBase(cfg, deps)}
}

// poolGraph attaches the pool itself plus every listener that uses it as
// the default pool.
func poolGraph(pool *models.Pool) servicebuilder.Partial {
	return servicebuilder.Partial{
		Listeners: func(ctx context.Context, lb *models.LoadBalancer, ap servicebuilder.Appender) error {
			for _, listener := range lb.Listeners {
				if listener.DefaultPool != nil && listener.DefaultPool.ID == pool.ID {
					if err := ap.AddListener(ctx, listener); err != nil {
						return err
					}
				}
			}
			return nil
		},
		Pools: func(ctx context.Context, lb *models.LoadBalancer, ap servicebuilder.Appender) error {
			return ap.AddPool(ctx, pool)
		},
	}
}

func (m *PoolManager) Create(ctx context.Context, pool *models.Pool) error {
	return m.createEntity(ctx, pool, m.strategy(poolGraph(pool)))
}

func (m *PoolManager) Update(ctx context.Context, oldPool, pool *models.Pool) error {
	return m.updateEntity(ctx, oldPool, pool)
}

func (m *PoolManager) Delete(ctx context.Context, pool *models.Pool) error {
	return m.deleteEntity(ctx, pool, m.strategy(poolGraph(pool)))
}
