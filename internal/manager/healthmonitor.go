package manager

import (
	"context"

	"github.com/Sh00ty/lbaas-driver/internal/models"
	"github.com/Sh00ty/lbaas-driver/internal/servicebuilder"
)

type HealthMonitorManager struct {
	base
}

func NewHealthMonitorManager(cfg Config, deps Deps) *HealthMonitorManager {
	return &HealthMonitorManager{base: newBase(cfg, deps)}
}

func monitorGraph(monitor *models.HealthMonitor) servicebuilder.Partial {
	return servicebuilder.Partial{
		Pools: func(ctx context.Context, lb *models.LoadBalancer, ap servicebuilder.Appender) error {
			return ap.AddPool(ctx, monitor.Pool)
		},
	}
}

func (m *HealthMonitorManager) Create(ctx context.Context, monitor *models.HealthMonitor) error {
	return m.createEntity(ctx, monitor, m.strategy(monitorGraph(monitor)))
}

func (m *HealthMonitorManager) Update(ctx context.Context, oldMonitor, monitor *models.HealthMonitor) error {
	return m.updateEntity(ctx, oldMonitor, monitor)
}

func (m *HealthMonitorManager) Delete(ctx context.Context, monitor *models.HealthMonitor) error {
	return m.deleteEntity(ctx, monitor, m.strategy(monitorGraph(monitor)))
}
