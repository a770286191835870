package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sh00ty/lbaas-driver/internal/models"
)

// EntityRepository serves the lifecycle entity rows. Each entity is one
// jsonb document keyed by (kind, id); status changes patch the document
// in place instead of rewriting it.
type EntityRepository struct {
	db *pgxpool.Pool
}

func NewEntityRepository(db *pgxpool.Pool) *EntityRepository {
	return &EntityRepository{db: db}
}

func getEntity[E any](ctx context.Context, db *pgxpool.Pool, kind models.EntityKind, id string) (*E, error) {
	sql := `
	select doc
	from entities
	where kind = $1 and id = $2;
	`

	var entity E
	err := db.QueryRow(ctx, sql, kind.String(), id).Scan(&entity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}
	return &entity, nil
}

func (r *EntityRepository) GetLoadBalancer(ctx context.Context, id string) (*models.LoadBalancer, error) {
	return getEntity[models.LoadBalancer](ctx, r.db, models.KindLoadBalancer, id)
}

func (r *EntityRepository) GetListener(ctx context.Context, id string) (*models.Listener, error) {
	return getEntity[models.Listener](ctx, r.db, models.KindListener, id)
}

func (r *EntityRepository) GetPool(ctx context.Context, id string) (*models.Pool, error) {
	return getEntity[models.Pool](ctx, r.db, models.KindPool, id)
}

func (r *EntityRepository) GetHealthMonitor(ctx context.Context, id string) (*models.HealthMonitor, error) {
	return getEntity[models.HealthMonitor](ctx, r.db, models.KindHealthMonitor, id)
}

func (r *EntityRepository) SetStatus(ctx context.Context, kind models.EntityKind, id string, status models.Status) error {
	sql := `
	update entities
	set doc = jsonb_set(doc, '{provisioning_status}', to_jsonb($3::text))
	where kind = $1 and id = $2;
	`

	tag, err := r.db.Exec(ctx, sql, kind.String(), id, string(status))
	if err != nil {
		return fmt.Errorf("failed to set status of %s %s: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no %s row for id %s", kind, id)
	}
	return nil
}

// DeleteLoadBalancer drops the load balancer document together with its
// binding row. Used for the cleanup path where nothing was ever
// scheduled onto a device.
func (r *EntityRepository) DeleteLoadBalancer(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel: pgx.ReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to start delete transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `delete from loadbalancer_agent_bindings where loadbalancer_id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete binding of loadbalancer %s: %w", id, err)
	}
	_, err = tx.Exec(ctx, `delete from entities where kind = $1 and id = $2;`, models.KindLoadBalancer.String(), id)
	if err != nil {
		return fmt.Errorf("failed to delete loadbalancer %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit loadbalancer delete: %w", err)
	}
	return nil
}
