package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sh00ty/lbaas-driver/internal/models"
	"github.com/Sh00ty/lbaas-driver/internal/pgerror"
	"github.com/Sh00ty/lbaas-driver/internal/scheduler"
)

func NewPool(ctx context.Context, user, password, addr string, port uint16) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(
		fmt.Sprintf(
			"user=%s password=%s host=%s port=%d dbname=lbaas sslmode=disable pool_max_conns=15",
			user, password, addr, port,
		),
	)
	if cfg == nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	err = pool.Ping(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return pool, nil
}

type BindingRepository struct {
	db *pgxpool.Pool
}

func NewBindingRepository(db *pgxpool.Pool) *BindingRepository {
	return &BindingRepository{db: db}
}

func (r *BindingRepository) GetBinding(ctx context.Context, loadbalancerID string) (*models.Binding, error) {
	sql := `
	select loadbalancer_id, agent_id, device_id, created_at
	from loadbalancer_agent_bindings
	where loadbalancer_id = $1;
	`

	binding := models.Binding{}
	err := r.db.QueryRow(ctx, sql, loadbalancerID).Scan(
		&binding.LoadBalancerID,
		&binding.AgentID,
		&binding.DeviceID,
		&binding.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read binding: %w", err)
	}
	return &binding, nil
}

func (r *BindingRepository) CreatePlaceholder(ctx context.Context, binding *models.Binding) error {
	sql := `
	insert into loadbalancer_agent_bindings (loadbalancer_id, agent_id, device_id)
	values ($1, $2, $3)
	on conflict (loadbalancer_id) do nothing;
	`

	_, err := r.db.Exec(ctx, sql, binding.LoadBalancerID, binding.AgentID, binding.DeviceID)
	if err != nil {
		constraint, ok := pgerror.GetConstraintName(err)
		if !ok {
			return fmt.Errorf("failed to insert placeholder binding: %w", err)
		}
		switch constraint {
		case "loadbalancer_agent_bindings_agent_id_fkey":
			return fmt.Errorf("agent %s is not registered", binding.AgentID)
		}
		return fmt.Errorf("failed to insert placeholder binding: %w", err)
	}
	return nil
}

func (r *BindingRepository) UpdateBindingAgent(ctx context.Context, loadbalancerID, agentID string) error {
	sql := `
	update loadbalancer_agent_bindings
	set agent_id = $2
	where loadbalancer_id = $1;
	`

	tag, err := r.db.Exec(ctx, sql, loadbalancerID, agentID)
	if err != nil {
		constraint, ok := pgerror.GetConstraintName(err)
		if !ok {
			return fmt.Errorf("failed to update binding agent: %w", err)
		}
		switch constraint {
		case "loadbalancer_agent_bindings_agent_id_fkey":
			return fmt.Errorf("agent %s is not registered", agentID)
		}
		return fmt.Errorf("failed to update binding agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no binding row for loadbalancer %s", loadbalancerID)
	}
	return nil
}

// LeaseDevice locks every placeholder row with NOWAIT, re-reads this load
// balancer's row under the lock and commits the picked device into it.
// The re-read is what makes a concurrent race safe: the loser finds a
// real device id already committed by the winner and returns it without
// picking again. Lock conflicts surface as scheduler.ErrLeaseContended.
func (r *BindingRepository) LeaseDevice(
	ctx context.Context,
	loadbalancerID string,
	pick scheduler.DevicePicker,
) (string, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel: pgx.ReadCommitted,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start leasing transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	sql := `
	select loadbalancer_id, device_id
	from loadbalancer_agent_bindings
	where device_id = $1
	for update nowait;
	`

	rows, err := tx.Query(ctx, sql, models.UnassignedDevice)
	if err != nil {
		return "", leaseError("failed to lock placeholder bindings", err)
	}

	stillPlaceholder := false
	for rows.Next() {
		var lbID, deviceID string
		if err := rows.Scan(&lbID, &deviceID); err != nil {
			rows.Close()
			return "", fmt.Errorf("failed to scan placeholder binding: %w", err)
		}
		if lbID == loadbalancerID {
			stillPlaceholder = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", leaseError("failed to iterate placeholder bindings", err)
	}

	if !stillPlaceholder {
		// A concurrent scheduler already raced a device in. Return its
		// committed id.
		var deviceID string
		err = tx.QueryRow(
			ctx,
			`select device_id from loadbalancer_agent_bindings where loadbalancer_id = $1;`,
			loadbalancerID,
		).Scan(&deviceID)
		if err != nil {
			return "", fmt.Errorf("failed to read committed device id: %w", err)
		}
		return deviceID, nil
	}

	deviceID, err := pick(ctx)
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(
		ctx,
		`update loadbalancer_agent_bindings set device_id = $2 where loadbalancer_id = $1;`,
		loadbalancerID,
		deviceID,
	)
	if err != nil {
		return "", leaseError("failed to commit device id", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", leaseError("failed to commit leasing transaction", err)
	}
	return deviceID, nil
}

func leaseError(msg string, err error) error {
	if pgerror.IsLockConflict(err) {
		return fmt.Errorf("%s: %w", msg, scheduler.ErrLeaseContended)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
