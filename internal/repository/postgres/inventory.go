package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sh00ty/lbaas-driver/internal/models"
)

const (
	agentsTable  = "agents"
	devicesTable = "devices"
)

// InventoryRepository reads the agent and device fleet. Capabilities and
// link information live in jsonb columns and scan straight into the
// model types.
type InventoryRepository struct {
	db *pgxpool.Pool
}

func NewInventoryRepository(db *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	sql := `
	select id, host, alive, admin_state_up, capabilities, heartbeat_at
	from agents
	where id = $1;
	`

	agent := models.Agent{}
	err := r.db.QueryRow(ctx, sql, agentID).Scan(
		&agent.ID,
		&agent.Host,
		&agent.Alive,
		&agent.AdminStateUp,
		&agent.Capabilities,
		&agent.HeartbeatAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read agent %s: %w", agentID, err)
	}
	return &agent, nil
}

func (r *InventoryRepository) ListCandidateAgents(ctx context.Context) ([]*models.Agent, error) {
	sql, args, err := squirrel.Select(
		"id",
		"host",
		"alive",
		"admin_state_up",
		"capabilities",
		"heartbeat_at",
	).From(agentsTable).
		Where(squirrel.Eq{"alive": true, "admin_state_up": true}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to create db request: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Agent, 0, 16)
	for rows.Next() {
		agent := models.Agent{}
		err = rows.Scan(
			&agent.ID,
			&agent.Host,
			&agent.Alive,
			&agent.AdminStateUp,
			&agent.Capabilities,
			&agent.HeartbeatAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent value: %w", err)
		}
		result = append(result, &agent)
	}
	return result, rows.Err()
}

func (r *InventoryRepository) UpdateAgentLiveness(ctx context.Context, host string, alive bool) error {
	sql := `
	update agents
	set alive = $2, heartbeat_at = $3
	where host = $1;
	`

	tag, err := r.db.Exec(ctx, sql, host, alive, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update liveness of agent %s: %w", host, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no agent registered for host %s", host)
	}
	return nil
}

func (r *InventoryRepository) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	sql := `
	select id, name, admin_state_up, masquerade_mac, local_link_information
	from devices
	where id = $1;
	`

	device := models.Device{}
	err := r.db.QueryRow(ctx, sql, deviceID).Scan(
		&device.ID,
		&device.Name,
		&device.AdminStateUp,
		&device.MasqueradeMAC,
		&device.LocalLinkInformation,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read device %s: %w", deviceID, err)
	}
	return &device, nil
}

func (r *InventoryRepository) ListActiveDevices(ctx context.Context) ([]*models.Device, error) {
	sql, args, err := squirrel.Select(
		"id",
		"name",
		"admin_state_up",
		"masquerade_mac",
		"local_link_information",
	).From(devicesTable).
		Where(squirrel.Eq{"admin_state_up": true}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to create db request: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Device, 0, 16)
	for rows.Next() {
		device := models.Device{}
		err = rows.Scan(
			&device.ID,
			&device.Name,
			&device.AdminStateUp,
			&device.MasqueradeMAC,
			&device.LocalLinkInformation,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device value: %w", err)
		}
		result = append(result, &device)
	}
	return result, rows.Err()
}
