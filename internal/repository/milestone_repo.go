package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"projectstream/internal/model"
	"projectstream/pkg/outbox"
)

type MilestoneRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, ob *outbox.Repository, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{
		db:     db,
		outbox: ob,
		logger: logger,
	}
}

const milestoneColumns = `
    id, project_id, name, slug, description, status, priority,
    planned_start_date, planned_end_date, actual_start_date, actual_end_date,
    progress, budget, actual_cost, assigned_to, created_by, stream_id,
    metadata, created_at, updated_at, completed_at
`

func scanMilestone(row pgx.Row) (*model.Milestone, error) {
	var m model.Milestone
	err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.Name,
		&m.Slug,
		&m.Description,
		&m.Status,
		&m.Priority,
		&m.PlannedStartDate,
		&m.PlannedEndDate,
		&m.ActualStartDate,
		&m.ActualEndDate,
		&m.Progress,
		&m.Budget,
		&m.ActualCost,
		&m.AssignedTo,
		&m.CreatedBy,
		&m.StreamID,
		&m.Metadata,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MilestoneRepository) Insert(ctx context.Context, m *model.Milestone) error {
	r.logger.Debug("Inserting milestone",
		zap.Int64("project_id", m.ProjectID),
		zap.String("name", m.Name),
	)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO milestones (
            project_id, name, slug, description, status, priority,
            planned_start_date, planned_end_date, progress, budget,
            actual_cost, assigned_to, created_by, metadata
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        RETURNING id, created_at, updated_at
    `
	err = tx.QueryRow(ctx, query,
		m.ProjectID,
		m.Name,
		m.Slug,
		m.Description,
		m.Status,
		m.Priority,
		m.PlannedStartDate,
		m.PlannedEndDate,
		m.Progress,
		m.Budget,
		m.ActualCost,
		m.AssignedTo,
		m.CreatedBy,
		m.Metadata,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert milestone", zap.Error(err))
		return fmt.Errorf("insert milestone: %w", err)
	}

	for _, depID := range m.DependencyIDs {
		if _, err := tx.Exec(ctx, `
            INSERT INTO milestone_dependencies (milestone_id, depends_on_id)
            VALUES ($1, $2)
            ON CONFLICT DO NOTHING
        `, m.ID, depID); err != nil {
			r.logger.Error("Failed to insert milestone dependency", zap.Error(err))
			return fmt.Errorf("insert milestone dependency: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.Info("Milestone inserted successfully",
		zap.Int64("id", m.ID),
		zap.Int64("project_id", m.ProjectID),
	)
	return nil
}

func (r *MilestoneRepository) FindByID(ctx context.Context, id int64) (*model.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE id = $1`

	m, err := scanMilestone(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: milestone %d", model.ErrNotFound, id)
		}
		r.logger.Error("Failed to find milestone", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("find milestone: %w", err)
	}

	if err := r.loadDependencies(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MilestoneRepository) loadDependencies(ctx context.Context, m *model.Milestone) error {
	rows, err := r.db.Query(ctx, `
        SELECT depends_on_id FROM milestone_dependencies
        WHERE milestone_id = $1
        ORDER BY depends_on_id
    `, m.ID)
	if err != nil {
		return fmt.Errorf("load dependencies: %w", err)
	}
	defer rows.Close()

	m.DependencyIDs = nil
	for rows.Next() {
		var depID int64
		if err := rows.Scan(&depID); err != nil {
			return fmt.Errorf("scan dependency: %w", err)
		}
		m.DependencyIDs = append(m.DependencyIDs, depID)
	}
	return rows.Err()
}

func (r *MilestoneRepository) listQuery(ctx context.Context, query string, args ...any) ([]*model.Milestone, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list milestones", zap.Error(err))
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []*model.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			r.logger.Error("Failed to scan milestone", zap.Error(err))
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range milestones {
		if err := r.loadDependencies(ctx, m); err != nil {
			return nil, err
		}
	}
	return milestones, nil
}

func (r *MilestoneRepository) ListByProject(ctx context.Context, projectID int64) ([]*model.Milestone, error) {
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE project_id = $1
        ORDER BY planned_end_date NULLS LAST, created_at
    `
	return r.listQuery(ctx, query, projectID)
}

func (r *MilestoneRepository) ListByIDs(ctx context.Context, ids []int64) ([]*model.Milestone, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE id = ANY($1)
    `
	return r.listQuery(ctx, query, ids)
}

// ListDependents returns milestones that declare id as a dependency.
func (r *MilestoneRepository) ListDependents(ctx context.Context, id int64) ([]*model.Milestone, error) {
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE id IN (
            SELECT milestone_id FROM milestone_dependencies WHERE depends_on_id = $1
        )
        ORDER BY id
    `
	return r.listQuery(ctx, query, id)
}

// ListAssignedOpen returns a user's milestones that are not completed or
// cancelled, soonest planned end first.
func (r *MilestoneRepository) ListAssignedOpen(ctx context.Context, userID int64, limit int) ([]*model.Milestone, error) {
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE assigned_to = $1
        AND status NOT IN ('completed', 'cancelled')
        ORDER BY planned_end_date NULLS LAST, created_at
        LIMIT $2
    `
	return r.listQuery(ctx, query, userID, limit)
}

// Save persists the milestone's mutable fields and any outbox messages in one
// transaction. The update is guarded on the updated_at value read with the
// row: a write that lost a race to another commit matches zero rows and is
// rejected instead of overwriting it, so two concurrent transitions cannot
// both land.
func (r *MilestoneRepository) Save(ctx context.Context, m *model.Milestone, msgs ...outbox.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE milestones
        SET status = $1, priority = $2, progress = $3, description = $4,
            planned_start_date = $5, planned_end_date = $6,
            actual_start_date = $7, actual_end_date = $8,
            budget = $9, actual_cost = $10, assigned_to = $11,
            stream_id = $12, metadata = $13, completed_at = $14,
            updated_at = clock_timestamp()
        WHERE id = $15 AND updated_at = $16
        RETURNING updated_at
    `
	err = tx.QueryRow(ctx, query,
		m.Status,
		m.Priority,
		m.Progress,
		m.Description,
		m.PlannedStartDate,
		m.PlannedEndDate,
		m.ActualStartDate,
		m.ActualEndDate,
		m.Budget,
		m.ActualCost,
		m.AssignedTo,
		m.StreamID,
		m.Metadata,
		m.CompletedAt,
		m.ID,
		m.UpdatedAt,
	).Scan(&m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM milestones WHERE id = $1)`, m.ID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("save milestone: %w", err)
			}
			if !exists {
				return fmt.Errorf("%w: milestone %d", model.ErrNotFound, m.ID)
			}
			return fmt.Errorf("%w: milestone %d was modified concurrently", model.ErrInvalidTransition, m.ID)
		}
		r.logger.Error("Failed to save milestone", zap.Int64("id", m.ID), zap.Error(err))
		return fmt.Errorf("save milestone: %w", err)
	}

	if len(msgs) > 0 {
		if err := r.outbox.InsertMessages(ctx, tx, msgs...); err != nil {
			r.logger.Error("Failed to insert outbox messages", zap.Error(err))
			return fmt.Errorf("insert outbox messages: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AddDependency records that milestoneID depends on dependsOnID.
func (r *MilestoneRepository) AddDependency(ctx context.Context, milestoneID, dependsOnID int64) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO milestone_dependencies (milestone_id, depends_on_id)
        VALUES ($1, $2)
        ON CONFLICT DO NOTHING
    `, milestoneID, dependsOnID)
	if err != nil {
		r.logger.Error("Failed to add milestone dependency",
			zap.Int64("milestone_id", milestoneID),
			zap.Int64("depends_on_id", dependsOnID),
			zap.Error(err),
		)
		return fmt.Errorf("add dependency: %w", err)
	}
	return nil
}

// SetStream links a milestone to its activity stream.
func (r *MilestoneRepository) SetStream(ctx context.Context, milestoneID, streamID int64) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE milestones SET stream_id = $1, updated_at = NOW() WHERE id = $2
    `, streamID, milestoneID)
	if err != nil {
		return fmt.Errorf("set stream: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: milestone %d", model.ErrNotFound, milestoneID)
	}
	return nil
}
