package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"projectstream/internal/model"
)

type ProjectRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewProjectRepository(db *pgxpool.Pool, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ProjectRepository) Insert(ctx context.Context, p *model.Project) error {
	query := `
        INSERT INTO projects (name, status, owner_id)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query, p.Name, p.Status, p.OwnerID).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert project", zap.Error(err))
		return fmt.Errorf("insert project: %w", err)
	}

	r.logger.Info("Project inserted successfully",
		zap.Int64("id", p.ID),
		zap.String("name", p.Name),
	)
	return nil
}

func (r *ProjectRepository) FindByID(ctx context.Context, id int64) (*model.Project, error) {
	query := `
        SELECT id, name, status, owner_id, created_at, updated_at
        FROM projects
        WHERE id = $1
    `
	var p model.Project
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Status,
		&p.OwnerID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: project %d", model.ErrNotFound, id)
		}
		r.logger.Error("Failed to find project", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("find project: %w", err)
	}
	return &p, nil
}

func (r *ProjectRepository) UpdateStatus(ctx context.Context, id int64, status model.ProjectStatus) error {
	query := `
        UPDATE projects
        SET status = $1, updated_at = NOW()
        WHERE id = $2
    `
	tag, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		r.logger.Error("Failed to update project status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("update project status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: project %d", model.ErrNotFound, id)
	}
	return nil
}
