package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"projectstream/internal/model"
)

type CommentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewCommentRepository(db *pgxpool.Pool, logger *zap.Logger) *CommentRepository {
	return &CommentRepository{
		db:     db,
		logger: logger,
	}
}

const commentColumns = `
    id, milestone_id, author_id, content, parent_id, is_edited, edited_at, created_at
`

func scanComment(row pgx.Row) (*model.MilestoneComment, error) {
	var c model.MilestoneComment
	err := row.Scan(
		&c.ID,
		&c.MilestoneID,
		&c.AuthorID,
		&c.Content,
		&c.ParentID,
		&c.IsEdited,
		&c.EditedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CommentRepository) Insert(ctx context.Context, c *model.MilestoneComment) error {
	query := `
        INSERT INTO milestone_comments (milestone_id, author_id, content, parent_id)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `
	err := r.db.QueryRow(ctx, query,
		c.MilestoneID,
		c.AuthorID,
		c.Content,
		c.ParentID,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert comment", zap.Int64("milestone_id", c.MilestoneID), zap.Error(err))
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (r *CommentRepository) FindByID(ctx context.Context, id int64) (*model.MilestoneComment, error) {
	query := `SELECT ` + commentColumns + ` FROM milestone_comments WHERE id = $1`

	c, err := scanComment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: comment %d", model.ErrNotFound, id)
		}
		r.logger.Error("Failed to find comment", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("find comment: %w", err)
	}
	return c, nil
}

func (r *CommentRepository) ListByMilestone(ctx context.Context, milestoneID int64) ([]*model.MilestoneComment, error) {
	query := `
        SELECT ` + commentColumns + `
        FROM milestone_comments
        WHERE milestone_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, milestoneID)
	if err != nil {
		r.logger.Error("Failed to list comments", zap.Error(err))
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []*model.MilestoneComment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// UpdateContent replaces the comment body and stamps the edit.
func (r *CommentRepository) UpdateContent(ctx context.Context, id int64, content string, editedAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE milestone_comments
        SET content = $1, is_edited = TRUE, edited_at = $2
        WHERE id = $3
    `, content, editedAt, id)
	if err != nil {
		r.logger.Error("Failed to update comment", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("update comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: comment %d", model.ErrNotFound, id)
	}
	return nil
}
