package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"logbook/internal/utils"
	"logbook/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const categoryTableName = "logbook.tool_categories"

var categoryColumns = utils.StructTagValues(types.ToolCategory{})

type CategoryRepository struct {
	pool *pgxpool.Pool
}

func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

func (r *CategoryRepository) AllCategories(ctx context.Context) ([]*types.ToolCategory, error) {
	query, args, err := psql().
		Select(categoryColumns...).
		From(categoryTableName).
		Where(sq.Eq{"is_active": true}).
		OrderBy("display_order ASC", "label ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate categories query: %w", err)
	}

	var categories []*types.ToolCategory
	err = pgxscan.Select(ctx, r.pool, &categories, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}

	return categories, nil
}

// CategoryBySlug returns the category whether or not it is active, so
// callers can tell a retired slug from an unknown one.
func (r *CategoryRepository) CategoryBySlug(ctx context.Context, slug string) (*types.ToolCategory, error) {
	query, args, err := psql().
		Select(categoryColumns...).
		From(categoryTableName).
		Where(sq.Eq{"slug": slug}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate category query: %w", err)
	}

	var category types.ToolCategory
	err = pgxscan.Get(ctx, r.pool, &category, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to fetch category: %w", err)
	}

	return &category, nil
}

func (r *CategoryRepository) UpsertCategory(ctx context.Context, category *types.ToolCategory) error {
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now()
	}

	categoryMap := utils.StructToMap(category)

	// created_at keeps its first value
	updateMap := make(map[string]any)
	for k, v := range categoryMap {
		if k != "slug" && k != "created_at" {
			updateMap[k] = v
		}
	}

	query, args, err := psql().
		Insert(categoryTableName).
		SetMap(categoryMap).
		Suffix("ON CONFLICT (slug) DO UPDATE SET " + buildUpdateClause(updateMap)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate upsert query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}

	return nil
}

// DeleteCategoriesNotIn removes every category whose slug is not listed.
func (r *CategoryRepository) DeleteCategoriesNotIn(ctx context.Context, slugs []string) (int64, error) {
	query, args, err := psql().
		Delete(categoryTableName).
		Where(sq.NotEq{"slug": slugs}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate delete query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete categories: %w", err)
	}

	return tag.RowsAffected(), nil
}

// buildUpdateClause creates the SET clause for ON CONFLICT DO UPDATE
// e.g., "label = EXCLUDED.label, is_active = EXCLUDED.is_active"
func buildUpdateClause(fields map[string]any) string {
	parts := make([]string, 0, len(fields))
	for field := range fields {
		parts = append(parts, fmt.Sprintf("%s = EXCLUDED.%s", field, field))
	}
	return strings.Join(parts, ", ")
}
