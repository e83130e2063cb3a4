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
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	toolTableName  = "logbook.tools"
	toolIDSequence = "logbook.tools_id_seq"
)

var toolColumns = utils.StructTagValues(types.Tool{})

type ToolRepository struct {
	pool *pgxpool.Pool
}

func NewToolRepository(pool *pgxpool.Pool) *ToolRepository {
	return &ToolRepository{pool: pool}
}

// Tool returns a tool with its images attached.
func (r *ToolRepository) Tool(ctx context.Context, toolID int64) (*types.Tool, error) {
	query, args, err := psql().
		Select(toolColumns...).
		From(toolTableName).
		Where(sq.Eq{"id": toolID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tool query: %w", err)
	}

	var tool = new(types.Tool)
	err = pgxscan.Get(ctx, r.pool, tool, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrToolNotFound
		}
		return nil, fmt.Errorf("failed to fetch tool %d: %w", toolID, err)
	}

	images, err := imagesByTools(ctx, r.pool, []int64{tool.ID})
	if err != nil {
		return nil, err
	}
	tool.Images = images[tool.ID]

	return tool, nil
}

// ToolsByEvent returns the event's tools in creation order with images attached.
func (r *ToolRepository) ToolsByEvent(ctx context.Context, eventID int64) ([]*types.Tool, error) {
	tools, err := toolsByEvents(ctx, r.pool, []int64{eventID})
	if err != nil {
		return nil, err
	}

	return tools[eventID], nil
}

func (r *ToolRepository) NextToolID(ctx context.Context) (int64, error) {
	return nextval(ctx, r.pool, toolIDSequence)
}

// CreateTool inserts the tool with its id already reserved, along with its
// initial images, in one transaction. The event row is share-locked so the
// insert cannot interleave with CompleteEvent.
func (r *ToolRepository) CreateTool(ctx context.Context, tool *types.Tool, images []*types.ToolImage) error {
	now := time.Now()
	tool.CreatedAt = now
	tool.UpdatedAt = now

	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		status, err := lockEvent(ctx, tx, tool.EventID, "FOR SHARE")
		if err != nil {
			return err
		}

		if status == types.EventStatusCompleted {
			return types.ErrEventCompleted
		}

		builder := psql().Insert(toolTableName)
		if tool.ID == 0 {
			builder = builder.SetMap(utils.StructToMap(tool, "id")).Suffix("RETURNING id")
		} else {
			builder = builder.SetMap(utils.StructToMap(tool)).Suffix("RETURNING id")
		}

		query, args, err := builder.ToSql()
		if err != nil {
			return fmt.Errorf("failed to generate insert tool query: %w", err)
		}

		if err := tx.QueryRow(ctx, query, args...).Scan(&tool.ID); err != nil {
			return fmt.Errorf("failed to create tool: %w", err)
		}

		for _, image := range images {
			image.ToolID = tool.ID
		}

		if err := insertImages(ctx, tx, images); err != nil {
			return err
		}

		tool.Images = images
		return nil
	})
}

// UpdateTool applies the non-nil fields of patch and always bumps updated_at.
func (r *ToolRepository) UpdateTool(ctx context.Context, toolID int64, patch *types.ToolPatch) (*types.Tool, error) {
	builder := psql().
		Update(toolTableName).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": toolID})

	if patch.Name != nil {
		builder = builder.Set("name", strings.TrimSpace(*patch.Name))
	}
	if patch.Category != nil {
		builder = builder.Set("category", strings.TrimSpace(*patch.Category))
	}
	if patch.Total != nil {
		builder = builder.Set("total", *patch.Total)
	}
	if patch.InitialCondition != nil {
		builder = builder.Set("initial_condition", strings.TrimSpace(*patch.InitialCondition))
	}
	if patch.FinalCondition != nil {
		builder = builder.Set("final_condition", strings.TrimSpace(*patch.FinalCondition))
	}
	if patch.Notes != nil {
		builder = builder.Set("notes", utils.NilIfBlank(*patch.Notes))
	}

	query, args, err := builder.Suffix("RETURNING " + strings.Join(toolColumns, ", ")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate update tool query for tool %d: %w", toolID, err)
	}

	var tool = new(types.Tool)
	err = pgxscan.Get(ctx, r.pool, tool, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrToolNotFound
		}
		return nil, fmt.Errorf("failed to update tool %d: %w", toolID, err)
	}

	return tool, nil
}

// DeleteTool removes the tool row; tool_images rows go with it by cascade.
func (r *ToolRepository) DeleteTool(ctx context.Context, toolID int64) error {
	query, args, err := psql().Delete(toolTableName).Where(sq.Eq{"id": toolID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete tool query for tool %d: %w", toolID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete tool %d: %w", toolID, err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrToolNotFound
	}

	return nil
}

func (r *ToolRepository) ExistingToolIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return existingIDs(ctx, r.pool, toolTableName, ids)
}

func toolIDsByEvent(ctx context.Context, q dbtx, eventID int64) ([]int64, error) {
	query, args, err := psql().
		Select("id").
		From(toolTableName).
		Where(sq.Eq{"event_id": eventID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tool ids query: %w", err)
	}

	var ids []int64
	if err := pgxscan.Select(ctx, q, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch tool ids for event %d: %w", eventID, err)
	}

	return ids, nil
}

func toolsByEvents(ctx context.Context, q dbtx, eventIDs []int64) (map[int64][]*types.Tool, error) {
	out := make(map[int64][]*types.Tool, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}

	query, args, err := psql().
		Select(toolColumns...).
		From(toolTableName).
		Where(sq.Eq{"event_id": eventIDs}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tools query: %w", err)
	}

	var tools []*types.Tool
	err = pgxscan.Select(ctx, q, &tools, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tools: %w", err)
	}

	toolIDs := make([]int64, 0, len(tools))
	for _, tool := range tools {
		toolIDs = append(toolIDs, tool.ID)
	}

	images, err := imagesByTools(ctx, q, toolIDs)
	if err != nil {
		return nil, err
	}

	for _, tool := range tools {
		tool.Images = images[tool.ID]
		out[tool.EventID] = append(out[tool.EventID], tool)
	}

	return out, nil
}

// recordFinalConditions writes final conditions and notes inside the
// caller's transaction. Only CompleteEvent calls it, after the End
// validation has passed.
func recordFinalConditions(ctx context.Context, tx pgx.Tx, eventID int64, updates []types.FinalConditionUpdate) error {
	now := time.Now()

	for _, update := range updates {
		query, args, err := psql().
			Update(toolTableName).
			Set("final_condition", update.FinalCondition).
			Set("notes", update.Notes).
			Set("updated_at", now).
			Where(sq.Eq{"id": update.ToolID, "event_id": eventID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to generate final condition query for tool %d: %w", update.ToolID, err)
		}

		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to record final condition for tool %d: %w", update.ToolID, err)
		}

		if tag.RowsAffected() == 0 {
			return fmt.Errorf("tool %d of event %d: %w", update.ToolID, eventID, types.ErrToolNotFound)
		}
	}

	return nil
}
