package store

import (
	"context"
	"fmt"
	"time"

	"logbook/internal/utils"
	"logbook/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
)

const toolImageTableName = "logbook.tool_images"

var toolImageColumns = utils.StructTagValues(types.ToolImage{})

func imagesByTools(ctx context.Context, q dbtx, toolIDs []int64) (map[int64][]*types.ToolImage, error) {
	out := make(map[int64][]*types.ToolImage, len(toolIDs))
	if len(toolIDs) == 0 {
		return out, nil
	}

	query, args, err := psql().
		Select(toolImageColumns...).
		From(toolImageTableName).
		Where(sq.Eq{"tool_id": toolIDs}).
		OrderBy("image_type ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tool images query: %w", err)
	}

	var images []*types.ToolImage
	err = pgxscan.Select(ctx, q, &images, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tool images: %w", err)
	}

	for _, image := range images {
		out[image.ToolID] = append(out[image.ToolID], image)
	}

	return out, nil
}

// insertImages writes image rows in one statement and fills in their ids.
func insertImages(ctx context.Context, q dbtx, images []*types.ToolImage) error {
	if len(images) == 0 {
		return nil
	}

	now := time.Now()
	columns := utils.StructTagValues(types.ToolImage{}, "id")

	builder := psql().Insert(toolImageTableName).Columns(columns...).Suffix("RETURNING id")
	for _, image := range images {
		image.CreatedAt = now
		builder = builder.Values(
			image.ToolID,
			image.FileName,
			image.FilePath,
			image.PublicURL,
			image.FileSize,
			image.FileType,
			image.ImageType,
			image.CreatedAt,
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert tool images query: %w", err)
	}

	var ids []int64
	if err := pgxscan.Select(ctx, q, &ids, query, args...); err != nil {
		return fmt.Errorf("failed to insert tool images: %w", err)
	}

	for i, id := range ids {
		if i < len(images) {
			images[i].ID = id
		}
	}

	return nil
}
