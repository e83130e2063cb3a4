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

const documentTableName = "logbook.event_documents"

var documentTableColumns = utils.StructTagValues(types.EventDocument{})

func documentByEvent(ctx context.Context, q dbtx, eventID int64) (*types.EventDocument, error) {
	query, args, err := psql().
		Select(documentTableColumns...).
		From(documentTableName).
		Where(sq.Eq{"event_id": eventID}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate document query: %w", err)
	}

	var doc = new(types.EventDocument)
	err = pgxscan.Get(ctx, q, doc, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}

	return doc, nil
}

func insertDocument(ctx context.Context, q dbtx, doc *types.EventDocument) error {
	doc.CreatedAt = time.Now()
	if doc.DocumentType == "" {
		doc.DocumentType = types.DocTypeAssignmentLetter
	}

	query, args, err := psql().
		Insert(documentTableName).
		SetMap(utils.StructToMap(doc, "id")).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert document query: %w", err)
	}

	if err := q.QueryRow(ctx, query, args...).Scan(&doc.ID); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

func deleteDocumentsByEvent(ctx context.Context, q dbtx, eventID int64) error {
	query, args, err := psql().
		Delete(documentTableName).
		Where(sq.Eq{"event_id": eventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete document query: %w", err)
	}

	_, err = q.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to delete document")
}
