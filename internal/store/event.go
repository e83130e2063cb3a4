package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"logbook/internal/utils"
	"logbook/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	eventTableName  = "logbook.events"
	eventIDSequence = "logbook.events_id_seq"
)

var eventColumns = utils.StructTagValues(types.Event{})

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Event(ctx context.Context, eventID int64) (*types.Event, error) {
	return r.eventWhere(ctx, sq.Eq{"id": eventID})
}

func (r *EventRepository) EventByPublicID(ctx context.Context, publicID int64) (*types.Event, error) {
	return r.eventWhere(ctx, sq.Eq{"public_id": publicID})
}

func (r *EventRepository) eventWhere(ctx context.Context, where sq.Eq) (*types.Event, error) {
	query, args, err := psql().Select(eventColumns...).From(eventTableName).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate event query: %w", err)
	}

	var event = new(types.Event)
	err = pgxscan.Get(ctx, r.pool, event, query, args...)
	if err != nil && !pgxscan.NotFound(err) {
		return nil, fmt.Errorf("failed to fetch event: %w", err)
	}

	if err != nil {
		return nil, types.ErrEventNotFound
	}

	return event, nil
}

// Events lists every event, newest first.
func (r *EventRepository) Events(ctx context.Context) ([]*types.Event, error) {
	query, args, err := psql().Select(eventColumns...).From(eventTableName).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate events query: %w", err)
	}

	var events = make([]*types.Event, 0)
	err = pgxscan.Select(ctx, r.pool, &events, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	return events, nil
}

// NextEventID reserves an id so object keys can be namespaced before the
// row exists.
func (r *EventRepository) NextEventID(ctx context.Context) (int64, error) {
	return nextval(ctx, r.pool, eventIDSequence)
}

func (r *EventRepository) PublicIDExists(ctx context.Context, publicID int64) (bool, error) {
	query, args, err := psql().Select("1").From(eventTableName).
		Where(sq.Eq{"public_id": publicID}).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to generate public id query: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check public id %d: %w", publicID, err)
	}

	return exists, nil
}

// CreateEvent inserts the event in not_started state together with its
// document.
func (r *EventRepository) CreateEvent(ctx context.Context, event *types.Event, doc *types.EventDocument) error {

	now := time.Now()
	event.Status = types.EventStatusNotStarted
	event.StartDate = nil
	event.EndDate = nil
	event.CreatedAt = now
	event.UpdatedAt = now

	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		exclude := []string{}
		if event.ID == 0 {
			exclude = append(exclude, "id")
		}

		query, args, err := psql().Insert(eventTableName).
			SetMap(utils.StructToMap(event, exclude...)).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to generate insert event query: %w", err)
		}

		if err := tx.QueryRow(ctx, query, args...).Scan(&event.ID); err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}

		if doc == nil {
			return nil
		}

		doc.EventID = event.ID
		if err := insertDocument(ctx, tx, doc); err != nil {
			return err
		}

		event.Document = doc
		return nil
	})
}

func (r *EventRepository) DocumentByEvent(ctx context.Context, eventID int64) (*types.EventDocument, error) {
	return documentByEvent(ctx, r.pool, eventID)
}

// UpdateEvent renames the event and/or swaps its document row and
// assignment letter reference in one transaction. It returns the previous
// document, if one was replaced, so the caller can remove its stored object.
func (r *EventRepository) UpdateEvent(ctx context.Context, eventID int64, name *string, doc *types.EventDocument) (*types.EventDocument, error) {
	var previous *types.EventDocument

	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		builder := psql().Update(eventTableName).
			Set("updated_at", time.Now()).
			Where(sq.Eq{"id": eventID})

		if name != nil {
			builder = builder.Set("name", *name)
		}
		if doc != nil {
			builder = builder.Set("assignment_letter", doc.FileName)
		}

		query, args, err := builder.ToSql()
		if err != nil {
			return fmt.Errorf("failed to generate update event query for event %d: %w", eventID, err)
		}

		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update event %d: %w", eventID, err)
		}
		if tag.RowsAffected() == 0 {
			return types.ErrEventNotFound
		}

		if doc == nil {
			return nil
		}

		old, err := documentByEvent(ctx, tx, eventID)
		if err != nil && !errors.Is(err, types.ErrDocumentNotFound) {
			return err
		}
		previous = old

		if err := deleteDocumentsByEvent(ctx, tx, eventID); err != nil {
			return err
		}

		doc.EventID = eventID
		return insertDocument(ctx, tx, doc)
	})
	if err != nil {
		return nil, err
	}

	return previous, nil
}

// StartEvent moves a not_started event to in_progress. The status guard
// makes a concurrent second start a no-op reported as ErrInvalidTransition.
func (r *EventRepository) StartEvent(ctx context.Context, eventID int64, at time.Time) error {
	query, args, err := psql().Update(eventTableName).
		Set("status", types.EventStatusInProgress).
		Set("start_date", at).
		Set("updated_at", at).
		Where(sq.Eq{"id": eventID, "status": types.EventStatusNotStarted}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate start event query for event %d: %w", eventID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to start event %d: %w", eventID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %d is not %s: %w", eventID, types.EventStatusNotStarted, types.ErrInvalidTransition)
	}

	return nil
}

// CompleteEvent records every tool's final condition, links the already
// uploaded final images and closes the event, all in one transaction.
// The event row stays locked for the whole transaction, and the updates must
// cover exactly the tools the event has at that point; a tool added after
// End read the list fails the call with ErrInvalidTransition.
func (r *EventRepository) CompleteEvent(ctx context.Context, eventID int64, at time.Time, updates []types.FinalConditionUpdate, images []*types.ToolImage) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		status, err := lockEvent(ctx, tx, eventID, "FOR UPDATE")
		if err != nil {
			return err
		}

		if status != types.EventStatusInProgress {
			return fmt.Errorf("event %d is not %s: %w", eventID, types.EventStatusInProgress, types.ErrInvalidTransition)
		}

		toolIDs, err := toolIDsByEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}

		if !coversTools(toolIDs, updates) {
			return fmt.Errorf("tools of event %d changed while it was being closed: %w", eventID, types.ErrInvalidTransition)
		}

		query, args, err := psql().Update(eventTableName).
			Set("status", types.EventStatusCompleted).
			Set("end_date", at).
			Set("updated_at", at).
			Where(sq.Eq{"id": eventID, "status": types.EventStatusInProgress}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to generate complete event query for event %d: %w", eventID, err)
		}

		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to complete event %d: %w", eventID, err)
		}

		if tag.RowsAffected() == 0 {
			return fmt.Errorf("event %d is not %s: %w", eventID, types.EventStatusInProgress, types.ErrInvalidTransition)
		}

		if err := recordFinalConditions(ctx, tx, eventID, updates); err != nil {
			return err
		}

		return insertImages(ctx, tx, images)
	})
}

// lockEvent reads the event's status and locks its row with the given
// clause until the transaction ends.
func lockEvent(ctx context.Context, tx pgx.Tx, eventID int64, clause string) (types.EventStatus, error) {
	query, args, err := psql().Select("status").From(eventTableName).
		Where(sq.Eq{"id": eventID}).
		Suffix(clause).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to generate lock event query for event %d: %w", eventID, err)
	}

	var status types.EventStatus
	if err := tx.QueryRow(ctx, query, args...).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.ErrEventNotFound
		}
		return "", fmt.Errorf("failed to lock event %d: %w", eventID, err)
	}

	return status, nil
}

func coversTools(toolIDs []int64, updates []types.FinalConditionUpdate) bool {
	if len(toolIDs) != len(updates) {
		return false
	}

	pending := make(map[int64]bool, len(updates))
	for _, update := range updates {
		pending[update.ToolID] = true
	}

	for _, id := range toolIDs {
		if !pending[id] {
			return false
		}
	}

	return len(pending) == len(toolIDs)
}

// DeleteEvent removes the event row; tools, tool images and the document
// follow by cascade.
func (r *EventRepository) DeleteEvent(ctx context.Context, eventID int64) error {

	query, args, err := psql().Delete(eventTableName).Where(sq.Eq{"id": eventID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete event query for event %d: %w", eventID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete event %d: %w", eventID, err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrEventNotFound
	}

	return nil
}

// CompletedEventsBetween returns completed events whose end date falls in
// [from, to], each with its tools attached.
func (r *EventRepository) CompletedEventsBetween(ctx context.Context, from, to time.Time) ([]*types.Event, error) {
	query, args, err := psql().Select(eventColumns...).From(eventTableName).
		Where(sq.Eq{"status": types.EventStatusCompleted}).
		Where(sq.GtOrEq{"end_date": from}).
		Where(sq.LtOrEq{"end_date": to}).
		OrderBy("end_date ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate completed events query: %w", err)
	}

	var events = make([]*types.Event, 0)
	err = pgxscan.Select(ctx, r.pool, &events, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch completed events: %w", err)
	}

	eventIDs := make([]int64, 0, len(events))
	for _, event := range events {
		eventIDs = append(eventIDs, event.ID)
	}

	tools, err := toolsByEvents(ctx, r.pool, eventIDs)
	if err != nil {
		return nil, err
	}

	for _, event := range events {
		event.Tools = tools[event.ID]
	}

	return events, nil
}

func (r *EventRepository) ExistingEventIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return existingIDs(ctx, r.pool, eventTableName, ids)
}
