// Package events owns the event lifecycle: creation with an assignment
// letter, the not_started -> in_progress -> completed state machine, the
// close-out reconciliation of every tool's final condition and deletion.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"logbook/internal/imaging"
	"logbook/internal/metrics"
	"logbook/internal/storage"
	"logbook/internal/utils"
	"logbook/internal/validate"
	"logbook/pkg/types"

	"github.com/sirupsen/logrus"
)

type EventStore interface {
	Event(ctx context.Context, eventID int64) (*types.Event, error)
	EventByPublicID(ctx context.Context, publicID int64) (*types.Event, error)
	Events(ctx context.Context) ([]*types.Event, error)
	NextEventID(ctx context.Context) (int64, error)
	CreateEvent(ctx context.Context, event *types.Event, doc *types.EventDocument) error
	UpdateEvent(ctx context.Context, eventID int64, name *string, doc *types.EventDocument) (*types.EventDocument, error)
	DocumentByEvent(ctx context.Context, eventID int64) (*types.EventDocument, error)
	StartEvent(ctx context.Context, eventID int64, at time.Time) error
	CompleteEvent(ctx context.Context, eventID int64, at time.Time, updates []types.FinalConditionUpdate, images []*types.ToolImage) error
	DeleteEvent(ctx context.Context, eventID int64) error
}

type ToolReader interface {
	ToolsByEvent(ctx context.Context, eventID int64) ([]*types.Tool, error)
}

type IDAllocator interface {
	Allocate(ctx context.Context) (int64, error)
}

type Options struct {
	DocumentsBucket   string
	MaxUploadBytes    int64
	ImageMaxDimension int
}

type Manager struct {
	logger   *logrus.Logger
	events   EventStore
	tools    ToolReader
	objects  storage.Objects
	images   *storage.BatchUploader
	ids      IDAllocator
	recorder *metrics.Recorder
	opts     Options

	now func() time.Time
}

func New(
	logger *logrus.Logger,
	events EventStore,
	tools ToolReader,
	objects storage.Objects,
	images *storage.BatchUploader,
	ids IDAllocator,
	recorder *metrics.Recorder,
	opts Options,
) *Manager {
	return &Manager{
		logger:   logger,
		events:   events,
		tools:    tools,
		objects:  objects,
		images:   images,
		ids:      ids,
		recorder: recorder,
		opts:     opts,
		now:      time.Now,
	}
}

// Create validates the input, reserves the public and internal ids,
// uploads the assignment letter and inserts the event with its document.
// The uploaded letter is removed again if the insert fails.
func (m *Manager) Create(ctx context.Context, userID string, in types.CreateEventInput) (event *types.Event, err error) {
	defer func() { m.recorder.Transition("create", err) }()

	if err := validate.CreateEvent(in, m.opts.MaxUploadBytes); err != nil {
		return nil, err
	}

	publicID, err := m.ids.Allocate(ctx)
	if err != nil {
		return nil, err
	}

	eventID, err := m.events.NextEventID(ctx)
	if err != nil {
		return nil, types.WrapPersistence(err, "failed to reserve event id")
	}

	doc, err := m.uploadDocument(ctx, eventID, in.Document)
	if err != nil {
		return nil, err
	}

	event = &types.Event{
		ID:               eventID,
		PublicID:         publicID,
		Name:             strings.TrimSpace(in.Name),
		AssignmentLetter: doc.FileName,
		UserID:           userID,
	}

	if err := m.events.CreateEvent(ctx, event, doc); err != nil {
		m.discard(ctx, m.opts.DocumentsBucket, []string{doc.FilePath})
		return nil, types.WrapPersistence(err, "failed to create event")
	}

	m.logger.WithFields(logrus.Fields{
		"event_id":  event.ID,
		"public_id": event.PublicID,
	}).Info("event created")

	return event, nil
}

// Start moves a not_started event to in_progress and stamps its start date.
func (m *Manager) Start(ctx context.Context, eventID int64) (err error) {
	defer func() { m.recorder.Transition("start", err) }()

	event, err := m.events.Event(ctx, eventID)
	if err != nil {
		return types.WrapPersistence(err, "failed to fetch event")
	}

	if event.Status != types.EventStatusNotStarted {
		return fmt.Errorf("cannot start event in status %s: %w", event.Status, types.ErrInvalidTransition)
	}

	if err := m.events.StartEvent(ctx, eventID, m.now()); err != nil {
		return types.WrapPersistence(err, "failed to start event")
	}

	return nil
}

// End closes an in_progress event. Every tool of the event needs an entry
// in conditions. The whole payload is validated first, then all final
// photos are uploaded, and only then are the condition rows, image rows
// and status change written in a single transaction. Any failure after the
// uploads removes them again, leaving the event as it was.
func (m *Manager) End(ctx context.Context, eventID int64, conditions []types.ToolConditionInput) (err error) {
	defer func() { m.recorder.Transition("end", err) }()

	event, err := m.events.Event(ctx, eventID)
	if err != nil {
		return types.WrapPersistence(err, "failed to fetch event")
	}

	if event.Status != types.EventStatusInProgress {
		return fmt.Errorf("cannot end event in status %s: %w", event.Status, types.ErrInvalidTransition)
	}

	tools, err := m.tools.ToolsByEvent(ctx, eventID)
	if err != nil {
		return types.WrapPersistence(err, "failed to fetch tools")
	}

	if err := validate.EndEvent(tools, conditions, m.opts.MaxUploadBytes); err != nil {
		return err
	}

	updates, pending, err := m.reconcile(tools, conditions)
	if err != nil {
		return err
	}

	if err := validate.FinalConditionUpdates(updates); err != nil {
		return err
	}

	uploaded, err := m.images.UploadImages(ctx, pending)
	m.recorder.StorageOp(m.images.Bucket(), "upload", len(pending), err)
	if err != nil {
		return err
	}

	if err := m.events.CompleteEvent(ctx, eventID, m.now(), updates, uploaded); err != nil {
		m.images.Discard(ctx, storage.Keys(uploaded))
		return types.WrapPersistence(err, "failed to complete event")
	}

	m.logger.WithFields(logrus.Fields{
		"event_id":     eventID,
		"tools":        len(updates),
		"final_images": len(uploaded),
	}).Info("event completed")

	return nil
}

// reconcile turns validated condition entries into the rows to write and
// the photos to upload. Entries carried over from the initial condition
// never produce photos.
func (m *Manager) reconcile(tools []*types.Tool, conditions []types.ToolConditionInput) ([]types.FinalConditionUpdate, []storage.PendingImage, error) {
	byID := make(map[int64]*types.Tool, len(tools))
	for _, tool := range tools {
		byID[tool.ID] = tool
	}

	updates := make([]types.FinalConditionUpdate, 0, len(conditions))
	var pending []storage.PendingImage

	for _, c := range conditions {
		tool := byID[c.ToolID]

		update := types.FinalConditionUpdate{
			ToolID: tool.ID,
			Notes:  utils.NilIfBlank(c.Notes),
		}

		if c.SameAsInitial {
			update.FinalCondition = tool.InitialCondition
			updates = append(updates, update)
			continue
		}

		update.FinalCondition = strings.TrimSpace(c.FinalCondition)
		updates = append(updates, update)

		for _, file := range c.FinalImages.Files {
			normalized, err := imaging.Normalize(file, m.opts.ImageMaxDimension)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to normalize final image of tool %d: %w", tool.ID, err)
			}

			pending = append(pending, storage.PendingImage{
				ToolID:    tool.ID,
				ImageType: types.ImageTypeFinal,
				File:      normalized,
			})
		}
	}

	return updates, pending, nil
}

// Delete removes the event and, by cascade, its tools, images and
// document. Stored objects are removed afterwards on a best-effort basis;
// whatever cannot be removed is logged, counted and left for the sweep.
func (m *Manager) Delete(ctx context.Context, eventID int64) (err error) {
	defer func() { m.recorder.Transition("delete", err) }()

	if _, err := m.events.Event(ctx, eventID); err != nil {
		return types.WrapPersistence(err, "failed to fetch event")
	}

	tools, err := m.tools.ToolsByEvent(ctx, eventID)
	if err != nil {
		return types.WrapPersistence(err, "failed to fetch tools")
	}

	var docKeys []string
	doc, err := m.events.DocumentByEvent(ctx, eventID)
	switch {
	case err == nil:
		docKeys = append(docKeys, doc.FilePath)
	case !errors.Is(err, types.ErrDocumentNotFound):
		return types.WrapPersistence(err, "failed to fetch event document")
	}

	var imageKeys []string
	for _, tool := range tools {
		imageKeys = append(imageKeys, storage.Keys(tool.Images)...)
	}

	if err := m.events.DeleteEvent(ctx, eventID); err != nil {
		if errors.Is(err, types.ErrEventNotFound) {
			return fmt.Errorf("%w: event %d vanished during delete", types.ErrDeletion, eventID)
		}
		return types.WrapPersistence(err, "failed to delete event")
	}

	m.removeObjects(ctx, m.images.Bucket(), imageKeys)
	m.removeObjects(ctx, m.opts.DocumentsBucket, docKeys)

	m.logger.WithField("event_id", eventID).Info("event deleted")

	return nil
}

// Update renames the event and/or replaces its assignment letter. A new
// letter is uploaded before anything is written, so a failed upload leaves
// the event as it was.
func (m *Manager) Update(ctx context.Context, eventID int64, in types.UpdateEventInput) (*types.Event, error) {
	if err := validate.UpdateEvent(in, m.opts.MaxUploadBytes); err != nil {
		return nil, err
	}

	if _, err := m.events.Event(ctx, eventID); err != nil {
		return nil, types.WrapPersistence(err, "failed to fetch event")
	}

	var name *string
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		name = &trimmed
	}

	var doc *types.EventDocument
	if in.Document != nil {
		uploaded, err := m.uploadDocument(ctx, eventID, *in.Document)
		if err != nil {
			return nil, err
		}
		doc = uploaded
	}

	previous, err := m.events.UpdateEvent(ctx, eventID, name, doc)
	if err != nil {
		if doc != nil {
			m.discard(ctx, m.opts.DocumentsBucket, []string{doc.FilePath})
		}
		return nil, types.WrapPersistence(err, "failed to update event")
	}

	if doc != nil && previous != nil && previous.FilePath != doc.FilePath {
		m.removeObjects(ctx, m.opts.DocumentsBucket, []string{previous.FilePath})
	}

	return m.Event(ctx, eventID)
}

// Event returns the event with its tools, their images and its document.
func (m *Manager) Event(ctx context.Context, eventID int64) (*types.Event, error) {
	event, err := m.events.Event(ctx, eventID)
	if err != nil {
		return nil, types.WrapPersistence(err, "failed to fetch event")
	}

	return m.attach(ctx, event)
}

func (m *Manager) EventByPublicID(ctx context.Context, publicID int64) (*types.Event, error) {
	event, err := m.events.EventByPublicID(ctx, publicID)
	if err != nil {
		return nil, types.WrapPersistence(err, "failed to fetch event")
	}

	return m.attach(ctx, event)
}

func (m *Manager) Events(ctx context.Context) ([]*types.Event, error) {
	events, err := m.events.Events(ctx)
	if err != nil {
		return nil, types.WrapPersistence(err, "failed to list events")
	}

	return events, nil
}

func (m *Manager) attach(ctx context.Context, event *types.Event) (*types.Event, error) {
	tools, err := m.tools.ToolsByEvent(ctx, event.ID)
	if err != nil {
		return nil, types.WrapPersistence(err, "failed to fetch tools")
	}
	event.Tools = tools

	doc, err := m.events.DocumentByEvent(ctx, event.ID)
	switch {
	case err == nil:
		event.Document = doc
	case !errors.Is(err, types.ErrDocumentNotFound):
		return nil, types.WrapPersistence(err, "failed to fetch event document")
	}

	return event, nil
}

func (m *Manager) uploadDocument(ctx context.Context, eventID int64, upload types.DocumentUpload) (*types.EventDocument, error) {
	docType := upload.DocumentType
	if docType == "" {
		docType = types.DocTypeAssignmentLetter
	}

	file := upload.File
	contentType := validate.MediaType(file.ContentType)
	key := storage.ObjectKey(eventID, docType, file.Name)

	publicURL, err := m.objects.Upload(ctx, m.opts.DocumentsBucket, key, file.Body, contentType)
	m.recorder.StorageOp(m.opts.DocumentsBucket, "upload", 1, err)
	if err != nil {
		m.logger.WithError(err).WithField("event_id", eventID).Error("failed to upload event document")
		return nil, err
	}

	return &types.EventDocument{
		EventID:      eventID,
		FileName:     file.Name,
		FilePath:     key,
		PublicURL:    publicURL,
		FileSize:     int64(len(file.Body)),
		FileType:     contentType,
		DocumentType: docType,
	}, nil
}

// discard drops objects uploaded for a write that did not commit.
func (m *Manager) discard(ctx context.Context, bucket string, keys []string) {
	if err := m.objects.Delete(context.WithoutCancel(ctx), bucket, keys); err != nil {
		m.recorder.Orphaned(bucket, len(keys))
		m.logger.WithError(err).WithFields(logrus.Fields{
			"bucket": bucket,
			"keys":   keys,
		}).Error("failed to discard uploaded objects")
	}
}

// removeObjects deletes objects whose rows are already gone.
func (m *Manager) removeObjects(ctx context.Context, bucket string, keys []string) {
	if len(keys) == 0 {
		return
	}

	err := m.objects.Delete(context.WithoutCancel(ctx), bucket, keys)
	m.recorder.StorageOp(bucket, "delete", len(keys), err)
	if err != nil {
		m.recorder.Orphaned(bucket, len(keys))
		m.logger.WithError(err).WithFields(logrus.Fields{
			"bucket": bucket,
			"keys":   keys,
		}).Warn("objects orphaned after delete, left for sweep")
	}
}
