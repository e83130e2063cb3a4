// Package tools manages the equipment attached to events and the photos
// taken of it.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"logbook/internal/imaging"
	"logbook/internal/metrics"
	"logbook/internal/storage"
	"logbook/internal/validate"
	"logbook/pkg/types"

	"github.com/sirupsen/logrus"
)

type ToolStore interface {
	Tool(ctx context.Context, toolID int64) (*types.Tool, error)
	ToolsByEvent(ctx context.Context, eventID int64) ([]*types.Tool, error)
	NextToolID(ctx context.Context) (int64, error)
	CreateTool(ctx context.Context, tool *types.Tool, images []*types.ToolImage) error
	UpdateTool(ctx context.Context, toolID int64, patch *types.ToolPatch) (*types.Tool, error)
	DeleteTool(ctx context.Context, toolID int64) error
}

type EventReader interface {
	Event(ctx context.Context, eventID int64) (*types.Event, error)
}

type CategoryReader interface {
	AllCategories(ctx context.Context) ([]*types.ToolCategory, error)
	CategoryBySlug(ctx context.Context, slug string) (*types.ToolCategory, error)
}

type Options struct {
	MaxUploadBytes    int64
	ImageMaxDimension int
}

type Registry struct {
	logger     *logrus.Logger
	tools      ToolStore
	events     EventReader
	categories CategoryReader
	objects    storage.Objects
	images     *storage.BatchUploader
	recorder   *metrics.Recorder
	opts       Options
}

func New(
	logger *logrus.Logger,
	tools ToolStore,
	events EventReader,
	categories CategoryReader,
	objects storage.Objects,
	images *storage.BatchUploader,
	recorder *metrics.Recorder,
	opts Options,
) *Registry {
	return &Registry{
		logger:     logger,
		tools:      tools,
		events:     events,
		categories: categories,
		objects:    objects,
		images:     images,
		recorder:   recorder,
		opts:       opts,
	}
}

// AddTool registers a tool on an event that has not been completed yet,
// together with at least one photo of its initial condition.
func (r *Registry) AddTool(ctx context.Context, eventID int64, in types.AddToolInput) (*types.Tool, error) {
	if in.Images.ImageType == "" {
		in.Images.ImageType = types.ImageTypeInitial
	}

	if err := validate.AddTool(in, r.opts.MaxUploadBytes); err != nil {
		return nil, err
	}

	if err := r.requireOpenEvent(ctx, eventID); err != nil {
		return nil, err
	}

	category := strings.TrimSpace(in.Category)
	if err := r.requireCategory(ctx, category); err != nil {
		return nil, err
	}

	toolID, err := r.tools.NextToolID(ctx)
	if err != nil {
		return nil, types.WrapPersistence(err, "failed to reserve tool id")
	}

	pending := make([]storage.PendingImage, 0, in.Images.Len())
	for _, file := range in.Images.Files {
		normalized, err := imaging.Normalize(file, r.opts.ImageMaxDimension)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize image %s: %w", file.Name, err)
		}

		pending = append(pending, storage.PendingImage{
			ToolID:    toolID,
			ImageType: types.ImageTypeInitial,
			File:      normalized,
		})
	}

	images, err := r.images.UploadImages(ctx, pending)
	r.recorder.StorageOp(r.images.Bucket(), "upload", len(pending), err)
	if err != nil {
		return nil, err
	}

	tool := &types.Tool{
		ID:               toolID,
		EventID:          eventID,
		Name:             strings.TrimSpace(in.Name),
		Category:         category,
		Total:            in.Total,
		InitialCondition: strings.TrimSpace(in.InitialCondition),
	}

	if err := r.tools.CreateTool(ctx, tool, images); err != nil {
		r.images.Discard(ctx, storage.Keys(images))
		return nil, types.WrapPersistence(err, "failed to create tool")
	}

	r.logger.WithFields(logrus.Fields{
		"event_id": eventID,
		"tool_id":  tool.ID,
		"images":   len(images),
	}).Info("tool added")

	return tool, nil
}

// UpdateTool applies a partial update. A final condition can only be
// corrected once the event has been closed; before that it is set by
// ending the event.
func (r *Registry) UpdateTool(ctx context.Context, toolID int64, patch *types.ToolPatch) (*types.Tool, error) {
	if err := validate.ToolPatch(patch); err != nil {
		return nil, err
	}

	tool, err := r.tools.Tool(ctx, toolID)
	if err != nil {
		return nil, types.WrapPersistence(err, "failed to fetch tool")
	}

	if patch.FinalCondition != nil {
		event, err := r.events.Event(ctx, tool.EventID)
		if err != nil {
			return nil, types.WrapPersistence(err, "failed to fetch event")
		}

		if event.Status != types.EventStatusCompleted {
			errs := types.NewValidationError()
			errs.Add("finalCondition", "Final condition is recorded when the event ends.")
			return nil, errs
		}
	}

	if patch.Category != nil {
		if err := r.requireCategory(ctx, strings.TrimSpace(*patch.Category)); err != nil {
			return nil, err
		}
	}

	updated, err := r.tools.UpdateTool(ctx, toolID, patch)
	if err != nil {
		return nil, types.WrapPersistence(err, "failed to update tool")
	}
	updated.Images = tool.Images

	return updated, nil
}

// DeleteTool removes a tool of an event that is not completed. Its photo
// rows go with it; the stored photos are removed afterwards.
func (r *Registry) DeleteTool(ctx context.Context, toolID int64) error {
	tool, err := r.tools.Tool(ctx, toolID)
	if err != nil {
		return types.WrapPersistence(err, "failed to fetch tool")
	}

	if err := r.requireOpenEvent(ctx, tool.EventID); err != nil {
		return err
	}

	if err := r.tools.DeleteTool(ctx, toolID); err != nil {
		return types.WrapPersistence(err, "failed to delete tool")
	}

	keys := storage.Keys(tool.Images)
	if len(keys) > 0 {
		bucket := r.images.Bucket()
		err := r.objects.Delete(context.WithoutCancel(ctx), bucket, keys)
		r.recorder.StorageOp(bucket, "delete", len(keys), err)
		if err != nil {
			r.recorder.Orphaned(bucket, len(keys))
			r.logger.WithError(err).WithFields(logrus.Fields{
				"tool_id": toolID,
				"keys":    keys,
			}).Warn("tool images orphaned after delete, left for sweep")
		}
	}

	return nil
}

func (r *Registry) Tool(ctx context.Context, toolID int64) (*types.Tool, error) {
	tool, err := r.tools.Tool(ctx, toolID)
	if err != nil {
		return nil, types.WrapPersistence(err, "failed to fetch tool")
	}
	return tool, nil
}

func (r *Registry) ToolsByEvent(ctx context.Context, eventID int64) ([]*types.Tool, error) {
	if _, err := r.events.Event(ctx, eventID); err != nil {
		return nil, types.WrapPersistence(err, "failed to fetch event")
	}

	tools, err := r.tools.ToolsByEvent(ctx, eventID)
	if err != nil {
		return nil, types.WrapPersistence(err, "failed to fetch tools")
	}
	return tools, nil
}

func (r *Registry) Categories(ctx context.Context) ([]*types.ToolCategory, error) {
	categories, err := r.categories.AllCategories(ctx)
	if err != nil {
		return nil, types.WrapPersistence(err, "failed to fetch categories")
	}
	return categories, nil
}

func (r *Registry) requireOpenEvent(ctx context.Context, eventID int64) error {
	event, err := r.events.Event(ctx, eventID)
	if err != nil {
		return types.WrapPersistence(err, "failed to fetch event")
	}

	if event.Status == types.EventStatusCompleted {
		return fmt.Errorf("event %d: %w", eventID, types.ErrEventCompleted)
	}

	return nil
}

func (r *Registry) requireCategory(ctx context.Context, slug string) error {
	category, err := r.categories.CategoryBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, types.ErrCategoryNotFound) {
			errs := types.NewValidationError()
			errs.Add("category", fmt.Sprintf("Unknown category %q.", slug))
			return errs
		}
		return types.WrapPersistence(err, "failed to fetch category")
	}

	if !category.IsActive {
		errs := types.NewValidationError()
		errs.Add("category", fmt.Sprintf("Category %q is no longer in use.", slug))
		return errs
	}

	return nil
}
