// Package testutil holds in-memory stand-ins for the Postgres repositories
// and object storage, shared by the service and HTTP tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"logbook/pkg/types"

	"github.com/sirupsen/logrus"
)

// QuietLogger returns a logger that writes nowhere.
func QuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// MemStore mirrors the repository semantics of internal/store, including
// the status guards, cascades and single-transaction writes. Set one of
// the *Err fields to make the matching write fail without side effects.
type MemStore struct {
	mu sync.Mutex

	events     map[int64]*types.Event
	tools      map[int64]*types.Tool
	images     map[int64][]*types.ToolImage
	documents  map[int64]*types.EventDocument
	categories map[string]*types.ToolCategory

	nextEventID int64
	nextToolID  int64
	nextRowID   int64

	CreateEventErr   error
	CompleteEventErr error
	CreateToolErr    error
	DeleteEventErr   error
}

func NewMemStore() *MemStore {
	s := &MemStore{
		events:     map[int64]*types.Event{},
		tools:      map[int64]*types.Tool{},
		images:     map[int64][]*types.ToolImage{},
		documents:  map[int64]*types.EventDocument{},
		categories: map[string]*types.ToolCategory{},
	}

	for i, slug := range []string{"audio", "video", "jaringan", "utility"} {
		s.categories[slug] = &types.ToolCategory{Slug: slug, Label: strings.ToUpper(slug[:1]) + slug[1:], DisplayOrder: i + 1, IsActive: true}
	}

	return s
}

func (s *MemStore) SetCategory(c *types.ToolCategory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.categories[c.Slug] = &cp
}

// PutEvent stores an event as is, bypassing the create rules. Tests use it
// to set up events in any status.
func (s *MemStore) PutEvent(event *types.Event) *types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == 0 {
		s.nextEventID++
		event.ID = s.nextEventID
	}
	if event.PublicID == 0 {
		event.PublicID = 10000000 + event.ID
	}
	cp := *event
	s.events[event.ID] = &cp
	return event
}

// PutTool stores a tool and its images as is.
func (s *MemStore) PutTool(tool *types.Tool) *types.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tool.ID == 0 {
		s.nextToolID++
		tool.ID = s.nextToolID
	}
	cp := *tool
	cp.Images = nil
	s.tools[tool.ID] = &cp

	for _, image := range tool.Images {
		image.ToolID = tool.ID
		s.insertImageLocked(image)
	}
	return tool
}

func (s *MemStore) Counts() (events, tools, images, documents int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, set := range s.images {
		images += len(set)
	}
	return len(s.events), len(s.tools), images, len(s.documents)
}

// events

func (s *MemStore) Event(_ context.Context, eventID int64) (*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, types.ErrEventNotFound
	}
	cp := *event
	return &cp, nil
}

func (s *MemStore) EventByPublicID(_ context.Context, publicID int64) (*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range s.events {
		if event.PublicID == publicID {
			cp := *event
			return &cp, nil
		}
	}
	return nil, types.ErrEventNotFound
}

func (s *MemStore) Events(_ context.Context) ([]*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.Event, 0, len(s.events))
	for _, event := range s.events {
		cp := *event
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemStore) NextEventID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	return s.nextEventID, nil
}

func (s *MemStore) PublicIDExists(_ context.Context, publicID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range s.events {
		if event.PublicID == publicID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) CreateEvent(_ context.Context, event *types.Event, doc *types.EventDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateEventErr != nil {
		return s.CreateEventErr
	}

	for _, existing := range s.events {
		if existing.PublicID == event.PublicID {
			return fmt.Errorf("duplicate public_id %d", event.PublicID)
		}
	}

	if event.ID == 0 {
		s.nextEventID++
		event.ID = s.nextEventID
	}

	now := time.Now()
	event.Status = types.EventStatusNotStarted
	event.StartDate = nil
	event.EndDate = nil
	event.CreatedAt = now
	event.UpdatedAt = now

	cp := *event
	cp.Tools, cp.Document = nil, nil
	s.events[event.ID] = &cp

	if doc != nil {
		doc.EventID = event.ID
		s.nextRowID++
		doc.ID = s.nextRowID
		doc.CreatedAt = now
		docCopy := *doc
		s.documents[event.ID] = &docCopy
		event.Document = doc
	}

	return nil
}

func (s *MemStore) DocumentByEvent(_ context.Context, eventID int64) (*types.EventDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[eventID]
	if !ok {
		return nil, types.ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *MemStore) UpdateEvent(_ context.Context, eventID int64, name *string, doc *types.EventDocument) (*types.EventDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, types.ErrEventNotFound
	}

	if name != nil {
		event.Name = *name
	}
	event.UpdatedAt = time.Now()

	if doc == nil {
		return nil, nil
	}

	previous := s.documents[eventID]

	doc.EventID = eventID
	s.nextRowID++
	doc.ID = s.nextRowID
	cp := *doc
	s.documents[eventID] = &cp
	event.AssignmentLetter = doc.FileName

	return previous, nil
}

func (s *MemStore) StartEvent(_ context.Context, eventID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok || event.Status != types.EventStatusNotStarted {
		return fmt.Errorf("event %d is not %s: %w", eventID, types.EventStatusNotStarted, types.ErrInvalidTransition)
	}

	event.Status = types.EventStatusInProgress
	event.StartDate = &at
	event.UpdatedAt = at
	return nil
}

func (s *MemStore) CompleteEvent(_ context.Context, eventID int64, at time.Time, updates []types.FinalConditionUpdate, images []*types.ToolImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CompleteEventErr != nil {
		return s.CompleteEventErr
	}

	event, ok := s.events[eventID]
	if !ok || event.Status != types.EventStatusInProgress {
		return fmt.Errorf("event %d is not %s: %w", eventID, types.EventStatusInProgress, types.ErrInvalidTransition)
	}

	covered := make(map[int64]bool, len(updates))
	for _, update := range updates {
		tool, ok := s.tools[update.ToolID]
		if !ok || tool.EventID != eventID {
			return fmt.Errorf("tool %d of event %d: %w", update.ToolID, eventID, types.ErrToolNotFound)
		}
		covered[update.ToolID] = true
	}
	for id, tool := range s.tools {
		if tool.EventID == eventID && !covered[id] {
			return fmt.Errorf("tools of event %d changed while it was being closed: %w", eventID, types.ErrInvalidTransition)
		}
	}

	for _, update := range updates {
		tool := s.tools[update.ToolID]
		condition := update.FinalCondition
		tool.FinalCondition = &condition
		tool.Notes = update.Notes
		tool.UpdatedAt = at
	}

	for _, image := range images {
		s.insertImageLocked(image)
	}

	event.Status = types.EventStatusCompleted
	event.EndDate = &at
	event.UpdatedAt = at
	return nil
}

func (s *MemStore) DeleteEvent(_ context.Context, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.DeleteEventErr != nil {
		return s.DeleteEventErr
	}

	if _, ok := s.events[eventID]; !ok {
		return types.ErrEventNotFound
	}

	delete(s.events, eventID)
	delete(s.documents, eventID)
	for id, tool := range s.tools {
		if tool.EventID == eventID {
			delete(s.tools, id)
			delete(s.images, id)
		}
	}
	return nil
}

func (s *MemStore) CompletedEventsBetween(_ context.Context, from, to time.Time) ([]*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Event
	for _, event := range s.events {
		if event.Status != types.EventStatusCompleted || event.EndDate == nil {
			continue
		}
		if event.EndDate.Before(from) || event.EndDate.After(to) {
			continue
		}
		cp := *event
		cp.Tools = s.toolsLocked(event.ID)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(*out[j].EndDate) })
	return out, nil
}

func (s *MemStore) ExistingEventIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[int64]bool{}
	for _, id := range ids {
		if _, ok := s.events[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// tools

func (s *MemStore) Tool(_ context.Context, toolID int64) (*types.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tool, ok := s.tools[toolID]
	if !ok {
		return nil, types.ErrToolNotFound
	}
	return s.copyToolLocked(tool), nil
}

func (s *MemStore) ToolsByEvent(_ context.Context, eventID int64) ([]*types.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolsLocked(eventID), nil
}

func (s *MemStore) NextToolID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextToolID++
	return s.nextToolID, nil
}

func (s *MemStore) CreateTool(_ context.Context, tool *types.Tool, images []*types.ToolImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateToolErr != nil {
		return s.CreateToolErr
	}
	event, ok := s.events[tool.EventID]
	if !ok {
		return types.ErrEventNotFound
	}
	if event.Status == types.EventStatusCompleted {
		return types.ErrEventCompleted
	}

	if tool.ID == 0 {
		s.nextToolID++
		tool.ID = s.nextToolID
	}
	now := time.Now()
	tool.CreatedAt = now
	tool.UpdatedAt = now

	cp := *tool
	cp.Images = nil
	s.tools[tool.ID] = &cp

	for _, image := range images {
		image.ToolID = tool.ID
		s.insertImageLocked(image)
	}
	tool.Images = images
	return nil
}

func (s *MemStore) UpdateTool(_ context.Context, toolID int64, patch *types.ToolPatch) (*types.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tool, ok := s.tools[toolID]
	if !ok {
		return nil, types.ErrToolNotFound
	}

	if patch.Name != nil {
		tool.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Category != nil {
		tool.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Total != nil {
		tool.Total = *patch.Total
	}
	if patch.InitialCondition != nil {
		tool.InitialCondition = strings.TrimSpace(*patch.InitialCondition)
	}
	if patch.FinalCondition != nil {
		v := strings.TrimSpace(*patch.FinalCondition)
		tool.FinalCondition = &v
	}
	if patch.Notes != nil {
		if strings.TrimSpace(*patch.Notes) == "" {
			tool.Notes = nil
		} else {
			v := *patch.Notes
			tool.Notes = &v
		}
	}
	tool.UpdatedAt = time.Now()

	cp := *tool
	return &cp, nil
}

func (s *MemStore) DeleteTool(_ context.Context, toolID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tools[toolID]; !ok {
		return types.ErrToolNotFound
	}
	delete(s.tools, toolID)
	delete(s.images, toolID)
	return nil
}

func (s *MemStore) ExistingToolIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[int64]bool{}
	for _, id := range ids {
		if _, ok := s.tools[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// categories

func (s *MemStore) AllCategories(_ context.Context) ([]*types.ToolCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.ToolCategory
	for _, c := range s.categories {
		if c.IsActive {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

func (s *MemStore) CategoryBySlug(_ context.Context, slug string) (*types.ToolCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[slug]
	if !ok {
		return nil, types.ErrCategoryNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemStore) toolsLocked(eventID int64) []*types.Tool {
	var out []*types.Tool
	for _, tool := range s.tools {
		if tool.EventID == eventID {
			out = append(out, s.copyToolLocked(tool))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemStore) copyToolLocked(tool *types.Tool) *types.Tool {
	cp := *tool
	cp.Images = nil
	for _, image := range s.images[tool.ID] {
		img := *image
		cp.Images = append(cp.Images, &img)
	}
	return &cp
}

func (s *MemStore) insertImageLocked(image *types.ToolImage) {
	s.nextRowID++
	image.ID = s.nextRowID
	if image.CreatedAt.IsZero() {
		image.CreatedAt = time.Now()
	}
	cp := *image
	s.images[image.ToolID] = append(s.images[image.ToolID], &cp)
}
