package server

import (
	"fmt"
	"net/http"

	"logbook/pkg/types"
)

func (s *Service) eventFromPath(r *http.Request) (*types.Event, error) {
	publicID, ok := pathInt(r, "publicID")
	if !ok {
		return nil, types.ErrEventNotFound
	}

	return s.events.EventByPublicID(r.Context(), publicID)
}

func (s *Service) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.Events(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, events)
}

func (s *Service) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}

	var input types.CreateEventInput
	if err := decoder.Decode(&input, r.MultipartForm.Value); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	files, err := s.readFiles(r, "document")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(files) > 0 {
		input.Document = types.DocumentUpload{File: files[0], DocumentType: types.DocTypeAssignmentLetter}
	}

	event, err := s.events.Create(r.Context(), userIDFrom(r.Context()), input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, event)
}

func (s *Service) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.eventFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, event)
}

func (s *Service) handlePatchEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.eventFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}

	var input types.UpdateEventInput
	if err := decoder.Decode(&input, r.MultipartForm.Value); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	files, err := s.readFiles(r, "document")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(files) > 0 {
		input.Document = &types.DocumentUpload{File: files[0], DocumentType: types.DocTypeAssignmentLetter}
	}

	updated, err := s.events.Update(r.Context(), event.ID, input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.eventFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.events.Delete(r.Context(), event.ID); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handlePostStartEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.eventFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.events.Start(r.Context(), event.ID); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.respondWithEvent(w, r, event.ID)
}

// handlePostEndEvent takes a multipart form with one toolConditions[i]
// group per tool: toolId, sameAsInitial, finalCondition, notes and any
// number of toolConditions[i].finalImages files.
func (s *Service) handlePostEndEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.eventFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}

	var input types.EndEventInput
	if err := decoder.Decode(&input, r.MultipartForm.Value); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	for i := range input.ToolConditions {
		files, err := s.readFiles(r, fmt.Sprintf("toolConditions[%d].finalImages", i))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		input.ToolConditions[i].FinalImages = types.ImageSetUpload{Files: files, ImageType: types.ImageTypeFinal}
	}

	if err := s.events.End(r.Context(), event.ID, input.ToolConditions); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.respondWithEvent(w, r, event.ID)
}

func (s *Service) respondWithEvent(w http.ResponseWriter, r *http.Request, eventID int64) {
	event, err := s.events.Event(r.Context(), eventID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, event)
}
