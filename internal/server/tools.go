package server

import (
	"fmt"
	"net/http"

	"logbook/pkg/types"
)

func (s *Service) handleGetCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.tools.Categories(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, categories)
}

func (s *Service) handleGetEventTools(w http.ResponseWriter, r *http.Request) {
	event, err := s.eventFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tools, err := s.tools.ToolsByEvent(r.Context(), event.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if tools == nil {
		tools = []*types.Tool{}
	}
	s.writeJSON(w, http.StatusOK, tools)
}

func (s *Service) handlePostTool(w http.ResponseWriter, r *http.Request) {
	event, err := s.eventFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}

	var input types.AddToolInput
	if err := decoder.Decode(&input, r.MultipartForm.Value); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	files, err := s.readFiles(r, "images")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	input.Images = types.ImageSetUpload{Files: files, ImageType: types.ImageTypeInitial}

	tool, err := s.tools.AddTool(r.Context(), event.ID, input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, tool)
}

func (s *Service) handleGetTool(w http.ResponseWriter, r *http.Request) {
	toolID, ok := pathInt(r, "toolID")
	if !ok {
		s.writeError(w, r, types.ErrToolNotFound)
		return
	}

	tool, err := s.tools.Tool(r.Context(), toolID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, tool)
}

func (s *Service) handlePatchTool(w http.ResponseWriter, r *http.Request) {
	toolID, ok := pathInt(r, "toolID")
	if !ok {
		s.writeError(w, r, types.ErrToolNotFound)
		return
	}

	var patch types.ToolPatch
	if err := s.decodeBody(w, r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}

	tool, err := s.tools.UpdateTool(r.Context(), toolID, &patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, tool)
}

func (s *Service) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	toolID, ok := pathInt(r, "toolID")
	if !ok {
		s.writeError(w, r, types.ErrToolNotFound)
		return
	}

	if err := s.tools.DeleteTool(r.Context(), toolID); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
