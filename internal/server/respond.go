package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"logbook/pkg/types"

	"github.com/sirupsen/logrus"
)

var (
	errUnauthorized = errors.New("unauthorized")
	errBadRequest   = errors.New("malformed request")
)

type errorResponse struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

// statusFor maps an error to its HTTP status and the message safe to show.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, types.ErrValidation):
		return http.StatusUnprocessableEntity, types.ErrValidation.Error()
	case errors.Is(err, types.ErrEventNotFound),
		errors.Is(err, types.ErrToolNotFound),
		errors.Is(err, types.ErrDocumentNotFound),
		errors.Is(err, types.ErrCategoryNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, types.ErrInvalidTransition),
		errors.Is(err, types.ErrEventCompleted):
		return http.StatusConflict, err.Error()
	case errors.Is(err, types.ErrStorage):
		return http.StatusBadGateway, types.ErrStorage.Error()
	case errors.Is(err, types.ErrCollisionExhausted):
		return http.StatusServiceUnavailable, types.ErrCollisionExhausted.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	requestID, _ := r.Context().Value(contextKeyRequestID).(string)

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": requestID,
		}).Error("request failed")
	}

	body := errorResponse{Error: msg, RequestID: requestID}

	var verr *types.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}

	s.writeJSON(w, status, body)
}

func fieldError(field, msg string) error {
	errs := types.NewValidationError()
	errs.Add(field, msg)
	return errs
}

// decodeBody reads a JSON body, or a urlencoded/multipart form through the
// form decoder. Non-multipart bodies are capped at maxBodyBytes.
func (s *Service) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	limit := int64(maxBodyBytes)
	if mediaType == "multipart/form-data" {
		limit = maxRequestBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return fmt.Errorf("%w: %w", errBadRequest, err)
		}
		return nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return fmt.Errorf("%w: %w", errBadRequest, err)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("%w: %w", errBadRequest, err)
		}
	}

	if err := decoder.Decode(dst, r.Form); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}

	return nil
}

func pathInt(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
