package server

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"logbook/pkg/types"
)

const (
	multipartMemory = 32 << 20
	maxRequestBytes = 128 << 20
	maxBodyBytes    = 1 << 20
)

func (s *Service) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// readFiles buffers the files sent under field. Each read stops one byte
// past the upload limit so oversized files still fail validation without
// being held in full.
func (s *Service) readFiles(r *http.Request, field string) ([]*types.FileUpload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	headers := r.MultipartForm.File[field]
	files := make([]*types.FileUpload, 0, len(headers))

	for _, header := range headers {
		file, err := s.readFile(header)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	return files, nil
}

func (s *Service) readFile(header *multipart.FileHeader) (*types.FileUpload, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", errBadRequest, header.Filename, err)
	}
	defer f.Close()

	limit := s.config.MaxUploadBytes
	if limit <= 0 {
		limit = maxRequestBytes
	}

	body, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", errBadRequest, header.Filename, err)
	}

	return &types.FileUpload{
		Name:        filepath.Base(header.Filename),
		ContentType: contentType(header, body),
		Size:        header.Size,
		Body:        body,
	}, nil
}

func contentType(header *multipart.FileHeader, body []byte) string {
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(filepath.Ext(header.Filename)); ct != "" {
		return ct
	}
	return http.DetectContentType(body)
}
