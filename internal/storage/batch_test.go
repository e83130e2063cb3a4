package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"logbook/pkg/types"

	"github.com/sirupsen/logrus"
)

type fakeObjects struct {
	mu      sync.Mutex
	stored  map[string][]byte
	failFor string // uploads whose file name contains this fail
}

func (f *fakeObjects) Upload(_ context.Context, bucket, key string, body []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFor != "" && strings.Contains(key, f.failFor) {
		return "", types.ErrStorage
	}
	f.stored[key] = body
	return "https://files.test/" + bucket + "/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, _ string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, k := range keys {
		delete(f.stored, k)
	}
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func pendingSet(toolID int64, names ...string) []PendingImage {
	out := make([]PendingImage, 0, len(names))
	for _, name := range names {
		out = append(out, PendingImage{
			ToolID:    toolID,
			ImageType: types.ImageTypeFinal,
			File:      &types.FileUpload{Name: name, ContentType: "image/png", Size: 3, Body: []byte("png")},
		})
	}
	return out
}

func TestUploadImagesKeepsOrder(t *testing.T) {
	objects := &fakeObjects{stored: map[string][]byte{}}
	uploader := NewBatchUploader(quietLogger(), objects, "tool-images", 2)

	images, err := uploader.UploadImages(context.Background(), pendingSet(7, "a.png", "b.png", "c.png"))
	if err != nil {
		t.Fatalf("UploadImages: %v", err)
	}

	if len(images) != 3 {
		t.Fatalf("expected 3 images, got %d", len(images))
	}
	for i, want := range []string{"a.png", "b.png", "c.png"} {
		img := images[i]
		if img.FileName != want {
			t.Errorf("image %d: got %s, want %s", i, img.FileName, want)
		}
		if !strings.HasPrefix(img.FilePath, "7/final/") {
			t.Errorf("image %d: unexpected key %s", i, img.FilePath)
		}
		if img.ToolID != 7 || img.ImageType != types.ImageTypeFinal || img.FileSize != 3 {
			t.Errorf("image %d: unexpected row %+v", i, img)
		}
	}
	if len(objects.stored) != 3 {
		t.Errorf("expected 3 stored objects, got %d", len(objects.stored))
	}
}

func TestUploadImagesDiscardsOnFailure(t *testing.T) {
	objects := &fakeObjects{stored: map[string][]byte{}, failFor: "9/"}
	uploader := NewBatchUploader(quietLogger(), objects, "tool-images", 1)

	pending := append(pendingSet(8, "a.png", "b.png"), pendingSet(9, "c.png")...)

	_, err := uploader.UploadImages(context.Background(), pending)
	if !errors.Is(err, types.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if len(objects.stored) != 0 {
		t.Errorf("expected successful uploads to be discarded, %d remain", len(objects.stored))
	}
}

func TestKeys(t *testing.T) {
	keys := Keys([]*types.ToolImage{{FilePath: "1/a"}, {FilePath: "2/b"}})
	if len(keys) != 2 || keys[0] != "1/a" || keys[1] != "2/b" {
		t.Errorf("unexpected keys %v", keys)
	}
}
