package storage

import (
	"context"
	"sync"

	"logbook/pkg/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PendingImage is a tool photo waiting to be uploaded.
type PendingImage struct {
	ToolID    int64
	ImageType types.ImageType
	File      *types.FileUpload
}

// BatchUploader uploads sets of tool photos with bounded concurrency. A
// batch either fully succeeds or leaves nothing behind in storage.
type BatchUploader struct {
	objects     Objects
	bucket      string
	concurrency int
	logger      *logrus.Logger
}

func NewBatchUploader(logger *logrus.Logger, objects Objects, bucket string, concurrency int) *BatchUploader {
	if concurrency < 1 {
		concurrency = 1
	}

	return &BatchUploader{
		objects:     objects,
		bucket:      bucket,
		concurrency: concurrency,
		logger:      logger,
	}
}

func (u *BatchUploader) Bucket() string {
	return u.bucket
}

// UploadImages stores every pending image and returns the rows to persist,
// in input order. If any upload fails the ones that succeeded are removed.
func (u *BatchUploader) UploadImages(ctx context.Context, pending []PendingImage) ([]*types.ToolImage, error) {
	out := make([]*types.ToolImage, len(pending))

	var (
		mu       sync.Mutex
		uploaded []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)

	for i, p := range pending {
		g.Go(func() error {
			key := ObjectKey(p.ToolID, string(p.ImageType), p.File.Name)

			publicURL, err := u.objects.Upload(gctx, u.bucket, key, p.File.Body, p.File.ContentType)
			if err != nil {
				return err
			}

			mu.Lock()
			uploaded = append(uploaded, key)
			mu.Unlock()

			out[i] = &types.ToolImage{
				ToolID:    p.ToolID,
				FileName:  p.File.Name,
				FilePath:  key,
				PublicURL: publicURL,
				FileSize:  int64(len(p.File.Body)),
				FileType:  p.File.ContentType,
				ImageType: p.ImageType,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		u.Discard(ctx, uploaded)
		return nil, err
	}

	return out, nil
}

// Discard removes objects that were uploaded for a write that did not
// commit. Failures are logged; the sweep command collects what is left.
func (u *BatchUploader) Discard(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}

	if err := u.objects.Delete(context.WithoutCancel(ctx), u.bucket, keys); err != nil {
		u.logger.WithError(err).WithFields(logrus.Fields{
			"bucket": u.bucket,
			"keys":   keys,
		}).Error("failed to discard uploaded objects")
	}
}

// Keys returns the storage keys of images.
func Keys(images []*types.ToolImage) []string {
	keys := make([]string, 0, len(images))
	for _, image := range images {
		keys = append(keys, image.FilePath)
	}
	return keys
}
