// Package sweep removes stored objects whose owning tool or event row no
// longer exists, such as photos left behind when a delete could not reach
// object storage.
package sweep

import (
	"context"
	"fmt"
	"time"

	"logbook/internal/metrics"
	"logbook/internal/storage"
	"logbook/pkg/types"

	"github.com/sirupsen/logrus"
)

// DefaultMinAge keeps objects of writes that may still be in flight.
const DefaultMinAge = time.Hour

type Lister interface {
	storage.Objects
	List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error)
}

// OwnerCheck returns which of ids still exist.
type OwnerCheck func(ctx context.Context, ids []int64) (map[int64]bool, error)

// Target is a bucket whose keys start with the id of their owning row.
type Target struct {
	Bucket string
	Exists OwnerCheck
}

type Options struct {
	DryRun bool
	MinAge time.Duration
}

type Result struct {
	Bucket   string   `json:"bucket"`
	Scanned  int      `json:"scanned"`
	Skipped  int      `json:"skipped"`
	Orphaned []string `json:"orphaned"`
	Deleted  int      `json:"deleted"`
}

type Sweeper struct {
	logger   *logrus.Logger
	objects  Lister
	recorder *metrics.Recorder
	opts     Options
	now      func() time.Time
}

func New(logger *logrus.Logger, objects Lister, recorder *metrics.Recorder, opts Options) *Sweeper {
	if opts.MinAge <= 0 {
		opts.MinAge = DefaultMinAge
	}

	return &Sweeper{
		logger:   logger,
		objects:  objects,
		recorder: recorder,
		opts:     opts,
		now:      time.Now,
	}
}

// Run sweeps every target in turn and stops at the first failure.
func (s *Sweeper) Run(ctx context.Context, targets ...Target) ([]*Result, error) {
	results := make([]*Result, 0, len(targets))

	for _, target := range targets {
		result, err := s.sweep(ctx, target)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	return results, nil
}

func (s *Sweeper) sweep(ctx context.Context, target Target) (*Result, error) {
	result := &Result{Bucket: target.Bucket, Orphaned: []string{}}

	objects, err := s.objects.List(ctx, target.Bucket, "")
	if err != nil {
		return nil, err
	}
	result.Scanned = len(objects)

	cutoff := s.now().Add(-s.opts.MinAge)
	owners := make(map[int64][]string)

	for _, object := range objects {
		id, ok := storage.EntityID(object.Key)
		if !ok {
			s.logger.WithField("key", object.Key).Warn("skipping object with unrecognised key")
			result.Skipped++
			continue
		}

		if object.LastModified.After(cutoff) {
			result.Skipped++
			continue
		}

		owners[id] = append(owners[id], object.Key)
	}

	if len(owners) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(owners))
	for id := range owners {
		ids = append(ids, id)
	}

	existing, err := target.Exists(ctx, ids)
	if err != nil {
		return nil, types.WrapPersistence(err, fmt.Sprintf("failed to check owners of %s", target.Bucket))
	}

	for id, keys := range owners {
		if !existing[id] {
			result.Orphaned = append(result.Orphaned, keys...)
		}
	}

	entry := s.logger.WithFields(logrus.Fields{
		"bucket":   target.Bucket,
		"scanned":  result.Scanned,
		"orphaned": len(result.Orphaned),
		"dry_run":  s.opts.DryRun,
	})

	if s.opts.DryRun || len(result.Orphaned) == 0 {
		entry.Info("sweep finished")
		return result, nil
	}

	err = s.objects.Delete(ctx, target.Bucket, result.Orphaned)
	s.recorder.StorageOp(target.Bucket, "sweep", len(result.Orphaned), err)
	if err != nil {
		return nil, err
	}
	result.Deleted = len(result.Orphaned)

	entry.Info("sweep finished")
	return result, nil
}
