// Package worker drives REQUESTED viewpoints to READY or FAILED. It is the
// consumer half of the viewpoint lifecycle: dequeue a request, download the
// source object, build the tile pyramid, persist derived metadata, update
// the status record and acknowledge the message.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"tileview/internal/models"
	"tileview/internal/objstore"
	"tileview/internal/pool"
	"tileview/internal/queue"
	"tileview/internal/raster"
)

const (
	pollWait         = 5 * time.Second
	downloadAttempts = 3
	previewSize      = 1024
)

// StatusStore is the slice of the status store the worker needs.
type StatusStore interface {
	Get(ctx context.Context, id string) (*models.ViewpointRecord, error)
	Update(ctx context.Context, rec *models.ViewpointRecord) error
}

// Queue is the consumer side of the work queue.
type Queue interface {
	Dequeue(ctx context.Context, wait time.Duration) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
}

type Worker struct {
	queue     Queue
	store     StatusStore
	objects   objstore.Downloader
	pools     *pool.Cache
	driver    raster.Driver
	cacheRoot string
	ttl       time.Duration
	log       zerolog.Logger

	now  func() time.Time
	done chan struct{}
}

func New(q Queue, store StatusStore, objects objstore.Downloader, pools *pool.Cache,
	driver raster.Driver, cacheRoot string, ttl time.Duration, log zerolog.Logger) *Worker {
	return &Worker{
		queue:     q,
		store:     store,
		objects:   objects,
		pools:     pools,
		driver:    driver,
		cacheRoot: cacheRoot,
		ttl:       ttl,
		log:       log,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Done is closed when Run returns. Callers joining the worker should apply a
// bounded timeout and log a forced stop if the deadline passes first.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Run consumes the request queue until ctx is cancelled. The stop signal is
// honored between queue polls and between pipeline stages; an in-flight
// message is finished before exit.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := w.queue.Dequeue(ctx, pollWait)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.Warn().Err(err).Msg("dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			w.Process(ctx, msg)
		}
	}
}

// Process runs the full ingestion pipeline for one message. Delivery is
// at-least-once, so the current record status is re-validated before acting:
// a redelivered message whose record already left REQUESTED is discarded
// without side effects and the message is still acknowledged.
func (w *Worker) Process(ctx context.Context, msg queue.Message) {
	log := w.log.With().
		Str("viewpoint_id", msg.Record.ID).
		Str("correlation_id", msg.CorrelationID).
		Logger()

	rec, err := w.store.Get(ctx, msg.Record.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Warn().Msg("queued viewpoint no longer exists, dropping message")
			w.ack(ctx, msg, log)
			return
		}
		// Leave the message on the queue; the status table may come back.
		log.Error().Err(err).Msg("cannot validate viewpoint status, leaving message queued")
		return
	}
	if rec.Status != models.StatusRequested {
		log.Info().Str("status", string(rec.Status)).Msg("duplicate delivery for processed viewpoint, dropping message")
		w.ack(ctx, msg, log)
		return
	}

	w.downloadImage(ctx, rec, log)
	if rec.Status != models.StatusFailed {
		w.buildTilePyramid(rec, log)
	}
	if rec.Status != models.StatusFailed {
		w.extractMetadata(rec, log)
	}
	w.finalize(rec)

	// The message is acknowledged only after the terminal status is durably
	// persisted. A crash in between causes redelivery, handled above.
	if err := w.store.Update(ctx, rec); err != nil {
		log.Error().Err(err).Msg("cannot persist viewpoint status, leaving message queued")
		return
	}
	log.Info().Str("status", string(rec.Status)).Msg("viewpoint ingestion finished")
	w.ack(ctx, msg, log)
}

func (w *Worker) ack(ctx context.Context, msg queue.Message, log zerolog.Logger) {
	if err := w.queue.Ack(ctx, msg); err != nil {
		log.Error().Err(err).Msg("cannot acknowledge queue message")
	}
}

// downloadImage fetches the source object into the viewpoint's cache
// directory with a bounded retry, then best-effort fetches the optional
// supplementary sidecars. Missing buckets and forbidden access are terminal
// immediately; transient failures are retried up to downloadAttempts.
func (w *Worker) downloadImage(ctx context.Context, rec *models.ViewpointRecord, log zerolog.Logger) {
	dir := filepath.Join(w.cacheRoot, rec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.fail(rec, fmt.Sprintf("cannot create local cache directory for viewpoint %s: %v", rec.ID, err))
		return
	}
	dest := filepath.Join(dir, filepath.Base(rec.ObjectKey))

	backoff := retry.WithMaxRetries(downloadAttempts-1, retry.NewConstant(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.objects.Download(ctx, rec.BucketName, rec.ObjectKey, dest)
		if err == nil ||
			errors.Is(err, models.ErrBucketNotFound) ||
			errors.Is(err, models.ErrAccessDenied) ||
			errors.Is(err, context.Canceled) {
			return err
		}
		return retry.RetryableError(err)
	})
	switch {
	case err == nil:
	case errors.Is(err, models.ErrBucketNotFound):
		w.fail(rec, fmt.Sprintf("the %s bucket or %s object does not exist: %v", rec.BucketName, rec.ObjectKey, err))
		return
	case errors.Is(err, models.ErrAccessDenied):
		w.fail(rec, fmt.Sprintf("you do not have permission to access the %s bucket: %v", rec.BucketName, err))
		return
	default:
		w.fail(rec, fmt.Sprintf("cannot process the object storage request for viewpoint %s: %v", rec.ID, err))
		return
	}

	rec.LocalPath = dest
	log.Info().Str("local_path", dest).Msg("downloaded source object")

	// Precomputed overviews and statistics may live next to the source
	// object; their absence is not an error.
	for _, suffix := range []string{models.OverviewSuffix, models.AuxSuffix} {
		if err := w.objects.Download(ctx, rec.BucketName, rec.ObjectKey+suffix, dest+suffix); err != nil {
			log.Debug().Str("suffix", suffix).Msgf("no %s file available for %s", suffix, rec.ID)
		}
	}
}

// buildTilePyramid forces statistics computation, materializes overview
// levels and verifies the dataset by encoding one sample tile.
func (w *Worker) buildTilePyramid(rec *models.ViewpointRecord, log zerolog.Logger) {
	// The decoder only flushes computed statistics to the aux sidecar when
	// the handle closes, so run the computation on a transient handle and
	// close it before the pooled handle opens the dataset. The pooled open
	// below then picks the statistics up from disk.
	if _, err := os.Stat(rec.LocalPath + models.AuxSuffix); err != nil {
		if err := w.forceStatistics(rec.LocalPath); err != nil {
			w.fail(rec, fmt.Sprintf("unable to compute image statistics for viewpoint %s: %v", rec.ID, err))
			return
		}
	}

	key := pool.KeyFor(models.FormatPNG, models.CompressionNone, rec)
	err := w.pools.WithHandle(key, func(h raster.Handle, _ raster.SensorModel) error {
		if !h.HasOverviews() {
			width, height := h.Size()
			if scales := raster.StandardOverviews(width, height, previewSize); len(scales) > 0 {
				if err := h.BuildOverviews(scales); err != nil {
					return err
				}
			}
		}
		_, err := h.EncodeTile(raster.TileWindow(0, 0, 0, rec.TileSize), rec.TileSize, rec.TileSize)
		return err
	})
	if err != nil {
		w.fail(rec, fmt.Sprintf("unable to create the tile pyramid for viewpoint %s: %v", rec.ID, err))
		return
	}
	log.Info().Msg("tile pyramid ready")
}

func (w *Worker) forceStatistics(path string) error {
	h, _, err := w.driver.Open(path, raster.OpenOptions{
		Format:          models.FormatPNG,
		Compression:     models.CompressionNone,
		OutputType:      raster.PixelUnchanged,
		RangeAdjustment: models.AdjustNone,
	})
	if err != nil {
		return err
	}
	if _, err := h.Statistics(); err != nil {
		h.Close()
		return err
	}
	return h.Close()
}

// extractMetadata writes the derived sidecar artifacts next to the local
// source copy. Each is created once here and served verbatim afterwards.
func (w *Worker) extractMetadata(rec *models.ViewpointRecord, log zerolog.Logger) {
	key := pool.KeyFor(models.FormatPNG, models.CompressionNone, rec)
	err := w.pools.WithHandle(key, func(h raster.Handle, sm raster.SensorModel) error {
		return writeSidecars(rec, h, sm)
	})
	if err != nil {
		w.fail(rec, fmt.Sprintf("unable to extract image metadata for viewpoint %s: %v", rec.ID, err))
		return
	}
	log.Info().Msg("metadata artifacts written")
}

// fail marks the record FAILED with a stage-specific message. Later pipeline
// stages are skipped but whatever partial state exists is still persisted.
func (w *Worker) fail(rec *models.ViewpointRecord, message string) {
	rec.Status = models.StatusFailed
	rec.ErrorMessage = message
	w.log.Error().Str("viewpoint_id", rec.ID).Msg(message)
}

// finalize computes the terminal state: READY on success, or FAILED with an
// expiry that lets external garbage collection reap the record.
func (w *Worker) finalize(rec *models.ViewpointRecord) {
	if rec.Status == models.StatusFailed {
		rec.ExpireTime = w.now().Add(w.ttl).Unix()
		return
	}
	rec.Status = models.StatusReady
	rec.ErrorMessage = ""
	rec.ExpireTime = 0
}
