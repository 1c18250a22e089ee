package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/clients"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/parsers"
	"catalog-import-service/internal/validator"
)

// CheckpointInterval is how many processed rows pass between progress writes.
// Each checkpoint also samples the cancellation flag, so this bounds both
// progress staleness and cancellation latency.
const CheckpointInterval = 50

// JobStore is the persistence surface the engine needs
type JobStore interface {
	ClaimProcessing(tenantID string, id uuid.UUID, from []models.ImportStatus) (*models.ImportJob, error)
	Checkpoint(job *models.ImportJob) (cancelRequested bool, err error)
	Transition(job *models.ImportJob, next models.ImportStatus) error
	Update(job *models.ImportJob) error
}

// CatalogWriter is the catalog write API surface
type CatalogWriter interface {
	GetProductBySlug(tenantID, slug string) (*models.CatalogProduct, error)
	CreateProduct(tenantID, userID string, payload *models.ProductPayload) (*models.CatalogProduct, error)
	UpdateProduct(tenantID, userID, productID string, fields map[string]interface{}) error
}

// TaskPublisher enqueues image-fetch tasks
type TaskPublisher interface {
	Publish(task models.ImportImageTask) error
}

// FileStore resolves and releases staged source files
type FileStore interface {
	Path(jobID uuid.UUID) (string, error)
	Release(jobID uuid.UUID) error
}

// Engine runs claimed import jobs in a single streaming pass over the staged
// file. All catalog writes go through the write API; the engine never touches
// the products tables directly.
type Engine struct {
	store   JobStore
	catalog CatalogWriter
	tasks   TaskPublisher
	files   FileStore
	logger  *logrus.Entry
}

func New(store JobStore, catalog CatalogWriter, tasks TaskPublisher, files FileStore, logger *logrus.Logger) *Engine {
	return &Engine{
		store:   store,
		catalog: catalog,
		tasks:   tasks,
		files:   files,
		logger:  logger.WithField("component", "import-engine"),
	}
}

// Start claims the job for execution and launches the streaming pass in the
// background. The claim is a status compare-and-swap, so exactly one of any
// number of concurrent execute requests wins; the rest get ErrConflict from
// the store. The returned job is a snapshot taken before the pass starts.
func (e *Engine) Start(tenantID string, id uuid.UUID, settings models.ImportSettings) (*models.ImportJob, error) {
	// MAPPING and PREVIEW both mean a mapping has been saved; PENDING jobs
	// have none and are not claimable.
	job, err := e.store.ClaimProcessing(tenantID, id, []models.ImportStatus{
		models.ImportStatusMapping,
		models.ImportStatusPreview,
	})
	if err != nil {
		return nil, err
	}

	// Fresh run: reset everything a previous pass may have left behind
	job.Settings = settings
	job.ProcessedRows = 0
	job.SuccessfulRows = 0
	job.FailedRows = 0
	job.SkippedRows = 0
	job.CreatedProducts = 0
	job.UpdatedProducts = 0
	job.ValidationErrors = nil
	job.FailedRowNumbers = nil
	job.FailureReason = nil
	if err := e.store.Update(job); err != nil {
		return nil, err
	}

	// The background pass keeps mutating job; callers get a detached copy
	snapshot := *job
	go e.run(job, nil)
	return &snapshot, nil
}

// Retry re-claims a finished job and reprocesses only the rows that failed in
// the previous pass. Rows that failed for transient reasons (catalog
// unavailable, race on a slug) get a second chance without re-importing the
// whole file.
func (e *Engine) Retry(tenantID string, id uuid.UUID) (*models.ImportJob, error) {
	job, err := e.store.ClaimProcessing(tenantID, id, []models.ImportStatus{
		models.ImportStatusCompleted,
		models.ImportStatusFailed,
	})
	if err != nil {
		return nil, err
	}
	if len(job.FailedRowNumbers) == 0 {
		// Nothing to retry: put the job back where it was
		if job.FailureReason != nil {
			_ = e.store.Transition(job, models.ImportStatusFailed)
		} else {
			_ = e.store.Transition(job, models.ImportStatusCompleted)
		}
		return nil, fmt.Errorf("no failed rows to retry")
	}

	retrySet := make(map[int]bool, len(job.FailedRowNumbers))
	for _, n := range job.FailedRowNumbers {
		retrySet[n] = true
	}

	// Retried rows leave the failed bucket and are re-counted as they are
	// reprocessed, keeping processed == successful + failed.
	job.FailedRows -= len(job.FailedRowNumbers)
	job.ProcessedRows -= len(job.FailedRowNumbers)
	job.FailedRowNumbers = nil
	job.ValidationErrors = nil
	job.FailureReason = nil
	if err := e.store.Update(job); err != nil {
		return nil, err
	}

	snapshot := *job
	go e.run(job, retrySet)
	return &snapshot, nil
}

// run is the single streaming pass. retrySet, when non-nil, restricts the pass
// to the listed row numbers.
func (e *Engine) run(job *models.ImportJob, retrySet map[int]bool) {
	log := e.logger.WithFields(logrus.Fields{
		"jobId":    job.ID,
		"tenantId": job.TenantID,
	})
	log.WithField("totalRows", job.TotalRows).Info("Import started")

	if err := e.stream(job, retrySet, log); err != nil {
		reason := err.Error()
		job.FailureReason = &reason
		if terr := e.store.Transition(job, models.ImportStatusFailed); terr != nil {
			log.WithError(terr).Error("Failed to mark import as failed")
		}
		log.WithError(err).Error("Import failed")
	}
}

func (e *Engine) stream(job *models.ImportJob, retrySet map[int]bool, log *logrus.Entry) error {
	parser, err := parsers.ForSourceType(job.SourceType)
	if err != nil {
		return err
	}
	path, err := e.files.Path(job.ID)
	if err != nil {
		return err
	}
	iter, err := parser.Rows(path)
	if err != nil {
		return err
	}
	defer iter.Close()

	sinceCheckpoint := 0
	for {
		row, ok, err := iter.Next()
		if err != nil {
			// Fatal read error: progress up to here is already checkpointed
			return fmt.Errorf("read failed at row %d: %w", job.ProcessedRows+1, err)
		}
		if !ok {
			break
		}
		if retrySet != nil && !retrySet[row.RowNumber] {
			continue
		}

		e.processRow(job, row)
		sinceCheckpoint++

		if sinceCheckpoint >= CheckpointInterval {
			sinceCheckpoint = 0
			cancelRequested, err := e.store.Checkpoint(job)
			if err != nil {
				return fmt.Errorf("checkpoint failed: %w", err)
			}
			if cancelRequested {
				log.WithField("processedRows", job.ProcessedRows).Info("Import cancelled")
				_ = e.files.Release(job.ID)
				return e.store.Transition(job, models.ImportStatusCancelled)
			}
		}
	}

	if _, err := e.store.Checkpoint(job); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	log.WithFields(logrus.Fields{
		"successfulRows": job.SuccessfulRows,
		"failedRows":     job.FailedRows,
		"skippedRows":    job.SkippedRows,
	}).Info("Import completed")
	// The staged file is kept on completion so failed rows can be retried;
	// it is released when the job is deleted or cancelled.
	return e.store.Transition(job, models.ImportStatusCompleted)
}

// processRow validates and applies one row. Row-level failures are recorded
// and never abort the pass.
func (e *Engine) processRow(job *models.ImportJob, row parsers.SourceRow) {
	job.ProcessedRows++

	mapped := validator.ApplyMapping(row, job.FieldMapping)
	if errs := validator.ValidateRow(mapped); len(errs) > 0 {
		e.recordFailure(job, row.RowNumber, errs...)
		return
	}

	payload := buildPayload(mapped)
	existing, err := e.catalog.GetProductBySlug(job.TenantID, payload.Slug)
	switch {
	case err == nil:
		e.applyDuplicate(job, row.RowNumber, existing, payload)
	case errors.Is(err, clients.ErrProductNotFound):
		e.createProduct(job, row.RowNumber, payload)
	default:
		e.recordFailure(job, row.RowNumber, models.ValidationError{
			RowNumber: row.RowNumber,
			Message:   "Ошибка каталога: " + err.Error(),
		})
	}
}

// applyDuplicate resolves a slug collision with an existing product according
// to the job's settings. With neither skip nor update set, the duplicate is a
// row-level failure.
func (e *Engine) applyDuplicate(job *models.ImportJob, rowNumber int, existing *models.CatalogProduct, payload *models.ProductPayload) {
	settings := job.Settings
	switch {
	case settings.UpdateExisting:
		if err := e.catalog.UpdateProduct(job.TenantID, job.CreatedBy, existing.ID, updateFields(payload)); err != nil {
			e.recordFailure(job, rowNumber, models.ValidationError{
				RowNumber: rowNumber,
				Message:   "Не удалось обновить товар: " + err.Error(),
			})
			return
		}
		job.SuccessfulRows++
		job.UpdatedProducts++
		e.enqueueImages(job, existing.ID, payload)
	case settings.SkipDuplicates:
		// A skipped duplicate is not a failure: it counts as successful so
		// processed stays equal to successful + failed, with skipped_rows as
		// the informational breakdown
		job.SuccessfulRows++
		job.SkippedRows++
	default:
		e.recordFailure(job, rowNumber, models.ValidationError{
			RowNumber: rowNumber,
			Field:     models.FieldSlug,
			Message:   "Товар с таким названием уже существует",
		})
	}
}

// createProduct writes a new product, resolving a genuine slug race by
// suffixing the slug with a fresh ID fragment and retrying once.
func (e *Engine) createProduct(job *models.ImportJob, rowNumber int, payload *models.ProductPayload) {
	product, err := e.catalog.CreateProduct(job.TenantID, job.CreatedBy, payload)
	if errors.Is(err, clients.ErrSlugConflict) {
		payload.Slug = fmt.Sprintf("%s-%s", payload.Slug, uuid.New().String()[:8])
		product, err = e.catalog.CreateProduct(job.TenantID, job.CreatedBy, payload)
	}
	if err != nil {
		e.recordFailure(job, rowNumber, models.ValidationError{
			RowNumber: rowNumber,
			Message:   "Не удалось создать товар: " + err.Error(),
		})
		return
	}
	job.SuccessfulRows++
	job.CreatedProducts++
	e.enqueueImages(job, product.ID, payload)
}

// enqueueImages hands image URLs to the out-of-band fetch worker. Publish
// failures are logged by the publisher and do not fail the row.
func (e *Engine) enqueueImages(job *models.ImportJob, productID string, payload *models.ProductPayload) {
	if !job.Settings.DownloadImages {
		return
	}
	if payload.MainImageURL != nil {
		_ = e.tasks.Publish(models.ImportImageTask{
			JobID:      job.ID,
			ProductID:  productID,
			SourceURL:  *payload.MainImageURL,
			TargetType: models.ImageTargetMain,
		})
	}
	for i, u := range payload.GalleryURLs {
		_ = e.tasks.Publish(models.ImportImageTask{
			JobID:        job.ID,
			ProductID:    productID,
			SourceURL:    u,
			TargetType:   models.ImageTargetGallery,
			DisplayOrder: i + 1,
		})
	}
}

func (e *Engine) recordFailure(job *models.ImportJob, rowNumber int, errs ...models.ValidationError) {
	job.FailedRows++
	job.FailedRowNumbers = append(job.FailedRowNumbers, rowNumber)
	for _, err := range errs {
		if len(job.ValidationErrors) >= models.MaxValidationErrors {
			break
		}
		job.ValidationErrors = append(job.ValidationErrors, err)
	}
}
