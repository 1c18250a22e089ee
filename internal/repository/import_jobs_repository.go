package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"catalog-import-service/internal/models"
)

// Cache TTL constants
const (
	// Preview pages are derived from the staged file; they only change when
	// the mapping changes, so a short TTL plus explicit invalidation suffices.
	PreviewCacheTTL = 2 * time.Minute
	JobCacheTTL     = 30 * time.Second
)

var ErrConflict = fmt.Errorf("job is not in a claimable state")

type ImportJobsRepository struct {
	db    *gorm.DB
	redis *redis.Client
	cache *cache.CacheLayer
}

func NewImportJobsRepository(db *gorm.DB, redisClient *redis.Client) *ImportJobsRepository {
	repo := &ImportJobsRepository{
		db:    db,
		redis: redisClient,
	}

	if redisClient != nil {
		cacheConfig := cache.CacheConfig{
			L1Enabled:  true,
			L1MaxItems: 1000,
			L1TTL:      10 * time.Second,
			DefaultTTL: PreviewCacheTTL,
			KeyPrefix:  "tesseract:imports:",
		}
		repo.cache = cache.NewCacheLayerFromClient(redisClient, cacheConfig)
	}

	return repo
}

// Create persists a new job record
func (r *ImportJobsRepository) Create(tenantID string, job *models.ImportJob) error {
	job.TenantID = tenantID
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = time.Now()
	return r.db.Create(job).Error
}

// GetByID returns a job scoped to its tenant
func (r *ImportJobsRepository) GetByID(tenantID string, id uuid.UUID) (*models.ImportJob, error) {
	var job models.ImportJob
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns a page of the tenant's jobs, newest first, optionally filtered
// by status.
func (r *ImportJobsRepository) List(tenantID string, status string, page, limit int) ([]models.ImportJob, int64, error) {
	query := r.db.Model(&models.ImportJob{}).Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []models.ImportJob
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&jobs).Error
	return jobs, total, err
}

// Update saves the full job record
func (r *ImportJobsRepository) Update(job *models.ImportJob) error {
	job.UpdatedAt = time.Now()
	return r.db.Save(job).Error
}

// Transition moves the job to the next lifecycle status, enforcing the
// transition table. Terminal transitions stamp completed_at.
func (r *ImportJobsRepository) Transition(job *models.ImportJob, next models.ImportStatus) error {
	if !job.Status.CanTransition(next) {
		return fmt.Errorf("illegal status transition %s -> %s: %w", job.Status, next, ErrConflict)
	}
	job.Status = next
	if next.IsTerminal() {
		now := time.Now()
		job.CompletedAt = &now
	}
	return r.Update(job)
}

// ClaimProcessing atomically moves the job into PROCESSING from one of the
// given statuses. A compare-and-swap on the status column makes the claim
// single-flight: concurrent execute requests race on the UPDATE and exactly
// one observes RowsAffected == 1.
func (r *ImportJobsRepository) ClaimProcessing(tenantID string, id uuid.UUID, from []models.ImportStatus) (*models.ImportJob, error) {
	now := time.Now()
	result := r.db.Model(&models.ImportJob{}).
		Where("id = ? AND tenant_id = ? AND status IN ?", id, tenantID, from).
		Updates(map[string]interface{}{
			"status":           models.ImportStatusProcessing,
			"started_at":       now,
			"cancel_requested": false,
			"updated_at":       now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrConflict
	}
	return r.GetByID(tenantID, id)
}

// Checkpoint persists the job's progress counters and failed-row bookkeeping
// without touching the rest of the record, and reports whether cancellation
// has been requested since the previous checkpoint.
func (r *ImportJobsRepository) Checkpoint(job *models.ImportJob) (cancelRequested bool, err error) {
	err = r.db.Model(&models.ImportJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"processed_rows":     job.ProcessedRows,
			"successful_rows":    job.SuccessfulRows,
			"failed_rows":        job.FailedRows,
			"skipped_rows":       job.SkippedRows,
			"created_products":   job.CreatedProducts,
			"updated_products":   job.UpdatedProducts,
			"validation_errors":  job.ValidationErrors,
			"failed_row_numbers": job.FailedRowNumbers,
			"updated_at":         time.Now(),
		}).Error
	if err != nil {
		return false, err
	}

	var flag bool
	err = r.db.Model(&models.ImportJob{}).
		Where("id = ?", job.ID).
		Pluck("cancel_requested", &flag).Error
	return flag, err
}

// RequestCancel flags a running job for cooperative cancellation. The engine
// observes the flag at its next checkpoint.
func (r *ImportJobsRepository) RequestCancel(tenantID string, id uuid.UUID) error {
	result := r.db.Model(&models.ImportJob{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, models.ImportStatusProcessing).
		Update("cancel_requested", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// Delete soft-deletes a job. Running jobs cannot be deleted.
func (r *ImportJobsRepository) Delete(tenantID string, id uuid.UUID) error {
	job, err := r.GetByID(tenantID, id)
	if err != nil {
		return err
	}
	if job.Status == models.ImportStatusProcessing {
		return fmt.Errorf("cannot delete a running import: %w", ErrConflict)
	}
	r.InvalidatePreview(context.Background(), id)
	return r.db.Delete(job).Error
}

// CachedPreview serves a preview page through the cache layer, recomputing on
// miss via fill. Falls through to fill directly when Redis is unavailable.
func (r *ImportJobsRepository) CachedPreview(ctx context.Context, jobID uuid.UUID, limit, offset int, fill func() (*models.PreviewResponse, error)) (*models.PreviewResponse, error) {
	if r.cache == nil {
		return fill()
	}

	var page models.PreviewResponse
	cacheKey := fmt.Sprintf("preview:%s:%d:%d", jobID, limit, offset)
	err := r.cache.GetOrSetJSON(ctx, cacheKey, &page, PreviewCacheTTL, func() (any, error) {
		return fill()
	})
	if err != nil {
		return fill()
	}
	return &page, nil
}

// InvalidatePreview drops every cached preview page for a job. Called when the
// mapping changes and when the job is deleted.
func (r *ImportJobsRepository) InvalidatePreview(ctx context.Context, jobID uuid.UUID) {
	if r.cache == nil {
		return
	}
	_ = r.cache.DeletePattern(ctx, fmt.Sprintf("preview:%s:*", jobID))
}
