package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"catalog-import-service/internal/engine"
	"catalog-import-service/internal/mapper"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/parsers"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/staging"
	"catalog-import-service/internal/validator"
)

// MaxUploadSize caps uploaded source files at 50MB
const MaxUploadSize = 50 << 20

// ImportHandler serves the import job lifecycle API
type ImportHandler struct {
	repo    *repository.ImportJobsRepository
	staging *staging.Store
	engine  *engine.Engine
	logger  *logrus.Entry
}

func NewImportHandler(repo *repository.ImportJobsRepository, store *staging.Store, eng *engine.Engine, logger *logrus.Logger) *ImportHandler {
	return &ImportHandler{
		repo:    repo,
		staging: store,
		engine:  eng,
		logger:  logger.WithField("component", "import-handler"),
	}
}

func (h *ImportHandler) respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: message,
		},
	})
}

// loadJob resolves the path job ID within the caller's tenant, writing the
// error response itself on failure.
func (h *ImportHandler) loadJob(c *gin.Context) (*models.ImportJob, bool) {
	tenantID := c.GetString("tenant_id")
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "INVALID_ID", "Import job ID must be a UUID")
		return nil, false
	}

	job, err := h.repo.GetByID(tenantID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.respondError(c, http.StatusNotFound, "NOT_FOUND", "Import job not found")
		return nil, false
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load import job")
		h.respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load import job")
		return nil, false
	}
	return job, true
}

// detectSourceType resolves the parser for an upload. An explicit sourceType
// form value wins; otherwise the file extension decides.
func detectSourceType(explicit, filename string) (models.SourceType, error) {
	if explicit != "" {
		st := models.SourceType(explicit)
		for _, known := range parsers.SupportedSourceTypes() {
			if st == known {
				return st, nil
			}
		}
		return "", fmt.Errorf("unsupported source type: %s", explicit)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return models.SourceTypeCSV, nil
	case ".xlsx":
		return models.SourceTypeXLSX, nil
	case ".yml", ".xml":
		return models.SourceTypeYML, nil
	}
	return "", fmt.Errorf("cannot detect source type from filename %q", filename)
}

// CreateImportJob accepts a source file upload and opens a new import job.
// POST /api/v1/imports
func (h *ImportHandler) CreateImportJob(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	userID := c.GetString("user_id")

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "FILE_REQUIRED", "Please upload a source file")
		return
	}
	defer file.Close()

	sourceType, err := detectSourceType(c.PostForm("sourceType"), header.Filename)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "INVALID_FORMAT", err.Error())
		return
	}

	job := &models.ImportJob{
		CreatedBy:  userID,
		SourceType: sourceType,
		Filename:   header.Filename,
		Status:     models.ImportStatusPending,
	}
	if err := h.repo.Create(tenantID, job); err != nil {
		h.logger.WithError(err).Error("Failed to create import job")
		h.respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create import job")
		return
	}

	path, err := h.staging.Save(job.ID, header.Filename, file)
	if err != nil {
		h.failJob(job, "staging failed: "+err.Error())
		h.respondError(c, http.StatusInternalServerError, "STAGING_ERROR", "Failed to store uploaded file")
		return
	}

	parser, err := parsers.ForSourceType(sourceType)
	if err != nil {
		h.failJob(job, err.Error())
		h.respondError(c, http.StatusBadRequest, "INVALID_FORMAT", err.Error())
		return
	}
	if err := parser.ValidateFile(path); err != nil {
		h.failJob(job, "unreadable file: "+err.Error())
		h.respondError(c, http.StatusBadRequest, "PARSE_ERROR", "Файл не может быть прочитан: "+err.Error())
		return
	}

	columns, err := parser.Columns(path)
	if err != nil {
		h.failJob(job, "column discovery failed: "+err.Error())
		h.respondError(c, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}
	totalRows, err := parsers.CountRows(parser, path)
	if err != nil {
		h.failJob(job, "row count failed: "+err.Error())
		h.respondError(c, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	// The job stays PENDING until a mapping is saved
	job.Columns = columns
	job.TotalRows = totalRows
	suggested := mapper.Suggest(columns, parser.SuggestedMapping())
	if err := h.repo.Update(job); err != nil {
		h.logger.WithError(err).Error("Failed to update import job")
		h.respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update import job")
		return
	}

	suggestedMap := make(map[string]string, len(suggested))
	for _, entry := range suggested {
		suggestedMap[entry.Source] = entry.Target
	}

	h.logger.WithFields(logrus.Fields{
		"jobId":      job.ID,
		"tenantId":   tenantID,
		"sourceType": sourceType,
		"totalRows":  totalRows,
	}).Info("Import job created")

	c.JSON(http.StatusCreated, models.CreateImportJobResponse{
		Success:          true,
		ID:               job.ID.String(),
		Status:           job.Status,
		TotalRows:        totalRows,
		Columns:          columns,
		SuggestedMapping: suggestedMap,
	})
}

// failJob marks a job failed outside the engine (upload/parse stage)
func (h *ImportHandler) failJob(job *models.ImportJob, reason string) {
	job.FailureReason = &reason
	if err := h.repo.Transition(job, models.ImportStatusFailed); err != nil {
		h.logger.WithError(err).WithField("jobId", job.ID).Error("Failed to mark import job as failed")
	}
	_ = h.staging.Release(job.ID)
}

// ListImportJobs returns a page of the tenant's import jobs.
// GET /api/v1/imports
func (h *ImportHandler) ListImportJobs(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	status := c.Query("status")

	jobs, total, err := h.repo.List(tenantID, status, page, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list import jobs")
		h.respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list import jobs")
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	c.JSON(http.StatusOK, models.ImportJobListResponse{
		Success: true,
		Data:    jobs,
		Pagination: &models.PaginationInfo{
			Page:        page,
			Limit:       limit,
			Total:       total,
			TotalPages:  totalPages,
			HasNext:     page < totalPages,
			HasPrevious: page > 1,
		},
	})
}

// GetImportJob returns one job with its progress counters.
// GET /api/v1/imports/:id
func (h *ImportHandler) GetImportJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.ImportJobResponse{Success: true, Data: job})
}

// GetTargetFields returns the normalized attribute catalog the mapping UI
// offers as targets.
// GET /api/v1/imports/fields
func (h *ImportHandler) GetTargetFields(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"version": models.TargetFieldCatalogVersion,
		"fields":  models.TargetFieldCatalog(),
	})
}

// SaveMapping stores the confirmed column mapping and advances the job to
// mapping. Saving a new mapping discards any prior validation result and
// invalidates cached preview pages.
// PUT /api/v1/imports/:id/mapping
func (h *ImportHandler) SaveMapping(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	var req models.SaveMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	mapping, err := mapper.Normalize(req.Mapping, job.Columns)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "INVALID_MAPPING", err.Error())
		return
	}

	if !job.Status.CanTransition(models.ImportStatusMapping) {
		h.respondError(c, http.StatusConflict, "INVALID_STATE",
			fmt.Sprintf("Cannot save mapping while the job is %s", job.Status))
		return
	}

	job.SetMapping(mapping)
	if err := h.repo.Transition(job, models.ImportStatusMapping); err != nil {
		h.logger.WithError(err).Error("Failed to save mapping")
		h.respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save mapping")
		return
	}
	h.repo.InvalidatePreview(c.Request.Context(), job.ID)

	c.JSON(http.StatusOK, models.ImportJobResponse{Success: true, Data: job})
}

// ValidateImportJob runs a full streaming validation pass and returns the
// summary with a capped error sample. A file with at least one importable row
// advances to preview; a file with none is failed. The staged file is not
// modified and the pass can be repeated after fixing the mapping.
// POST /api/v1/imports/:id/validate
func (h *ImportHandler) ValidateImportJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	if len(job.FieldMapping) == 0 {
		h.respondError(c, http.StatusConflict, "MAPPING_REQUIRED", "Save a column mapping before validating")
		return
	}
	if job.Status != models.ImportStatusPreview && job.Status != models.ImportStatusMapping {
		h.respondError(c, http.StatusConflict, "INVALID_STATE",
			fmt.Sprintf("Cannot validate while the job is %s", job.Status))
		return
	}

	parser, err := parsers.ForSourceType(job.SourceType)
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	path, err := h.staging.Path(job.ID)
	if err != nil {
		h.respondError(c, http.StatusGone, "FILE_RELEASED", "The staged file is no longer available")
		return
	}

	summary, err := validator.ValidateFile(parser, path, job.FieldMapping)
	if err != nil {
		h.logger.WithError(err).WithField("jobId", job.ID).Error("Validation pass failed")
		h.respondError(c, http.StatusInternalServerError, "VALIDATION_FAILED", err.Error())
		return
	}

	job.ValidationErrors = summary.Sample
	next := models.ImportStatusPreview
	if !summary.Importable() {
		next = models.ImportStatusFailed
		reason := "Нет строк, пригодных для импорта"
		job.FailureReason = &reason
	}
	if err := h.repo.Transition(job, next); err != nil {
		h.logger.WithError(err).Error("Failed to record validation outcome")
		h.respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record validation outcome")
		return
	}

	c.JSON(http.StatusOK, models.ValidationSummary{
		Success:      true,
		Status:       job.Status,
		TotalRows:    summary.TotalRows,
		ValidRows:    summary.ValidRows,
		InvalidRows:  summary.InvalidRows,
		ErrorSample:  summary.Sample,
		ErrorsCapped: summary.Capped(),
	})
}

// PreviewImportJob returns a page of rows with raw values, mapped values and
// per-row validity. Pages are cached until the mapping changes.
// GET /api/v1/imports/:id/preview
func (h *ImportHandler) PreviewImportJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	if len(job.FieldMapping) == 0 {
		h.respondError(c, http.StatusConflict, "MAPPING_REQUIRED", "Save a column mapping before previewing")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	page, err := h.repo.CachedPreview(c.Request.Context(), job.ID, limit, offset, func() (*models.PreviewResponse, error) {
		return h.buildPreview(job, limit, offset)
	})
	if err != nil {
		h.logger.WithError(err).WithField("jobId", job.ID).Error("Preview failed")
		h.respondError(c, http.StatusInternalServerError, "PREVIEW_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, page)
}

// buildPreview streams the staged file, skipping offset rows and collecting
// limit rows. Lazy iteration keeps memory flat regardless of file size.
func (h *ImportHandler) buildPreview(job *models.ImportJob, limit, offset int) (*models.PreviewResponse, error) {
	parser, err := parsers.ForSourceType(job.SourceType)
	if err != nil {
		return nil, err
	}
	path, err := h.staging.Path(job.ID)
	if err != nil {
		return nil, err
	}
	iter, err := parser.Rows(path)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	preview := &models.PreviewResponse{
		Success: true,
		Data:    []models.PreviewRow{},
		Limit:   limit,
		Offset:  offset,
		Total:   job.TotalRows,
	}
	skipped := 0
	for len(preview.Data) < limit {
		row, ok, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if skipped < offset {
			skipped++
			continue
		}

		mapped := validator.ApplyMapping(row, job.FieldMapping)
		errs := validator.ValidateRow(mapped)
		preview.Data = append(preview.Data, models.PreviewRow{
			RowNumber: row.RowNumber,
			Raw:       row.Values,
			Mapped:    mapped.Fields,
			Valid:     len(errs) == 0,
			Errors:    errs,
		})
	}
	return preview, nil
}

// ExecuteImportJob claims the job and starts the streaming import pass in the
// background. Exactly one concurrent execute succeeds; the rest get 409.
// POST /api/v1/imports/:id/execute
func (h *ImportHandler) ExecuteImportJob(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "INVALID_ID", "Import job ID must be a UUID")
		return
	}

	// An empty or absent body means default settings
	var req models.ExecuteImportRequest
	_ = c.ShouldBindJSON(&req)

	job, err := h.engine.Start(tenantID, id, models.ImportSettings{
		SkipDuplicates: req.SkipDuplicates,
		UpdateExisting: req.UpdateExisting,
		DownloadImages: req.DownloadImages,
	})
	if errors.Is(err, repository.ErrConflict) {
		h.respondError(c, http.StatusConflict, "ALREADY_CLAIMED", "The import is already running or not ready to execute")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("jobId", id).Error("Failed to start import")
		h.respondError(c, http.StatusInternalServerError, "EXECUTE_FAILED", "Failed to start import")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data":    models.SnapshotFrom(job),
	})
}

// RetryImportJob reprocesses only the rows that failed in the previous pass.
// POST /api/v1/imports/:id/retry
func (h *ImportHandler) RetryImportJob(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "INVALID_ID", "Import job ID must be a UUID")
		return
	}

	job, err := h.engine.Retry(tenantID, id)
	if errors.Is(err, repository.ErrConflict) {
		h.respondError(c, http.StatusConflict, "INVALID_STATE", "The import is not in a retryable state")
		return
	}
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "RETRY_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data":    models.SnapshotFrom(job),
	})
}

// CancelImportJob cancels a job. A running job is flagged for cooperative
// cancellation and stops at its next checkpoint; a not-yet-running job is
// cancelled immediately.
// POST /api/v1/imports/:id/cancel
func (h *ImportHandler) CancelImportJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	tenantID := c.GetString("tenant_id")

	switch {
	case job.Status == models.ImportStatusProcessing:
		if err := h.repo.RequestCancel(tenantID, job.ID); err != nil {
			// The job finished between the read and the flag write
			h.respondError(c, http.StatusConflict, "INVALID_STATE", "The import already finished")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"success": true,
			"message": "Cancellation requested; the import will stop at the next checkpoint",
		})
	case job.Status.CanTransition(models.ImportStatusCancelled):
		if err := h.repo.Transition(job, models.ImportStatusCancelled); err != nil {
			h.respondError(c, http.StatusConflict, "INVALID_STATE", err.Error())
			return
		}
		_ = h.staging.Release(job.ID)
		c.JSON(http.StatusOK, models.ImportJobResponse{Success: true, Data: job})
	default:
		h.respondError(c, http.StatusConflict, "INVALID_STATE",
			fmt.Sprintf("Cannot cancel a %s import", job.Status))
	}
}

// DeleteImportJob removes a finished job and its staged file.
// DELETE /api/v1/imports/:id
func (h *ImportHandler) DeleteImportJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	tenantID := c.GetString("tenant_id")

	if err := h.repo.Delete(tenantID, job.ID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			h.respondError(c, http.StatusConflict, "INVALID_STATE", "Cannot delete a running import")
			return
		}
		h.logger.WithError(err).Error("Failed to delete import job")
		h.respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete import job")
		return
	}
	_ = h.staging.Release(job.ID)

	message := "Import job deleted"
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: &message})
}

// GetImportTemplate returns the import template definition or a downloadable
// file with the catalog's column headers.
// GET /api/v1/imports/template
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	template := models.ProductImportTemplate()

	switch format {
	case "csv":
		h.generateCSVTemplate(c, template)
	case "xlsx":
		h.generateXLSXTemplate(c, template)
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": template,
		})
	}
}

// generateCSVTemplate generates and downloads a CSV template (headers only)
func (h *ImportHandler) generateCSVTemplate(c *gin.Context, template models.ImportTemplate) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=products_import_template.csv")

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	writer.Write(headers)
}

// generateXLSXTemplate generates and downloads an Excel template with an
// instructions sheet built from the target-field catalog.
func (h *ImportHandler) generateXLSXTemplate(c *gin.Context, template models.ImportTemplate) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Products"
	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		if col.Required {
			headerText = col.Name + " *"
		}
		f.SetCellValue(sheetName, cell, headerText)

		if col.Required {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 20)
	}

	f.NewSheet("Instructions")
	f.SetCellValue("Instructions", "A1", "Product Import Instructions")
	f.SetCellValue("Instructions", "A3", "Fill one product per row. Only the columns marked with * are required.")
	f.SetCellValue("Instructions", "A4", "Prices accept both decimal comma and dot; currency symbols are ignored.")
	f.SetCellValue("Instructions", "A5", "Multiple image URLs can share one cell, separated by comma or semicolon.")

	f.SetCellValue("Instructions", "A7", "Column Definitions:")
	f.SetCellValue("Instructions", "A8", "Column")
	f.SetCellValue("Instructions", "B8", "Description")
	f.SetCellValue("Instructions", "C8", "Required")
	f.SetCellValue("Instructions", "D8", "Type")
	f.SetCellValue("Instructions", "E8", "Example")

	for i, col := range template.Columns {
		row := i + 9
		f.SetCellValue("Instructions", fmt.Sprintf("A%d", row), col.Name)
		f.SetCellValue("Instructions", fmt.Sprintf("B%d", row), col.Description)
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetCellValue("Instructions", fmt.Sprintf("C%d", row), required)
		f.SetCellValue("Instructions", fmt.Sprintf("D%d", row), col.Type)
		f.SetCellValue("Instructions", fmt.Sprintf("E%d", row), col.Example)
	}

	f.SetColWidth("Instructions", "A", "A", 25)
	f.SetColWidth("Instructions", "B", "B", 60)
	f.SetColWidth("Instructions", "C", "C", 15)
	f.SetColWidth("Instructions", "D", "D", 15)
	f.SetColWidth("Instructions", "E", "E", 40)

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=products_import_template.xlsx")

	f.Write(c.Writer)
}
