package models

// Error is the error body rendered inside API envelopes
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse is the failure envelope for all endpoints
type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}

// SuccessResponse is the generic success envelope
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message *string     `json:"message,omitempty"`
}

// PaginationInfo describes a page of a list response
type PaginationInfo struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious bool  `json:"hasPrevious"`
}

// ImportJobResponse wraps a single job
type ImportJobResponse struct {
	Success bool       `json:"success"`
	Data    *ImportJob `json:"data"`
	Message *string    `json:"message,omitempty"`
}

// ImportJobListResponse wraps a page of jobs
type ImportJobListResponse struct {
	Success    bool            `json:"success"`
	Data       []ImportJob     `json:"data"`
	Pagination *PaginationInfo `json:"pagination"`
}

// CreateImportJobResponse is returned from the upload endpoint. Columns and
// the suggested mapping let the caller render the mapping UI immediately.
type CreateImportJobResponse struct {
	Success          bool              `json:"success"`
	ID               string            `json:"id"`
	Status           ImportStatus      `json:"status"`
	TotalRows        int               `json:"totalRows"`
	Columns          []string          `json:"columns"`
	SuggestedMapping map[string]string `json:"suggestedMapping"`
}

// SaveMappingRequest carries the confirmed source-column -> target-field pairs
type SaveMappingRequest struct {
	Mapping map[string]string `json:"mapping" binding:"required"`
}

// ValidationSummary is returned after full-file validation
type ValidationSummary struct {
	Success      bool                `json:"success"`
	Status       ImportStatus        `json:"status"`
	TotalRows    int                 `json:"totalRows"`
	ValidRows    int                 `json:"validRows"`
	InvalidRows  int                 `json:"invalidRows"`
	ErrorSample  ValidationErrorList `json:"errorSample,omitempty"`
	ErrorsCapped bool                `json:"errorsCapped"`
}

// PreviewRow is one row of the paginated preview: raw values, mapped values
// and per-row validity
type PreviewRow struct {
	RowNumber int               `json:"rowNumber"`
	Raw       map[string]string `json:"raw"`
	Mapped    map[string]string `json:"mapped"`
	Valid     bool              `json:"valid"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

// PreviewResponse is a page of preview rows
type PreviewResponse struct {
	Success bool         `json:"success"`
	Data    []PreviewRow `json:"data"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	Total   int          `json:"total"`
}

// ExecuteImportRequest carries the duplicate-resolution settings
type ExecuteImportRequest struct {
	SkipDuplicates bool `json:"skipDuplicates"`
	UpdateExisting bool `json:"updateExisting"`
	DownloadImages bool `json:"downloadImages"`
}

// ProgressSnapshot is the polled view of a running or finished job
type ProgressSnapshot struct {
	ID             string              `json:"id"`
	Status         ImportStatus        `json:"status"`
	TotalRows      int                 `json:"totalRows"`
	ProcessedRows  int                 `json:"processedRows"`
	SuccessfulRows int                 `json:"successfulRows"`
	FailedRows     int                 `json:"failedRows"`
	SkippedRows    int                 `json:"skippedRows"`
	ErrorSample    ValidationErrorList `json:"errorSample,omitempty"`
}

// SnapshotFrom builds a progress snapshot from a job record
func SnapshotFrom(job *ImportJob) ProgressSnapshot {
	return ProgressSnapshot{
		ID:             job.ID.String(),
		Status:         job.Status,
		TotalRows:      job.TotalRows,
		ProcessedRows:  job.ProcessedRows,
		SuccessfulRows: job.SuccessfulRows,
		FailedRows:     job.FailedRows,
		SkippedRows:    job.SkippedRows,
		ErrorSample:    job.ValidationErrors,
	}
}
