package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImportStatus represents the lifecycle status of an import job
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "PENDING"
	ImportStatusMapping    ImportStatus = "MAPPING"
	ImportStatusPreview    ImportStatus = "PREVIEW"
	ImportStatusProcessing ImportStatus = "PROCESSING"
	ImportStatusCompleted  ImportStatus = "COMPLETED"
	ImportStatusFailed     ImportStatus = "FAILED"
	ImportStatusCancelled  ImportStatus = "CANCELLED"
)

// IsTerminal reports whether the status is a terminal state
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed || s == ImportStatusCancelled
}

// importTransitions is the allowed transition table for import jobs.
// FAILED is reachable from MAPPING/PREVIEW (validation found no importable
// rows) and PROCESSING (fatal I/O). The COMPLETED/FAILED -> PROCESSING edge is
// the retry-failed-rows sub-cycle, not a new lifecycle.
var importTransitions = map[ImportStatus][]ImportStatus{
	ImportStatusPending:    {ImportStatusMapping, ImportStatusCancelled, ImportStatusFailed},
	ImportStatusMapping:    {ImportStatusMapping, ImportStatusPreview, ImportStatusProcessing, ImportStatusFailed, ImportStatusCancelled},
	ImportStatusPreview:    {ImportStatusMapping, ImportStatusPreview, ImportStatusProcessing, ImportStatusFailed, ImportStatusCancelled},
	ImportStatusProcessing: {ImportStatusCompleted, ImportStatusFailed, ImportStatusCancelled},
	ImportStatusCompleted:  {ImportStatusProcessing},
	ImportStatusFailed:     {ImportStatusProcessing},
	ImportStatusCancelled:  {},
}

// CanTransition reports whether moving from s to next is a legal lifecycle change
func (s ImportStatus) CanTransition(next ImportStatus) bool {
	for _, allowed := range importTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourceType identifies which parser decodes the staged file
type SourceType string

const (
	SourceTypeCSV         SourceType = "csv"
	SourceTypeXLSX        SourceType = "xlsx"
	SourceTypeWildberries SourceType = "wildberries"
	SourceTypeMoySklad    SourceType = "moysklad"
	SourceTypeYML         SourceType = "yml"
)

// MaxValidationErrors caps the error sample persisted on a job. Larger files
// keep failing past the cap; only the counter grows.
const MaxValidationErrors = 100

// FieldMappingEntry is one confirmed source-column -> target-field pair.
// The mapping is stored as an array to preserve the column order the file
// was discovered with.
type FieldMappingEntry struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// FieldMapping is the confirmed mapping saved once per job
type FieldMapping []FieldMappingEntry

func (m FieldMapping) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *FieldMapping) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// TargetFor returns the target field mapped to the given source column
func (m FieldMapping) TargetFor(source string) (string, bool) {
	for _, entry := range m {
		if entry.Source == source {
			return entry.Target, true
		}
	}
	return "", false
}

// HasTarget reports whether any source column maps to the given target field
func (m FieldMapping) HasTarget(target string) bool {
	for _, entry := range m {
		if entry.Target == target {
			return true
		}
	}
	return false
}

// ValidationError is a single per-row validation failure
type ValidationError struct {
	RowNumber int    `json:"rowNumber"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
}

// ValidationErrorList is the capped error sample stored on the job
type ValidationErrorList []ValidationError

func (l ValidationErrorList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *ValidationErrorList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// IntList stores row numbers as JSONB (failed rows kept for retry)
type IntList []int

func (l IntList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *IntList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// ImportSettings is the duplicate-resolution and side-effect configuration
// supplied at execute time
type ImportSettings struct {
	SkipDuplicates bool `json:"skipDuplicates"`
	UpdateExisting bool `json:"updateExisting"`
	DownloadImages bool `json:"downloadImages"`
}

func (s ImportSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *ImportSettings) Scan(value interface{}) error {
	if value == nil {
		*s = ImportSettings{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// ImportJob represents one bulk catalog import.
// Counters invariant: processed_rows == successful_rows + failed_rows at
// every checkpoint, and processed_rows <= total_rows. Skipped duplicates are
// counted as successful (they are not failures) and additionally tracked in
// skipped_rows. total_rows is fixed at creation.
type ImportJob struct {
	ID               uuid.UUID           `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID         string              `json:"tenantId" gorm:"not null;index:idx_import_jobs_tenant;index:idx_import_jobs_tenant_status"`
	CreatedBy        string              `json:"createdBy" gorm:"not null"`
	SourceType       SourceType          `json:"sourceType" gorm:"not null"`
	Filename         string              `json:"filename" gorm:"not null"`
	Status           ImportStatus        `json:"status" gorm:"not null;default:'PENDING';index:idx_import_jobs_tenant_status"`
	TotalRows        int                 `json:"totalRows" gorm:"not null;default:0"`
	ProcessedRows    int                 `json:"processedRows" gorm:"not null;default:0"`
	SuccessfulRows   int                 `json:"successfulRows" gorm:"not null;default:0"`
	FailedRows       int                 `json:"failedRows" gorm:"not null;default:0"`
	SkippedRows      int                 `json:"skippedRows" gorm:"not null;default:0"`
	CreatedProducts  int                 `json:"createdProducts" gorm:"not null;default:0"`
	UpdatedProducts  int                 `json:"updatedProducts" gorm:"not null;default:0"`
	Columns          StringList          `json:"columns,omitempty" gorm:"type:jsonb"`
	FieldMapping     FieldMapping        `json:"fieldMapping,omitempty" gorm:"type:jsonb"`
	Settings         ImportSettings      `json:"settings" gorm:"type:jsonb"`
	CancelRequested  bool                `json:"-" gorm:"not null;default:false"`
	ValidationErrors ValidationErrorList `json:"validationErrors,omitempty" gorm:"type:jsonb"`
	FailedRowNumbers IntList             `json:"-" gorm:"type:jsonb"`
	FailureReason    *string             `json:"failureReason,omitempty"`
	StartedAt        *time.Time          `json:"startedAt,omitempty"`
	CompletedAt      *time.Time          `json:"completedAt,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
	DeletedAt        *gorm.DeletedAt     `json:"deletedAt,omitempty" gorm:"index"`
}

// TableName returns the table name for the ImportJob model
func (ImportJob) TableName() string {
	return "import_jobs"
}

// SetMapping replaces the confirmed mapping. A validation result computed
// under the previous mapping no longer applies, so it is discarded with it.
func (j *ImportJob) SetMapping(mapping FieldMapping) {
	j.FieldMapping = mapping
	j.ValidationErrors = nil
	j.FailureReason = nil
}

// StringList stores the discovered source columns as JSONB, in file order
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// ImageTargetType distinguishes the product's primary image from gallery entries
type ImageTargetType string

const (
	ImageTargetMain    ImageTargetType = "main"
	ImageTargetGallery ImageTargetType = "gallery"
)

// ImportImageTask is enqueued for the external image-fetch worker. The import
// pipeline only produces these; fetching happens out of band.
type ImportImageTask struct {
	JobID        uuid.UUID       `json:"jobId"`
	ProductID    string          `json:"productId"`
	SourceURL    string          `json:"sourceUrl"`
	TargetType   ImageTargetType `json:"targetType"`
	DisplayOrder int             `json:"displayOrder"`
}
