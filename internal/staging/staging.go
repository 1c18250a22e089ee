package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store keeps each job's uploaded source file on local disk until the job
// reaches a terminal state. Files are laid out one directory per job so that
// release is a single recursive remove.
type Store struct {
	baseDir string
}

// NewStore creates the staging root if it does not exist
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) jobDir(jobID uuid.UUID) string {
	return filepath.Join(s.baseDir, jobID.String())
}

// Save streams the uploaded file into the job's staging slot and returns its
// path. The original filename only contributes its extension; everything else
// is discarded to keep user input out of filesystem paths.
func (s *Store) Save(jobID uuid.UUID, originalName string, src io.Reader) (string, error) {
	dir := s.jobDir(jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create job staging directory: %w", err)
	}

	path := filepath.Join(dir, "source"+filepath.Ext(originalName))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create staged file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to write staged file: %w", err)
	}
	return path, nil
}

// Path returns the staged file path for a job, or an error if nothing is staged
func (s *Store) Path(jobID uuid.UUID) (string, error) {
	entries, err := os.ReadDir(s.jobDir(jobID))
	if err != nil {
		return "", fmt.Errorf("no staged file for job %s: %w", jobID, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			return filepath.Join(s.jobDir(jobID), entry.Name()), nil
		}
	}
	return "", fmt.Errorf("no staged file for job %s", jobID)
}

// Release removes the job's staged file and directory. Safe to call twice.
func (s *Store) Release(jobID uuid.UUID) error {
	if err := os.RemoveAll(s.jobDir(jobID)); err != nil {
		return fmt.Errorf("failed to release staged file: %w", err)
	}
	return nil
}
