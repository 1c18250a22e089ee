package staging

import (
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestStoreSaveAndPath(t *testing.T) {
	store, err := NewStore(t.TempDir())
	assert.NoError(t, err)

	jobID := uuid.New()
	path, err := store.Save(jobID, "прайс-лист сентябрь.csv", strings.NewReader("name,price\nТовар,10\n"))
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "source.csv"))

	found, err := store.Path(jobID)
	assert.NoError(t, err)
	assert.Equal(t, path, found)

	data, err := os.ReadFile(found)
	assert.NoError(t, err)
	assert.Equal(t, "name,price\nТовар,10\n", string(data))
}

func TestStorePathMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	assert.NoError(t, err)

	_, err = store.Path(uuid.New())
	assert.Error(t, err)
}

func TestStoreRelease(t *testing.T) {
	store, err := NewStore(t.TempDir())
	assert.NoError(t, err)

	jobID := uuid.New()
	path, err := store.Save(jobID, "catalog.xlsx", strings.NewReader("data"))
	assert.NoError(t, err)

	assert.NoError(t, store.Release(jobID))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Releasing again is a no-op
	assert.NoError(t, store.Release(jobID))
}

func TestStoreJobsIsolated(t *testing.T) {
	store, err := NewStore(t.TempDir())
	assert.NoError(t, err)

	first := uuid.New()
	second := uuid.New()
	_, err = store.Save(first, "a.csv", strings.NewReader("a"))
	assert.NoError(t, err)
	_, err = store.Save(second, "b.csv", strings.NewReader("b"))
	assert.NoError(t, err)

	assert.NoError(t, store.Release(first))

	path, err := store.Path(second)
	assert.NoError(t, err)
	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "b", string(data))
}
