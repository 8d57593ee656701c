package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drumstick90/authordigest/internal/domain"
)

func TestStore_StoreWorksClearsExtracts(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.StoreWorks([]domain.WorkItem{{ID: "W1"}}, "Jane Doe", "A1")
	s.SetExtracts(domain.Session{{WorkID: "W1", Extracted: true}})
	require.Len(t, s.Extracts(), 1)

	s.StoreWorks([]domain.WorkItem{{ID: "W2"}, {ID: "W3"}}, "John Roe", "A2")

	works, name := s.Works()
	assert.Len(t, works, 2)
	assert.Equal(t, "John Roe", name)
	assert.Nil(t, s.Extracts())

	id, name := s.Subject()
	assert.Equal(t, "A2", id)
	assert.Equal(t, "John Roe", name)
}

func TestStore_SingleExtractionInFlight(t *testing.T) {
	t.Parallel()

	s := NewStore()
	assert.False(t, s.ExtractionInProgress())

	require.True(t, s.TryBeginExtraction())
	assert.True(t, s.ExtractionInProgress())
	assert.False(t, s.TryBeginExtraction())

	s.EndExtraction()
	assert.False(t, s.ExtractionInProgress())
	assert.True(t, s.TryBeginExtraction())
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.StoreWorks([]domain.WorkItem{{ID: "W1"}}, "Jane Doe", "A1")
	s.SetExtracts(domain.Session{{WorkID: "W1", Extracted: true}})

	s.Clear()

	works, name := s.Works()
	assert.Empty(t, works)
	assert.Empty(t, name)
	assert.Nil(t, s.Extracts())
}
