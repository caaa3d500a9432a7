package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAndAdvance(t *testing.T) {
	s := NewStore()
	st := s.Start("+14155550001", "create_commitment")
	require.NotNil(t, st)
	assert.Equal(t, 0, st.Step)

	s.Advance("+14155550001", 1, map[string]string{"title": "Goa Trip"})
	got := s.Get("+14155550001")
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Step)
	assert.Equal(t, "Goa Trip", got.Slots["title"])
}

func TestClearEndsConversation(t *testing.T) {
	s := NewStore()
	s.Start("+14155550001", "create_commitment")
	s.Clear("+14155550001")
	assert.Nil(t, s.Get("+14155550001"))
}

func TestExpiredStateEvictedOnAccess(t *testing.T) {
	s := NewStore()
	st := s.Start("+14155550001", "create_commitment")
	st.UpdatedAt = time.Now().Add(-61 * time.Minute)

	assert.Nil(t, s.Get("+14155550001"))
	assert.False(t, s.Active("+14155550001"))
}

func TestContextRoundTrip(t *testing.T) {
	s := NewStore()
	s.SetContext("+14155550001", "last_commitment_id", "c-1")
	assert.Equal(t, "c-1", s.GetContext("+14155550001", "last_commitment_id"))

	s.ClearContext("+14155550001", "last_commitment_id")
	assert.Equal(t, "", s.GetContext("+14155550001", "last_commitment_id"))
}
