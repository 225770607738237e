package variables

import (
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetAndGet(t *testing.T) {
	store := NewStore(nil)

	store.Set("name", "Ana", models.VariableTypeText, "ask_name")

	value, ok := store.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Ana", value)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestStore_LastWriteWins(t *testing.T) {
	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)
	clock := first

	store := NewStore(nil).WithClock(func() time.Time { return clock })
	store.Set("age", 30.0, models.VariableTypeNumber, "n1")
	store.Set("city", "Lisbon", models.VariableTypeText, "n2")

	clock = second
	store.Set("age", 31.0, models.VariableTypeNumber, "n3")

	captured := store.Captured()
	require.Len(t, captured, 2)
	assert.Equal(t, "age", captured[0].Name, "audit order keeps first capture position")
	assert.Equal(t, 31.0, captured[0].Value)
	assert.Equal(t, second, captured[0].CollectedAt)
	assert.Equal(t, "n3", captured[0].SourceNodeID)
	assert.Equal(t, 2, store.Len())
}

func TestStore_SeededFromSnapshot(t *testing.T) {
	store := NewStore([]models.CapturedVariable{
		{Name: "plan", Value: "pro", Type: models.VariableTypeText},
	})

	assert.True(t, store.Has("plan"))
	assert.Equal(t, map[string]any{"plan": "pro"}, store.Map())
}

func TestStore_DefaultType(t *testing.T) {
	store := NewStore(nil)
	store.Set("x", "y", "", "")

	assert.Equal(t, models.VariableTypeText, store.Captured()[0].Type)
}

func TestStore_CapturedIsACopy(t *testing.T) {
	store := NewStore(nil)
	store.Set("x", "1", models.VariableTypeText, "")

	captured := store.Captured()
	captured[0].Value = "mutated"

	value, _ := store.Get("x")
	assert.Equal(t, "1", value)
}
