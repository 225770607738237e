// Package variables provides the typed key/value bag owned by a session.
package variables

import (
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

// Store is a typed variable bag scoped to one session. Lookups are by name;
// the underlying slice keeps first-capture order for auditing.
type Store struct {
	entries []models.CapturedVariable
	index   map[string]int
	now     func() time.Time
}

// NewStore creates a store seeded with previously captured variables.
func NewStore(captured []models.CapturedVariable) *Store {
	s := &Store{
		entries: make([]models.CapturedVariable, 0, len(captured)),
		index:   make(map[string]int, len(captured)),
		now:     func() time.Time { return time.Now().UTC() },
	}

	for _, v := range captured {
		s.upsert(v)
	}

	return s
}

// WithClock overrides the time source used for collectedAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now

	return s
}

// Set upserts a variable by name. The last write wins and collectedAt is refreshed.
func (s *Store) Set(name string, value any, varType models.VariableType, sourceNodeID string) {
	if varType == "" {
		varType = models.VariableTypeText
	}

	s.upsert(models.CapturedVariable{
		Name:         name,
		Value:        value,
		Type:         varType,
		CollectedAt:  s.now(),
		SourceNodeID: sourceNodeID,
	})
}

// Get returns the value stored under name.
func (s *Store) Get(name string) (any, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}

	return s.entries[i].Value, true
}

// Has reports whether name has been captured.
func (s *Store) Has(name string) bool {
	_, ok := s.index[name]

	return ok
}

// Len returns the number of distinct variables.
func (s *Store) Len() int {
	return len(s.entries)
}

// Map exports the variables as a flat name → value map for interpolation and
// integration calls.
func (s *Store) Map() map[string]any {
	out := make(map[string]any, len(s.entries))
	for _, v := range s.entries {
		out[v.Name] = v.Value
	}

	return out
}

// Captured returns a copy of the captured variables in audit order.
func (s *Store) Captured() []models.CapturedVariable {
	return append([]models.CapturedVariable(nil), s.entries...)
}

func (s *Store) upsert(v models.CapturedVariable) {
	if i, ok := s.index[v.Name]; ok {
		s.entries[i] = v

		return
	}

	s.index[v.Name] = len(s.entries)
	s.entries = append(s.entries, v)
}
