package agent

import (
	"fmt"

	"QuantDesk/internal/domain/models"
)

// QValues are action values indexed in models.Actions order (buy, sell, hold).
type QValues [3]float64

// Best returns the greedy action. Ties go to the earlier action, so buy
// beats sell and sell beats hold.
func (q QValues) Best() models.Action {
	best := 0
	for i := 1; i < len(q); i++ {
		if q[i] > q[best] {
			best = i
		}
	}
	return models.Actions[best]
}

// Max returns the largest action value.
func (q QValues) Max() float64 {
	m := q[0]
	for _, v := range q[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// QTable is a sparse action-value table. Reads never create entries.
type QTable struct {
	values map[StateKey]QValues
}

func NewQTable() *QTable {
	return &QTable{values: make(map[StateKey]QValues)}
}

// Get returns the stored values or zeros for an unseen state.
func (t *QTable) Get(k StateKey) QValues {
	return t.values[k]
}

func (t *QTable) Set(k StateKey, v QValues) {
	t.values[k] = v
}

func (t *QTable) Len() int {
	return len(t.values)
}

// Export renders the table with string keys.
func (t *QTable) Export() map[string]QValues {
	out := make(map[string]QValues, len(t.values))
	for k, v := range t.values {
		out[k.String()] = v
	}
	return out
}

// ImportQTable parses an exported table. Any malformed key fails the whole import.
func ImportQTable(in map[string]QValues) (*QTable, error) {
	t := NewQTable()
	for s, v := range in {
		k, err := ParseStateKey(s)
		if err != nil {
			return nil, fmt.Errorf("import q-table: %w", err)
		}
		t.values[k] = v
	}
	return t, nil
}
