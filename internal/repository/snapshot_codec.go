package repository

import (
	"encoding/json"
	"fmt"

	"github.com/noah-isme/attendance-sheet/internal/models"
)

// Backup driver names, also used as metric labels.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

func encodeSnapshot(state models.SessionState) ([]byte, error) {
	if state.Rows == nil {
		state.Rows = map[int]models.EmployeeRow{}
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return payload, nil
}

func decodeSnapshot(payload []byte) (models.SessionState, error) {
	var state models.SessionState
	if err := json.Unmarshal(payload, &state); err != nil {
		return models.SessionState{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if state.CurrentIndex < 0 {
		return models.SessionState{}, fmt.Errorf("decode snapshot: negative currentIndex %d", state.CurrentIndex)
	}
	if state.Rows == nil {
		state.Rows = map[int]models.EmployeeRow{}
	}
	return state, nil
}

// ParseSnapshot decodes a raw snapshot payload without touching any store.
func ParseSnapshot(payload []byte) (models.SessionState, error) {
	return decodeSnapshot(payload)
}
