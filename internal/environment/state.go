package environment

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const stateFileName = ".env-state.json"

func loadState(dir string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func saveState(dir string, st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, stateFileName), data, 0o644)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
