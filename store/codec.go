package store

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/evalmesh/core"
)

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func encode(state *core.RunState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode run %s: %w", state.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*core.RunState, error) {
	var state core.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &state, nil
}

// sortRuns orders runs oldest first, ties broken by id.
func sortRuns(runs []*core.RunState) {
	slices.SortFunc(runs, func(a, b *core.RunState) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
