package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// snapshotVersion is the version written to new snapshots.
const snapshotVersion = 1

// Item is one stored entry.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ItemUpdate is a partial update. Nil fields are left unchanged.
type ItemUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (u ItemUpdate) apply(it Item) Item {
	if u.Name != nil {
		it.Name = *u.Name
	}
	if u.Description != nil {
		it.Description = *u.Description
	}
	return it
}

// State is the full store contents.
type State struct {
	Items      []Item `json:"items"`
	SelectedID string `json:"selectedId,omitempty"`
}

func (s State) clone() State {
	s.Items = slices.Clone(s.Items)
	if s.Items == nil {
		s.Items = []Item{}
	}
	return s
}

func (s State) indexOf(id string) int {
	return slices.IndexFunc(s.Items, func(it Item) bool { return it.ID == id })
}

// validate rejects states that no sequence of store operations produces.
func (s State) validate() error {
	seen := make(map[string]struct{}, len(s.Items))
	for i, it := range s.Items {
		if it.ID == "" {
			return fmt.Errorf("item %d: empty id", i)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("item %d: duplicate id %q", i, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// snapshot is the persisted form of a State.
type snapshot struct {
	State   State `json:"state"`
	Version int   `json:"version"`
}

var errUnknownVersion = errors.New("unknown snapshot version")

func encodeState(s State) ([]byte, error) {
	return json.Marshal(snapshot{State: s, Version: snapshotVersion})
}

func decodeState(data []byte) (State, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return State{}, err
	}
	if snap.Version != snapshotVersion {
		return State{}, fmt.Errorf("%w: %d", errUnknownVersion, snap.Version)
	}
	if err := snap.State.validate(); err != nil {
		return State{}, err
	}
	return snap.State.clone(), nil
}
