package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vyrodovalexey/resourcesync/internal/observability"
)

var (
	// ErrItemNotFound is returned when updating an unknown item.
	ErrItemNotFound = errors.New("item not found")

	// ErrDuplicateItem is returned when adding an item whose ID is taken.
	ErrDuplicateItem = errors.New("item already exists")

	// ErrInvalidItem is returned when adding an item without an ID.
	ErrInvalidItem = errors.New("item id is required")
)

// Listener receives the new state after each change.
type Listener func(State)

type subscription struct {
	id uint64
	fn Listener
}

// Store holds a list of items and an optional selection. Every change is
// written through the Persister before it becomes visible.
type Store struct {
	persister Persister
	logger    observability.Logger

	// mu serializes mutations including their save.
	mu    sync.RWMutex
	state State

	subsMu sync.Mutex
	subs   []subscription
	nextID uint64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store and restores its state from p. Missing, corrupt or
// unknown snapshots yield an empty store; only read failures are
// returned.
func New(ctx context.Context, p Persister, opts ...Option) (*Store, error) {
	s := &Store{
		persister: p,
		logger:    observability.NopLogger(),
		state:     State{Items: []Item{}},
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := p.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		s.logger.Debug("no stored state, starting empty")
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load store state: %w", err)
	}

	state, err := decodeState(data)
	if err != nil {
		s.logger.Warn("discarding invalid stored state",
			observability.Int("size", len(data)),
			observability.Error(err),
		)
		return s, nil
	}

	s.state = state
	s.logger.Debug("store state restored", observability.Int("items", len(state.Items)))
	return s, nil
}

// AddItem appends it.
func (s *Store) AddItem(ctx context.Context, it Item) error {
	if it.ID == "" {
		return ErrInvalidItem
	}
	return s.update(ctx, func(st *State) error {
		if st.indexOf(it.ID) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID)
		}
		st.Items = append(st.Items, it)
		return nil
	})
}

// RemoveItem removes the item with id and clears the selection if it
// pointed at it. Removing an unknown id is a no-op.
func (s *Store) RemoveItem(ctx context.Context, id string) error {
	return s.update(ctx, func(st *State) error {
		i := st.indexOf(id)
		if i < 0 {
			return errUnchanged
		}
		st.Items = append(st.Items[:i], st.Items[i+1:]...)
		if st.SelectedID == id {
			st.SelectedID = ""
		}
		return nil
	})
}

// UpdateItem applies u to the item with id.
func (s *Store) UpdateItem(ctx context.Context, id string, u ItemUpdate) error {
	return s.update(ctx, func(st *State) error {
		i := st.indexOf(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		st.Items[i] = u.apply(st.Items[i])
		return nil
	})
}

// SelectItem sets the selection. An empty id clears it. The id does not
// have to exist.
func (s *Store) SelectItem(ctx context.Context, id string) error {
	return s.update(ctx, func(st *State) error {
		if st.SelectedID == id {
			return errUnchanged
		}
		st.SelectedID = id
		return nil
	})
}

// ClearItems removes every item and the selection.
func (s *Store) ClearItems(ctx context.Context) error {
	return s.update(ctx, func(st *State) error {
		st.Items = []Item{}
		st.SelectedID = ""
		return nil
	})
}

// ItemByID returns the item with id.
func (s *Store) ItemByID(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.state.indexOf(id)
	if i < 0 {
		return Item{}, false
	}
	return s.state.Items[i], true
}

// ItemCount returns the number of items.
func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.Items)
}

// SelectedItem returns the selected item, if the selection names an
// existing item.
func (s *Store) SelectedItem() (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.SelectedID == "" {
		return Item{}, false
	}
	i := s.state.indexOf(s.state.SelectedID)
	if i < 0 {
		return Item{}, false
	}
	return s.state.Items[i], true
}

// Items returns a copy of the items in insertion order.
func (s *Store) Items() []Item {
	return s.State().Items
}

// State returns a copy of the whole state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn to be called with the new state after every
// change. Listeners run in registration order on the mutating goroutine.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.subsMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Close closes the persister.
func (s *Store) Close() error {
	return s.persister.Close()
}

// errUnchanged tells update that fn made no change.
var errUnchanged = errors.New("unchanged")

// update applies fn to a copy of the state, saves it and only then
// publishes it.
func (s *Store) update(ctx context.Context, fn func(*State) error) error {
	s.mu.Lock()

	next := s.state.clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}

	data, err := encodeState(next)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to encode store state: %w", err)
	}
	if err := s.persister.Save(ctx, data); err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to persist store state", observability.Error(err))
		return fmt.Errorf("failed to persist store state: %w", err)
	}

	s.state = next
	published := next.clone()
	s.mu.Unlock()

	s.notify(published)
	return nil
}

func (s *Store) notify(st State) {
	s.subsMu.Lock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.subsMu.Unlock()

	for _, sub := range subs {
		sub.fn(st)
	}
}
