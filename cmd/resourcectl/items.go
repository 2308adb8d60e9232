package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
	"github.com/vyrodovalexey/resourcesync/internal/store"
)

// openStore opens the item store selected by the configuration.
func (e *env) openStore(ctx context.Context) (*store.Store, error) {
	if e.cfg.Store.Backend == config.StoreBackendMemory {
		e.logger.Warn("the memory store backend does not keep items between runs")
	}

	p, err := store.NewPersister(ctx, e.cfg.Store, e.logger.Named("store"))
	if err != nil {
		return nil, err
	}

	s, err := store.New(ctx, p, store.WithLogger(e.logger.Named("store")))
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return s, nil
}

func (e *env) items(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: items needs a subcommand", errUsage)
	}

	s, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	sub, subArgs := args[0], args[1:]
	switch sub {
	case "list":
		return e.printJSON(s.Items())
	case "selected":
		it, ok := s.SelectedItem()
		if !ok {
			return errors.New("no item is selected")
		}
		return e.printJSON(it)
	case "add":
		return e.addItem(ctx, s, subArgs)
	case "update":
		return e.updateItem(ctx, s, subArgs)
	case "remove":
		if len(subArgs) != 1 {
			return fmt.Errorf("%w: items remove takes exactly one id", errUsage)
		}
		return s.RemoveItem(ctx, subArgs[0])
	case "select":
		id := ""
		if len(subArgs) > 0 {
			id = subArgs[0]
		}
		return s.SelectItem(ctx, id)
	case "clear":
		return s.ClearItems(ctx)
	default:
		return fmt.Errorf("%w: unknown items subcommand %q", errUsage, sub)
	}
}

func (e *env) addItem(ctx context.Context, s *store.Store, args []string) error {
	fs := newFlagSet("items add", e.stderr)
	id := fs.String("id", "", "Item id")
	name := fs.String("name", "", "Item name")
	description := fs.String("description", "", "Item description")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	it := store.Item{ID: *id, Name: *name, Description: *description}
	if err := s.AddItem(ctx, it); err != nil {
		return err
	}
	e.logger.Info("item added", observability.String("id", it.ID), observability.Int("items", s.ItemCount()))
	return e.printJSON(it)
}

func (e *env) updateItem(ctx context.Context, s *store.Store, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: items update needs an id", errUsage)
	}
	id := args[0]

	fs := newFlagSet("items update", e.stderr)
	name := fs.String("name", "", "New name")
	description := fs.String("description", "", "New description")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	// Only flags given on the command line are applied.
	var u store.ItemUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			u.Name = name
		case "description":
			u.Description = description
		}
	})

	if err := s.UpdateItem(ctx, id, u); err != nil {
		return err
	}
	it, _ := s.ItemByID(id)
	return e.printJSON(it)
}
