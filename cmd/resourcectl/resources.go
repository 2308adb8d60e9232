package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/vyrodovalexey/resourcesync/internal/api"
	"github.com/vyrodovalexey/resourcesync/internal/client"
	"github.com/vyrodovalexey/resourcesync/internal/query"
	"github.com/vyrodovalexey/resourcesync/internal/resource"
)

// newClient builds the resource client from the configuration.
func (e *env) newClient() (*client.Client, error) {
	return client.New(e.cfg.Client,
		client.WithLogger(e.logger.Named("client")),
		client.WithCacheOptions(
			query.WithPolicy(query.PolicyFromConfig(e.cfg.Cache)),
			query.WithLogger(e.logger.Named("query")),
		),
	)
}

func (e *env) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list", e.stderr)
	page := fs.Int("page", resource.DefaultPage, "Page number")
	limit := fs.Int("limit", resource.DefaultLimit, "Page size")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	c, err := e.newClient()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	resp, err := c.Resources(resource.ListParams{Page: *page, Limit: *limit}).Get(ctx)
	if err != nil {
		return describe(err)
	}
	return e.printJSON(resp)
}

func (e *env) get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: get takes exactly one id", errUsage)
	}

	c, err := e.newClient()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	res, err := c.Resource(args[0]).Get(ctx)
	if err != nil {
		return describe(err)
	}
	return e.printJSON(res)
}

func (e *env) create(ctx context.Context, args []string) error {
	fs := newFlagSet("create", e.stderr)
	name := fs.String("name", "", "Resource name")
	email := fs.String("email", "", "Resource email")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	c, err := e.newClient()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	res, err := c.CreateResource().Do(ctx, resource.CreateInput{Name: *name, Email: *email})
	if err != nil {
		return describe(err)
	}
	return e.printJSON(res)
}

// describe turns client errors into messages for the terminal.
func describe(err error) error {
	var verr *api.ValidationError
	switch {
	case errors.As(err, &verr):
		return fmt.Errorf("rejected by the server: %w", verr)
	case errors.Is(err, query.ErrNotFound):
		return errors.New("resource not found")
	case errors.Is(err, query.ErrDisabled):
		return errors.New("an id is required")
	case errors.Is(err, client.ErrCircuitOpen):
		return errors.New("the resource API is unavailable, try again later")
	default:
		return err
	}
}

func newFlagSet(name string, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	return fs
}
