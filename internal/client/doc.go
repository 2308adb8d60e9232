// Package client is the HTTP client of the resource API.
//
// Reads are exposed as cached queries and the create call as a mutation
// that invalidates the cached lists:
//
//	c, err := client.New(cfg.Client, client.WithCacheOptions(query.WithPolicy(policy)))
//	page, err := c.Resources(resource.ListParams{Page: 1}).Get(ctx)
//	res, err := c.CreateResource().Do(ctx, resource.CreateInput{Name: "Ada", Email: "ada@example.com"})
//
// Requests pass through a gobreaker circuit breaker when one is
// configured. 404 responses surface as query.ErrNotFound and 400
// responses with field details as *api.ValidationError.
package client
