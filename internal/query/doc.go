// Package query caches the results of remote fetches on the client side and
// keeps them consistent with remote writes.
//
// Entries are keyed by a resource tag plus optional filters. A fresh entry
// is served from memory; a stale one is refetched, either while the caller
// waits (ModeBlocking) or in the background after the stale value has been
// returned (ModeStaleWhileRevalidate). Entries past their expiry are never
// served. Concurrent reads of one key share a single fetch.
//
// Writes go through Client.Write, which marks every entry of the affected
// tags stale once the remote call succeeds:
//
//	c := query.New(fetch, query.WithPolicy(query.PolicyFromConfig(cfg.Cache)))
//	defer c.Close()
//
//	list := query.NewQuery(c, query.KeyWith("resources", "page", "1"), fetchResources)
//	page, err := list.Get(ctx)
//
//	create := query.NewMutation(c, createResource, "resources")
//	created, err := create.Do(ctx, input)
//
// Subscribe delivers change events for a key.
package query
