// Package config provides configuration types and loading for the resource
// service, its HTTP client and the client-side cache.
//
// Configuration is a single YAML document. Load substitutes environment
// variables (${VAR} and ${VAR:-default}), rejects unknown keys, applies
// defaults and validates the result:
//
//	cfg, err := config.Load("configs/resourced.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Watcher reloads the file on change and hands every valid new
// configuration to a callback. The cache policy (stale time, expiry,
// fetch timeout) and the log level can be changed this way without a
// restart:
//
//	w, err := config.NewWatcher(path, func(cfg *config.Config) {
//	    cache.SetPolicy(query.PolicyFromConfig(cfg.Cache))
//	})
package config
