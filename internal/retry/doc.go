// Package retry provides exponential backoff retry functionality.
//
// The query cache uses it to retry failed fetches before reporting a
// fetch failure. Writes are never retried.
//
//	v, err := retry.Do(ctx, &retry.Config{MaxRetries: 3}, fetch, &retry.Options{
//	    ShouldRetry: func(err error) bool { return !errors.Is(err, query.ErrNotFound) },
//	})
package retry
