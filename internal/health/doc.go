// Package health provides liveness and readiness endpoints and the
// dependency checks behind them.
package health
