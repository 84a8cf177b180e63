// Package scheduler talks to the deferred-execution service that fires a
// campaign's send at its scheduled times.
//
// HTTPClient is the production backend. Local runs tasks in-process on a
// cron engine; it is used for single-binary deployments and tests, and
// guards each firing with a distributed lock so that replicas restoring
// the same tasks fire them once.
package scheduler
