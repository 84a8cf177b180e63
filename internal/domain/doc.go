// Package domain holds the engine's shared records: campaigns and their
// list associations, blasts, sends, short links, scheduler tasks, audit
// events and suppressions.
//
// The package imports nothing from internal/. Types carry JSON and db tags
// and small pure helpers (state derivation, enum validation) but never a
// database handle, request or context.
package domain
