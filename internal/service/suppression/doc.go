// Package suppression keeps the per-channel opt-out list.
//
// A suppression excludes one recipient from one channel. Entries arrive
// from engagement events (STOP replies, unsubscribe links) and operator
// actions, and the send pipeline drops suppressed recipients after list
// resolution and before dispatch.
//
// The service layer depends on the Repository interface defined in
// repository.go and never imports net/http or database/sql directly.
package suppression
