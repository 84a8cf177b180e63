// Package campaign implements the campaign lifecycle: create, update,
// delete, schedule, reschedule, unschedule and send, plus the completion
// callback that closes out each send.
//
// Every operation that touches an existing campaign first checks that the
// caller shares the owner's authorization domain. The service depends only
// on interfaces declared in this package; Postgres and in-memory
// implementations live under repository/.
package campaign
