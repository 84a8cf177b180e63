// Package sending runs the two fan-out stages behind a campaign send.
//
// The Resolver fans out across a campaign's recipient lists and unions the
// results. The Dispatcher fans out across the resolved recipients, sending
// each one independently, and fans back in through a Barrier that invokes
// the completion callback once every unit has settled.
package sending
