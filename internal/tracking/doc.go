// Package tracking implements click tracking: short links embedded in sent
// messages, the signed redirect endpoint that resolves them, and the
// consumer that folds inbound engagement events into blast counters.
package tracking
