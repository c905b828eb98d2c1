// Package domain holds the ledger's aggregates and the pure state machine
// rules that govern them. Nothing in this package performs I/O; the service
// layer invokes these rules under the store's transaction serialization.
//
// The lifecycle is Unknown -> Active (create), Active -> Active (touch),
// Active -> Ended (end). Ended is terminal. Expiry past MaxSessionSlots is
// a derived predicate checked lazily, never a background transition.
package domain
