// Package events delivers supplicant notifications to waiting components.
//
// A Listener owns the only supplicant.EventSource. Its receive goroutine
// publishes every event, in arrival order, to a Broadcaster. Components that
// need to wait for an outcome subscribe before triggering it and then call
// Subscription.WaitFor with their own bound.
//
// # Delivery
//
// Each subscriber has a buffered channel. Publishing never blocks: when a
// subscriber's buffer is full the event is dropped for that subscriber and
// counted. Waiters that can tolerate a lost event (the connect manager polls
// status after a timeout) rely on this to keep the receive loop moving.
//
// # Reconnection
//
// When the source reports supplicant.ErrDisconnected the Listener hands the
// link to a connection.Manager configured with a fixed retry interval and
// keeps retrying until closed. Disconnection is never reported to
// subscribers.
package events
