// Package connection keeps a long-lived link to the supplicant alive.
//
// A Manager owns a ConnectFunc and a retry loop. Callers report a lost link
// with NotifyConnectionLost (or a failed first attempt with Retry) and the
// loop calls the ConnectFunc again after the next Backoff delay until it
// succeeds or the manager is closed.
//
// # Retry delays
//
// Backoff grows the delay by Multiplier after each attempt, capped at Max,
// with up to Jitter*delay added:
//
//	delay = base + random(0, base * jitter)
//
// The event listener uses a fixed interval (Multiplier 1, Jitter 0): the
// supplicant is a local daemon, so there is no herd to spread out and a
// restarted supplicant should be picked up promptly.
package connection
