// Package connect joins the station to a network chosen during
// provisioning.
//
// The radio cannot be an access point and a station at once, so a connect
// attempt stops the access point, configures and selects the network, and
// waits for the supplicant to report the completed state. If the attempt
// fails or times out the access point is restarted before Connect returns,
// so the user can try again.
//
// # Phases
//
//	Idle -> StoppingAP -> Configuring -> Selecting -> AwaitingState
//	     -> Completed | Failed | TimedOut
//
// Only one attempt runs at a time; a second caller gets ErrBusy at once.
// An attempt is not tied to the caller's context: once the access point is
// down the manager finishes the attempt, including recovery, under its own
// timeouts.
package connect
