// Package supplicant defines the capability used to talk to the wireless
// supplicant daemon and the protocol-neutral types that flow through it.
//
// Two transports implement [Transport]:
//
//   - ctrl: the local control socket (line-oriented text commands, a paired
//     socket for unsolicited CTRL-EVENT notifications)
//   - bus: the fi.w1.wpa_supplicant1 message-bus API (method calls and signals)
//
// A third implementation in package fake is scriptable and used by tests and
// by dry-run deployments.
//
// # Commands
//
// A [Command] names one logical exchange ([OpScan], [OpScanResults],
// [OpAddNetwork], [OpSelectNetwork], [OpRemoveNetwork], [OpStatus], [OpPing]).
// A transport may need several wire frames for one command (ADD_NETWORK is
// followed by SET_NETWORK calls on the control socket), but callers always see
// one request and one [Response].
//
// Scan results are returned in the control-interface table form by both
// transports, so [ParseScanResults] is the single place entries are validated.
//
// # Errors
//
// Transports never retry. Failures are reported as [ErrDisconnected],
// [ErrMalformed] or [ErrTimeout] (wrapped with context), or as a
// [*CommandError] when the supplicant itself rejected the request.
package supplicant
