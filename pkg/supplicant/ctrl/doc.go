// Package ctrl implements supplicant.Transport over the wpa_supplicant control
// interface: unix datagram sockets under the control directory, one per
// network interface.
//
// # Sockets
//
// Each Transport binds a private socket in LocalDir and connects it to
// <Dir>/<Interface>. Commands are single datagrams; the reply is the next
// datagram that is not an unsolicited "<N>..." notification.
//
// OpenEvents binds a second socket, sends ATTACH and yields every
// notification as a classified supplicant.Event. The event socket is probed
// with PING when idle so a restarted supplicant is noticed.
//
// # Network profiles
//
// OpAddNetwork expands to ADD_NETWORK followed by SET_NETWORK for ssid (hex),
// key_mgmt and psk. The psk is always sent as the 64 digit raw key so the
// passphrase never needs quoting.
package ctrl
