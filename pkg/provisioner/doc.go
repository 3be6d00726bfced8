// Package provisioner composes the provisioning core behind one Service.
//
// A Service owns the supplicant command channel and event listener, the
// scanner, the connect manager, the access point and the scan cache. It
// exposes the capability set consumed by the web layer (Scan, Connect,
// Status) plus the session lifecycle driven by a policy:
//
//	EnterProvisioning: stop AP -> wait for station mode -> scan once
//	                   -> cache snapshot -> start AP (+ mDNS announce)
//	Connect success:   AP stays down, session ends CONNECTED
//	Connect failure:   AP restored by the connect manager
//	ExitProvisioning:  AP down, session ends EXITED
//
// A scan that fails or finds nothing still brings the access point up with
// an empty list; the device never ends up without a network surface unless
// the access point itself cannot start.
package provisioner
