// Package hotspot runs the provisioning access point: an address on the
// wireless interface, hostapd for the radio, and dnsmasq for DHCP and the
// captive DNS that points every name at the gateway.
//
// Start brings the pieces up in order and, if any step fails, takes down
// whatever already came up before returning. Stop always ends in
// StateStopped. Both are idempotent, and a Manager in StateRunning whose
// helper has died is relaunched by the next Start.
//
// Process and address handling sit behind the Launcher and Addresser
// interfaces; ExecLauncher and IPAddresser are the production
// implementations and package fake provides test doubles.
package hotspot
