// Package discovery announces the provisioning portal over mDNS/DNS-SD.
//
// While the access point is up the portal is registered as an _http._tcp
// service on the access point interface, so clients that support DNS-SD
// can open it without knowing the gateway address. TXT records carry the
// portal path, the access point SSID and the session ID.
//
// The package also renders the Wi-Fi join payload ("WIFI:" URI) that QR
// code generators understand, letting a phone join the access point by
// scanning a label.
package discovery
