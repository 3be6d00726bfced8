package supplicant

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// SecurityKind classifies the authentication a network requires.
type SecurityKind uint8

const (
	// SecurityUnknown covers WEP, enterprise-only and unrecognized networks.
	SecurityUnknown SecurityKind = iota

	// SecurityOpen requires no credentials.
	SecurityOpen

	// SecurityWPAPSK is WPA (version 1) with a pre-shared key.
	SecurityWPAPSK

	// SecurityWPA2 is RSN with a pre-shared key.
	SecurityWPA2

	// SecurityWPA3 is RSN with SAE.
	SecurityWPA3
)

// String returns the security name.
func (s SecurityKind) String() string {
	switch s {
	case SecurityOpen:
		return "OPEN"
	case SecurityWPAPSK:
		return "WPA-PSK"
	case SecurityWPA2:
		return "WPA2"
	case SecurityWPA3:
		return "WPA3"
	default:
		return "UNKNOWN"
	}
}

// NetworkRecord is one network seen during a scan.
// Records are treated as immutable once produced; use Clone before handing a
// record to code that may keep it.
type NetworkRecord struct {
	// SSID is the raw network name. It may not be valid UTF-8.
	SSID []byte

	// Signal is the signal level in dBm as reported by the supplicant.
	Signal int

	// Security is the strongest key management the network advertises.
	Security SecurityKind
}

// DisplaySSID returns the SSID as text, replacing invalid UTF-8 sequences.
func (r NetworkRecord) DisplaySSID() string {
	if utf8.Valid(r.SSID) {
		return string(r.SSID)
	}
	return strings.ToValidUTF8(string(r.SSID), "�")
}

// SignalPercent maps the dBm level onto 0-100, saturating at -100 and -50 dBm.
func (r NetworkRecord) SignalPercent() int {
	level := r.Signal
	if level < -100 {
		level = -100
	}
	if level > -50 {
		level = -50
	}
	return (level + 100) * 2
}

// Clone returns a deep copy of the record.
func (r NetworkRecord) Clone() NetworkRecord {
	r.SSID = bytes.Clone(r.SSID)
	return r
}

// Equal reports whether two records carry the same values.
func (r NetworkRecord) Equal(o NetworkRecord) bool {
	return bytes.Equal(r.SSID, o.SSID) && r.Signal == o.Signal && r.Security == o.Security
}
