package supplicant

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Op identifies a logical supplicant operation.
type Op uint8

const (
	// OpPing checks that the supplicant answers.
	OpPing Op = iota

	// OpScan requests a new scan. Completion is signalled by EventScanDone.
	OpScan

	// OpScanResults fetches the current scan table.
	OpScanResults

	// OpAddNetwork creates a network profile from Command.Profile.
	OpAddNetwork

	// OpSelectNetwork makes Command.NetworkID the only enabled network.
	OpSelectNetwork

	// OpRemoveNetwork deletes Command.NetworkID.
	OpRemoveNetwork

	// OpStatus reports the current interface state.
	OpStatus
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpPing:
		return "PING"
	case OpScan:
		return "SCAN"
	case OpScanResults:
		return "SCAN_RESULTS"
	case OpAddNetwork:
		return "ADD_NETWORK"
	case OpSelectNetwork:
		return "SELECT_NETWORK"
	case OpRemoveNetwork:
		return "REMOVE_NETWORK"
	case OpStatus:
		return "STATUS"
	default:
		return "UNKNOWN"
	}
}

// Command is one request to the supplicant.
type Command struct {
	Op Op

	// Profile is set for OpAddNetwork.
	Profile Profile

	// NetworkID is set for OpSelectNetwork and OpRemoveNetwork. Its form is
	// transport specific (a numeric id or an object path) and is taken from
	// a previous OpAddNetwork response.
	NetworkID string
}

// Response is the supplicant's answer to a Command.
type Response struct {
	// Raw is the reply text. For OpScanResults it is the scan table in the
	// control-interface layout (header line, then tab separated rows).
	Raw string

	// NetworkID is set for OpAddNetwork.
	NetworkID string

	// Status holds key=value pairs for OpStatus. Keys follow the control
	// interface (wpa_state, ssid, ip_address, ...).
	Status map[string]string
}

// State returns the normalized (lower case) wpa_state of a status response.
func (r Response) State() string {
	return strings.ToLower(r.Status["wpa_state"])
}

// Key management values written into network profiles.
const (
	KeyMgmtPSK  = "WPA-PSK"
	KeyMgmtNone = "NONE"
)

// Profile describes a network to join.
type Profile struct {
	SSID []byte

	// Passphrase is empty for open networks.
	Passphrase string
}

// NewProfile builds a profile for ssid. An empty passphrase selects an open
// network.
func NewProfile(ssid, passphrase string) Profile {
	return Profile{SSID: []byte(ssid), Passphrase: passphrase}
}

// KeyMgmt returns the key management the profile requires.
func (p Profile) KeyMgmt() string {
	if p.Passphrase == "" {
		return KeyMgmtNone
	}
	return KeyMgmtPSK
}

// RawPSK returns the 256-bit pre-shared key derived from the passphrase and
// SSID as 64 hex digits, or "" for open networks.
func (p Profile) RawPSK() string {
	if p.Passphrase == "" {
		return ""
	}
	return DerivePSK(p.Passphrase, p.SSID)
}

// DerivePSK computes the IEEE 802.11i passphrase-to-PSK mapping
// (PBKDF2-SHA1, 4096 iterations, 32 bytes) and returns it hex encoded.
func DerivePSK(passphrase string, ssid []byte) string {
	key := pbkdf2.Key([]byte(passphrase), ssid, 4096, 32, sha1.New)
	return hex.EncodeToString(key)
}
