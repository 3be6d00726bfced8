package discovery

import (
	"errors"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceTypePortal is the DNS-SD type the portal is registered under.
	ServiceTypePortal = "_http._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the portal port when none is configured.
	DefaultPort = 80

	// DefaultInstance is the instance name when none is configured.
	DefaultInstance = "Wi-Fi Setup"

	// DefaultPath is the portal root.
	DefaultPath = "/"
)

// TXT record keys.
const (
	TXTKeyVersion = "txtvers"
	TXTKeyPath    = "path" // DNS-SD convention for _http._tcp
	TXTKeySSID    = "ssid"
	TXTKeySession = "sid"

	txtVersion = "1"
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for FindPortal.
	BrowseTimeout = 10 * time.Second

	// DefaultTTL is the DNS record TTL.
	DefaultTTL = 120 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrTXTTooLarge         = errors.New("TXT records exceed 400 bytes")
	ErrNotFound            = errors.New("service not found")
	ErrInvalidWiFiQR       = errors.New("invalid Wi-Fi QR payload")
)

// PortalInfo describes what is advertised.
type PortalInfo struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Port is the web port. Zero means DefaultPort.
	Port uint16

	// Path is the portal root. Empty means DefaultPath.
	Path string

	// SSID is the access point network name.
	SSID string

	// SessionID identifies the provisioning session.
	SessionID string
}

// Validate checks the info can be registered.
func (p *PortalInfo) Validate() error {
	if err := ValidateInstanceName(p.Instance); err != nil {
		return err
	}
	if p.SSID == "" {
		return ErrMissingRequired
	}
	size := 0
	for _, s := range TXTRecordsToStrings(EncodePortalTXT(p)) {
		size += len(s) + 1
	}
	if size > MaxTXTRecordSize {
		return ErrTXTTooLarge
	}
	return nil
}

// PortalService is a portal found by browsing.
type PortalService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	Path         string
	SSID         string
	SessionID    string
}

// URL returns the portal address using the first known address.
func (s *PortalService) URL() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return portalURL(host, s.Port, s.Path)
}
