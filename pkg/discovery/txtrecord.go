package discovery

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodePortalTXT creates TXT records for the portal.
func EncodePortalTXT(info *PortalInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyVersion: txtVersion,
		TXTKeyPath:    info.Path,
		TXTKeySSID:    info.SSID,
	}
	if txt[TXTKeyPath] == "" {
		txt[TXTKeyPath] = DefaultPath
	}
	if info.SessionID != "" {
		txt[TXTKeySession] = info.SessionID
	}
	return txt
}

// DecodePortalTXT parses portal TXT records.
func DecodePortalTXT(txt TXTRecordMap) (*PortalInfo, error) {
	if v, ok := txt[TXTKeyVersion]; ok && v != txtVersion {
		return nil, fmt.Errorf("%w: txtvers %q", ErrInvalidTXTRecord, v)
	}
	ssid, ok := txt[TXTKeySSID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeySSID)
	}
	info := &PortalInfo{
		Path:      txt[TXTKeyPath],
		SSID:      ssid,
		SessionID: txt[TXTKeySession],
	}
	if info.Path == "" {
		info.Path = DefaultPath
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, ok := strings.Cut(s, "=")
		if ok {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

func portalURL(host string, port uint16, path string) string {
	if path == "" {
		path = DefaultPath
	}
	if port == 0 {
		port = DefaultPort
	}
	if port != DefaultPort {
		host = net.JoinHostPort(host, strconv.Itoa(int(port)))
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + host + path
}
