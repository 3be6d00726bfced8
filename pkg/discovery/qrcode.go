package discovery

import (
	"strings"
)

// WiFiQR is the join payload for a Wi-Fi network, in the "WIFI:" format
// phone cameras recognise.
//
// Format: WIFI:T:<WPA|nopass>;S:<ssid>;P:<passphrase>;;
type WiFiQR struct {
	SSID       string
	Passphrase string
	Hidden     bool
}

// NewWiFiQR creates the payload for the access point. An empty passphrase
// means an open network.
func NewWiFiQR(ssid, passphrase string) (*WiFiQR, error) {
	if ssid == "" {
		return nil, ErrInvalidWiFiQR
	}
	return &WiFiQR{SSID: ssid, Passphrase: passphrase}, nil
}

// String returns the payload suitable for encoding.
func (qr *WiFiQR) String() string {
	var b strings.Builder
	b.WriteString("WIFI:")
	if qr.Passphrase == "" {
		b.WriteString("T:nopass;")
	} else {
		b.WriteString("T:WPA;")
	}
	b.WriteString("S:" + escapeQR(qr.SSID) + ";")
	if qr.Passphrase != "" {
		b.WriteString("P:" + escapeQR(qr.Passphrase) + ";")
	}
	if qr.Hidden {
		b.WriteString("H:true;")
	}
	b.WriteString(";")
	return b.String()
}

// ParseWiFiQR parses a "WIFI:" payload.
func ParseWiFiQR(content string) (*WiFiQR, error) {
	body, ok := strings.CutPrefix(content, "WIFI:")
	if !ok {
		return nil, ErrInvalidWiFiQR
	}

	qr := &WiFiQR{}
	var security string
	for _, field := range splitQR(body) {
		if field == "" {
			continue
		}
		k, v, ok := strings.Cut(field, ":")
		if !ok {
			return nil, ErrInvalidWiFiQR
		}
		switch k {
		case "T":
			security = v
		case "S":
			qr.SSID = v
		case "P":
			qr.Passphrase = v
		case "H":
			qr.Hidden = v == "true"
		}
	}
	if qr.SSID == "" {
		return nil, ErrInvalidWiFiQR
	}
	if security == "nopass" {
		qr.Passphrase = ""
	}
	return qr, nil
}

const qrSpecial = `\;,:"`

func escapeQR(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(qrSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitQR splits on unescaped ';' and removes the escapes.
func splitQR(s string) []string {
	var (
		fields []string
		cur    strings.Builder
		escape bool
	)
	for _, r := range s {
		switch {
		case escape:
			cur.WriteRune(r)
			escape = false
		case r == '\\':
			escape = true
		case r == ';':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}
