package supplicant

import (
	"bufio"
	"strconv"
	"strings"
)

// ParseScanResults parses a scan table:
//
//	bssid / frequency / signal level / flags / ssid
//	00:11:22:33:44:55	2437	-48	[WPA2-PSK-CCMP][ESS]	HomeNet
//
// Rows keep the supplicant's order. Rows with missing fields, a non-numeric
// signal level, or an empty (hidden) SSID are skipped; the number of skipped
// rows is returned alongside the records.
func ParseScanResults(table string) ([]NetworkRecord, int) {
	var (
		records []NetworkRecord
		skipped int
	)

	sc := bufio.NewScanner(strings.NewReader(table))
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "bssid /") {
			continue
		}

		rec, ok := parseScanRow(line)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

func parseScanRow(line string) (NetworkRecord, bool) {
	// The SSID is the last field and may itself contain escaped tabs only,
	// so split into at most five parts.
	parts := strings.SplitN(line, "\t", 5)
	if len(parts) < 5 {
		return NetworkRecord{}, false
	}

	level, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return NetworkRecord{}, false
	}

	ssid := UnescapeSSID(parts[4])
	if len(ssid) == 0 || isAllZero(ssid) {
		return NetworkRecord{}, false
	}

	return NetworkRecord{
		SSID:     ssid,
		Signal:   level,
		Security: ClassifySecurity(parts[3]),
	}, true
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// ClassifySecurity derives the security kind from a flags field such as
// "[WPA2-PSK-CCMP][ESS]".
func ClassifySecurity(flags string) SecurityKind {
	f := strings.ToUpper(flags)
	switch {
	case strings.Contains(f, "SAE"):
		return SecurityWPA3
	case strings.Contains(f, "EAP") && !strings.Contains(f, "PSK"):
		return SecurityUnknown
	case strings.Contains(f, "WPA2") || strings.Contains(f, "RSN"):
		return SecurityWPA2
	case strings.Contains(f, "WPA"):
		return SecurityWPAPSK
	case strings.Contains(f, "WEP"):
		return SecurityUnknown
	default:
		return SecurityOpen
	}
}

// UnescapeSSID reverses the supplicant's printf-style escaping: \xHH becomes
// the byte HH, \\ and \" become the bare character, and malformed sequences
// are kept literally.
func UnescapeSSID(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out = append(out, c)
			continue
		}

		switch next := s[i+1]; next {
		case 'x', 'X':
			if i+3 < len(s) {
				hi, ok1 := hexVal(s[i+2])
				lo, ok2 := hexVal(s[i+3])
				if ok1 && ok2 {
					out = append(out, hi<<4|lo)
					i += 3
					continue
				}
			}
			out = append(out, c)
		case '\\', '"':
			out = append(out, next)
			i++
		case 'n':
			out = append(out, '\n')
			i++
		case 't':
			out = append(out, '\t')
			i++
		default:
			out = append(out, c, next)
			i++
		}
	}
	return out
}

// EscapeSSID applies the supplicant's escaping to raw SSID bytes.
func EscapeSSID(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c == '\\' || c == '"':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			sb.WriteString(`\x`)
			sb.WriteByte(hexDigits[c>>4])
			sb.WriteByte(hexDigits[c&0x0f])
		}
	}
	return sb.String()
}

const hexDigits = "0123456789abcdef"

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// ParseStatus parses key=value lines as returned by STATUS.
func ParseStatus(text string) map[string]string {
	status := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if ok && k != "" {
			status[k] = v
		}
	}
	return status
}

// FormatScanRow renders one scan table row. Transports that do not receive
// the table verbatim use it to produce Response.Raw for OpScanResults.
func FormatScanRow(bssid string, freq, level int, flags string, ssid []byte) string {
	return bssid + "\t" + strconv.Itoa(freq) + "\t" + strconv.Itoa(level) + "\t" + flags + "\t" + EscapeSSID(ssid)
}

// ScanTableHeader is the first line of a scan table.
const ScanTableHeader = "bssid / frequency / signal level / flags / ssid"
