package supplicant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScanResults(t *testing.T) {
	t.Run("SkipsMalformedRows", func(t *testing.T) {
		table := ScanTableHeader + "\n" +
			"00:11:22:33:44:55\t2437\t-48\t[WPA2-PSK-CCMP][ESS]\tHomeNet\n" +
			"00:11:22:33:44:66\t2412\tgarbage\n" +
			"00:11:22:33:44:77\t5180\t-71\t[ESS]\tCafe\n"

		records, skipped := ParseScanResults(table)
		require.Len(t, records, 2)
		assert.Equal(t, 1, skipped)

		assert.Equal(t, "HomeNet", records[0].DisplaySSID())
		assert.Equal(t, -48, records[0].Signal)
		assert.Equal(t, SecurityWPA2, records[0].Security)

		assert.Equal(t, "Cafe", records[1].DisplaySSID())
		assert.Equal(t, SecurityOpen, records[1].Security)
	})

	t.Run("NonNumericSignal", func(t *testing.T) {
		records, skipped := ParseScanResults("aa:bb:cc:dd:ee:ff\t2412\tstrong\t[ESS]\tX\n")
		assert.Empty(t, records)
		assert.Equal(t, 1, skipped)
	})

	t.Run("HiddenNetworks", func(t *testing.T) {
		table := "aa:bb:cc:dd:ee:01\t2412\t-40\t[ESS]\t\n" +
			"aa:bb:cc:dd:ee:02\t2412\t-40\t[ESS]\t\\x00\\x00\n"
		records, skipped := ParseScanResults(table)
		assert.Empty(t, records)
		assert.Equal(t, 2, skipped)
	})

	t.Run("EscapedSSID", func(t *testing.T) {
		records, _ := ParseScanResults("aa:bb:cc:dd:ee:01\t2412\t-40\t[ESS]\tCaf\\xc3\\xa9 \\\"1\\\"\n")
		require.Len(t, records, 1)
		assert.Equal(t, `Café "1"`, records[0].DisplaySSID())
	})

	t.Run("Empty", func(t *testing.T) {
		records, skipped := ParseScanResults(ScanTableHeader + "\n")
		assert.Empty(t, records)
		assert.Zero(t, skipped)
	})
}

func TestClassifySecurity(t *testing.T) {
	tests := []struct {
		flags string
		want  SecurityKind
	}{
		{"[WPA2-SAE-CCMP][ESS]", SecurityWPA3},
		{"[WPA2-PSK+SAE-CCMP][ESS]", SecurityWPA3},
		{"[WPA2-PSK-CCMP][ESS]", SecurityWPA2},
		{"[RSN-PSK-CCMP][ESS]", SecurityWPA2},
		{"[WPA-PSK-TKIP][ESS]", SecurityWPAPSK},
		{"[WEP][ESS]", SecurityUnknown},
		{"[WPA2-EAP-CCMP][ESS]", SecurityUnknown},
		{"[ESS]", SecurityOpen},
		{"", SecurityOpen},
	}

	for _, tt := range tests {
		t.Run(tt.flags, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySecurity(tt.flags))
		})
	}
}

func TestEscapeSSIDRoundTrip(t *testing.T) {
	raw := []byte{'a', 0x00, 0xff, '\\', '"', '\t', 'z'}
	assert.Equal(t, raw, UnescapeSSID(EscapeSSID(raw)))
}

func TestUnescapeSSIDMalformed(t *testing.T) {
	assert.Equal(t, []byte(`\xZZ`), UnescapeSSID(`\xZZ`))
	assert.Equal(t, []byte(`end\`), UnescapeSSID(`end\`))
}

func TestParseStatus(t *testing.T) {
	status := ParseStatus("bssid=00:11:22:33:44:55\nssid=HomeNet\nwpa_state=COMPLETED\nip_address=10.0.0.7\n")
	assert.Equal(t, "HomeNet", status["ssid"])
	assert.Equal(t, "COMPLETED", status["wpa_state"])
	assert.Equal(t, "completed", Response{Status: status}.State())
}
