package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWiFiQRString(t *testing.T) {
	tests := []struct {
		name string
		qr   WiFiQR
		want string
	}{
		{"secured", WiFiQR{SSID: "Setup-1234", Passphrase: "provision-me"}, "WIFI:T:WPA;S:Setup-1234;P:provision-me;;"},
		{"open", WiFiQR{SSID: "Setup"}, "WIFI:T:nopass;S:Setup;;"},
		{"escaped", WiFiQR{SSID: `a;b`, Passphrase: `p:w\d`}, `WIFI:T:WPA;S:a\;b;P:p\:w\\d;;`},
		{"hidden", WiFiQR{SSID: "h", Hidden: true}, "WIFI:T:nopass;S:h;H:true;;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.qr.String())

			parsed, err := ParseWiFiQR(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.qr, *parsed)
		})
	}
}

func TestParseWiFiQRInvalid(t *testing.T) {
	for _, in := range []string{"", "MASH:1:2:3", "WIFI:T:WPA;;", "WIFI:garbage;;"} {
		_, err := ParseWiFiQR(in)
		assert.ErrorIs(t, err, ErrInvalidWiFiQR, "input %q", in)
	}
}

func TestNewWiFiQR(t *testing.T) {
	_, err := NewWiFiQR("", "x")
	assert.ErrorIs(t, err, ErrInvalidWiFiQR)

	qr, err := NewWiFiQR("Setup", "")
	require.NoError(t, err)
	assert.Equal(t, "WIFI:T:nopass;S:Setup;;", qr.String())
}
