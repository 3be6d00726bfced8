package bus

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

const testPath = dbus.ObjectPath("/fi/w1/wpa_supplicant1/Interfaces/0")

func TestClassifySignal(t *testing.T) {
	t.Run("ScanDone", func(t *testing.T) {
		ev, lost := classifySignal(&dbus.Signal{Path: testPath, Name: ifaceInterface + ".ScanDone", Body: []interface{}{true}}, testPath)
		assert.False(t, lost)
		assert.Equal(t, supplicant.EventScanDone, ev.Kind)
		assert.True(t, ev.Success)
	})

	t.Run("ScanFailed", func(t *testing.T) {
		ev, _ := classifySignal(&dbus.Signal{Path: testPath, Name: ifaceInterface + ".ScanDone", Body: []interface{}{false}}, testPath)
		assert.Equal(t, supplicant.EventScanDone, ev.Kind)
		assert.False(t, ev.Success)
	})

	t.Run("StateChanged", func(t *testing.T) {
		sig := &dbus.Signal{
			Path: testPath,
			Name: propertiesChanged,
			Body: []interface{}{
				ifaceInterface,
				map[string]dbus.Variant{"State": dbus.MakeVariant("completed")},
				[]string{},
			},
		}
		ev, _ := classifySignal(sig, testPath)
		assert.Equal(t, supplicant.EventStateChanged, ev.Kind)
		assert.Equal(t, supplicant.StateCompleted, ev.State)
	})

	t.Run("LegacyPropertiesChanged", func(t *testing.T) {
		sig := &dbus.Signal{
			Path: testPath,
			Name: ifaceInterface + ".PropertiesChanged",
			Body: []interface{}{map[string]dbus.Variant{"State": dbus.MakeVariant("DISCONNECTED")}},
		}
		ev, _ := classifySignal(sig, testPath)
		assert.Equal(t, supplicant.StateDisconnected, ev.State)
	})

	t.Run("OtherInterface", func(t *testing.T) {
		ev, _ := classifySignal(&dbus.Signal{Path: "/fi/w1/wpa_supplicant1/Interfaces/1", Name: ifaceInterface + ".ScanDone", Body: []interface{}{true}}, testPath)
		assert.Equal(t, supplicant.EventUnrecognized, ev.Kind)
	})

	t.Run("ServiceLost", func(t *testing.T) {
		_, lost := classifySignal(&dbus.Signal{Path: "/org/freedesktop/DBus", Name: nameOwnerChanged, Body: []interface{}{Service, ":1.5", ""}}, testPath)
		assert.True(t, lost)
	})
}

func TestRenderBSS(t *testing.T) {
	props := map[string]dbus.Variant{
		"BSSID":     dbus.MakeVariant([]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}),
		"SSID":      dbus.MakeVariant([]byte("HomeNet")),
		"Frequency": dbus.MakeVariant(uint16(2437)),
		"Signal":    dbus.MakeVariant(int16(-48)),
		"RSN": dbus.MakeVariant(map[string]dbus.Variant{
			"KeyMgmt": dbus.MakeVariant([]string{"wpa-psk"}),
		}),
	}

	row := renderBSS(props)
	assert.Equal(t, "00:11:22:33:44:55\t2437\t-48\t[WPA2-PSK][ESS]\tHomeNet", row)

	records, skipped := supplicant.ParseScanResults(supplicant.ScanTableHeader + "\n" + row + "\n")
	require.Len(t, records, 1)
	assert.Zero(t, skipped)
	assert.Equal(t, supplicant.SecurityWPA2, records[0].Security)
}

func TestSecurityFlags(t *testing.T) {
	km := func(v ...string) dbus.Variant {
		return dbus.MakeVariant(map[string]dbus.Variant{"KeyMgmt": dbus.MakeVariant(v)})
	}

	tests := []struct {
		name  string
		props map[string]dbus.Variant
		want  supplicant.SecurityKind
	}{
		{"Open", map[string]dbus.Variant{}, supplicant.SecurityOpen},
		{"WEP", map[string]dbus.Variant{"Privacy": dbus.MakeVariant(true)}, supplicant.SecurityUnknown},
		{"WPA", map[string]dbus.Variant{"WPA": km("wpa-psk")}, supplicant.SecurityWPAPSK},
		{"WPA2", map[string]dbus.Variant{"RSN": km("wpa-psk", "wpa-psk-sha256")}, supplicant.SecurityWPA2},
		{"WPA3", map[string]dbus.Variant{"RSN": km("sae")}, supplicant.SecurityWPA3},
		{"Enterprise", map[string]dbus.Variant{"RSN": km("wpa-eap")}, supplicant.SecurityUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, supplicant.ClassifySecurity(securityFlags(tt.props)))
		})
	}
}

func TestNetworkArgs(t *testing.T) {
	args := networkArgs(supplicant.NewProfile("HomeNet", "hunter22"))
	assert.Equal(t, []byte("HomeNet"), args["ssid"].Value())
	assert.Equal(t, "WPA-PSK", args["key_mgmt"].Value())
	assert.Equal(t, "hunter22", args["psk"].Value())

	open := networkArgs(supplicant.NewProfile("Cafe", ""))
	assert.Equal(t, "NONE", open["key_mgmt"].Value())
	_, hasPSK := open["psk"]
	assert.False(t, hasPSK)
}

func TestMapError(t *testing.T) {
	ctx := t.Context()

	err := mapError(ctx, supplicant.OpScan, dbus.Error{Name: Service + ".Interface.ScanError", Body: []interface{}{"Scan request rejected"}})
	assert.True(t, supplicant.IsCommandError(err))

	err = mapError(ctx, supplicant.OpStatus, dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"})
	assert.ErrorIs(t, err, supplicant.ErrDisconnected)

	err = mapError(ctx, supplicant.OpStatus, dbus.Error{Name: "org.freedesktop.DBus.Error.NoReply"})
	assert.ErrorIs(t, err, supplicant.ErrTimeout)
}
