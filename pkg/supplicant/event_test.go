package supplicant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCtrlEvent(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		kind    EventKind
		state   string
		reason  string
		success bool
	}{
		{"ScanResults", "<2>CTRL-EVENT-SCAN-RESULTS ", EventScanDone, "", "", true},
		{"ScanFailed", "<3>CTRL-EVENT-SCAN-FAILED ret=-16", EventScanDone, "", "-16", false},
		{"Connected", "<3>CTRL-EVENT-CONNECTED - Connection to 00:11:22:33:44:55 completed [id=0 id_str=]", EventStateChanged, StateCompleted, "", false},
		{"StateChange", "<3>CTRL-EVENT-STATE-CHANGE id=0 state=1 BSSID=00:00:00:00:00:00 SSID=", EventStateChanged, StateInterfaceDisabled, "", false},
		{"Disconnected", "<3>CTRL-EVENT-DISCONNECTED bssid=00:11:22:33:44:55 reason=3 locally_generated=1", EventDisconnected, "", "3", false},
		{"WrongKey", "<3>CTRL-EVENT-SSID-TEMP-DISABLED id=0 ssid=\"Home\" auth_failures=1 duration=10 reason=WRONG_KEY", EventAuthRejected, "", ReasonWrongKey, false},
		{"OtherTempDisable", "<3>CTRL-EVENT-SSID-TEMP-DISABLED id=0 ssid=\"Home\" auth_failures=1 duration=10 reason=CONN_FAILED", EventUnrecognized, "", "", false},
		{"NotFound", "<3>CTRL-EVENT-NETWORK-NOT-FOUND", EventAuthRejected, "", ReasonNetworkNotFound, false},
		{"NoPriority", "CTRL-EVENT-SCAN-RESULTS", EventScanDone, "", "", true},
		{"Other", "<3>CTRL-EVENT-BSS-ADDED 5 00:11:22:33:44:55", EventUnrecognized, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ClassifyCtrlEvent(tt.line)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.state, ev.State)
			assert.Equal(t, tt.reason, ev.Reason)
			assert.Equal(t, tt.success, ev.Success)
			assert.Equal(t, tt.line, ev.Raw)
			assert.False(t, ev.Received.IsZero())
		})
	}
}

func TestIsUnsolicited(t *testing.T) {
	assert.True(t, IsUnsolicited("<3>CTRL-EVENT-SCAN-RESULTS"))
	assert.False(t, IsUnsolicited("OK"))
	assert.False(t, IsUnsolicited("bssid / frequency / signal level / flags / ssid"))
}
