package bus

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// classifySignal turns a bus signal into an event. lost is true when the
// supplicant dropped its bus name.
func classifySignal(sig *dbus.Signal, path dbus.ObjectPath) (ev supplicant.Event, lost bool) {
	ev = supplicant.Event{
		Raw:      fmt.Sprintf("%s %v", sig.Name, sig.Body),
		Received: time.Now(),
	}

	switch sig.Name {
	case nameOwnerChanged:
		// Body: name, old owner, new owner.
		if len(sig.Body) == 3 {
			name, _ := sig.Body[0].(string)
			newOwner, _ := sig.Body[2].(string)
			if name == Service && newOwner == "" {
				return ev, true
			}
		}
		return ev, false
	}

	if sig.Path != path {
		return ev, false
	}

	switch sig.Name {
	case ifaceInterface + ".ScanDone":
		ev.Kind = supplicant.EventScanDone
		if len(sig.Body) > 0 {
			ev.Success, _ = sig.Body[0].(bool)
		}

	case propertiesChanged:
		// Body: interface, changed, invalidated.
		if len(sig.Body) < 2 {
			return ev, false
		}
		if iface, _ := sig.Body[0].(string); iface != ifaceInterface {
			return ev, false
		}
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		classifyProperties(&ev, changed)

	case ifaceInterface + ".PropertiesChanged":
		// Older supplicants emit their own signal with only the dictionary.
		if len(sig.Body) < 1 {
			return ev, false
		}
		changed, _ := sig.Body[0].(map[string]dbus.Variant)
		classifyProperties(&ev, changed)
	}
	return ev, false
}

func classifyProperties(ev *supplicant.Event, changed map[string]dbus.Variant) {
	v, ok := changed["State"]
	if !ok {
		return
	}
	state, ok := v.Value().(string)
	if !ok {
		return
	}
	ev.Kind = supplicant.EventStateChanged
	ev.State = strings.ToLower(state)
	if r, ok := changed["DisconnectReason"]; ok {
		ev.Reason = fmt.Sprint(r.Value())
	}
}

// renderBSS renders BSS properties as one scan table row.
func renderBSS(props map[string]dbus.Variant) string {
	var (
		bssid string
		ssid  []byte
		freq  int
		level int
	)

	if v, ok := props["BSSID"].Value().([]byte); ok && len(v) == 6 {
		bssid = net.HardwareAddr(v).String()
	} else {
		bssid = "00:00:00:00:00:00"
	}
	if v, ok := props["SSID"].Value().([]byte); ok {
		ssid = v
	}
	if v, ok := props["Frequency"].Value().(uint16); ok {
		freq = int(v)
	}
	if v, ok := props["Signal"].Value().(int16); ok {
		level = int(v)
	}

	return supplicant.FormatScanRow(bssid, freq, level, securityFlags(props), ssid)
}

// securityFlags builds control-interface style flags from the WPA and RSN
// dictionaries so supplicant.ClassifySecurity applies to both transports.
func securityFlags(props map[string]dbus.Variant) string {
	var sb strings.Builder

	wpa := keyMgmt(props["WPA"])
	rsn := keyMgmt(props["RSN"])

	for _, km := range wpa {
		switch {
		case strings.HasPrefix(km, "wpa-psk"):
			sb.WriteString("[WPA-PSK]")
		case strings.HasPrefix(km, "wpa-eap"):
			sb.WriteString("[WPA-EAP]")
		}
	}
	for _, km := range rsn {
		switch {
		case km == "sae" || strings.HasPrefix(km, "sae-"):
			sb.WriteString("[WPA2-SAE]")
		case strings.HasPrefix(km, "wpa-psk") || strings.HasPrefix(km, "wpa-ft-psk"):
			sb.WriteString("[WPA2-PSK]")
		case strings.HasPrefix(km, "wpa-eap") || strings.HasPrefix(km, "wpa-ft-eap"):
			sb.WriteString("[WPA2-EAP]")
		}
	}

	if len(wpa) == 0 && len(rsn) == 0 {
		if privacy, _ := props["Privacy"].Value().(bool); privacy {
			sb.WriteString("[WEP]")
		}
	}
	sb.WriteString("[ESS]")
	return sb.String()
}

func keyMgmt(v dbus.Variant) []string {
	dict, ok := v.Value().(map[string]dbus.Variant)
	if !ok {
		return nil
	}
	km, _ := dict["KeyMgmt"].Value().([]string)
	return slices.Clone(km)
}
