package fake

import (
	"context"
	"strconv"
	"sync"

	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// Radio is a small behavioural model of a supplicant: it answers scans from a
// fixed table, accepts network profiles and, after SELECT, reports completed
// when the passphrase matches and otherwise stays silent.
type Radio struct {
	T *Transport

	mu       sync.Mutex
	networks map[string]string
	table    string
	nextID   int
	state    string
	selected map[string]supplicant.Profile
}

// NewRadio returns a radio that knows networks (SSID to passphrase) and
// reports table from SCAN_RESULTS.
func NewRadio(networks map[string]string, table string) *Radio {
	r := &Radio{
		networks: networks,
		table:    table,
		state:    "disconnected",
		selected: make(map[string]supplicant.Profile),
	}
	r.T = New(r.handle)
	return r
}

// State returns the modelled wpa_state.
func (r *Radio) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Radio) handle(_ context.Context, cmd supplicant.Command) (supplicant.Response, error) {
	switch cmd.Op {
	case supplicant.OpPing:
		return supplicant.Response{Raw: "PONG"}, nil

	case supplicant.OpScan:
		go r.T.EmitLine("<2>CTRL-EVENT-SCAN-RESULTS ")
		return supplicant.Response{Raw: "OK"}, nil

	case supplicant.OpScanResults:
		return supplicant.Response{Raw: r.table}, nil

	case supplicant.OpAddNetwork:
		r.mu.Lock()
		id := strconv.Itoa(r.nextID)
		r.nextID++
		r.selected[id] = cmd.Profile
		r.mu.Unlock()
		return supplicant.Response{Raw: id, NetworkID: id}, nil

	case supplicant.OpSelectNetwork:
		r.mu.Lock()
		p, ok := r.selected[cmd.NetworkID]
		if !ok {
			r.mu.Unlock()
			return supplicant.Response{}, &supplicant.CommandError{Op: cmd.Op, Reason: "FAIL"}
		}
		pass, known := r.networks[string(p.SSID)]
		if known && pass == p.Passphrase {
			r.state = supplicant.StateCompleted
			r.mu.Unlock()
			go r.T.EmitLine("<3>CTRL-EVENT-CONNECTED - Connection to 02:00:00:00:00:01 completed [id=" + cmd.NetworkID + "]")
			return supplicant.Response{Raw: "OK"}, nil
		}
		r.state = "scanning"
		r.mu.Unlock()
		return supplicant.Response{Raw: "OK"}, nil

	case supplicant.OpRemoveNetwork:
		r.mu.Lock()
		delete(r.selected, cmd.NetworkID)
		if r.state != supplicant.StateCompleted {
			r.state = supplicant.StateDisconnected
		}
		r.mu.Unlock()
		return supplicant.Response{Raw: "OK"}, nil

	case supplicant.OpStatus:
		r.mu.Lock()
		state := r.state
		r.mu.Unlock()
		return supplicant.Response{
			Raw:    "wpa_state=" + state,
			Status: map[string]string{"wpa_state": state},
		}, nil
	}
	return supplicant.Response{}, &supplicant.CommandError{Op: cmd.Op, Reason: "UNKNOWN COMMAND"}
}
