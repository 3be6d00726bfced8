package command

import (
	"context"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// ReadyPoll is the STATUS polling interval of AwaitReady.
const ReadyPoll = 100 * time.Millisecond

// Doer issues supplicant commands. *Channel implements it.
type Doer interface {
	Do(ctx context.Context, cmd supplicant.Command) (supplicant.Response, error)
}

var _ Doer = (*Channel)(nil)

// AwaitReady polls STATUS until the interface has left interface_disabled,
// which it enters while hostapd owns the radio. It gives up after bound and
// reports whether the interface became ready.
func AwaitReady(ctx context.Context, d Doer, bound time.Duration) bool {
	if bound <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	for {
		resp, err := d.Do(ctx, supplicant.Command{Op: supplicant.OpStatus})
		if err == nil && resp.State() != supplicant.StateInterfaceDisabled {
			return true
		}

		t := time.NewTimer(ReadyPoll)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}
