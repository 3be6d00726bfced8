package discovery_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wifiprov/wifiprov-go/pkg/discovery"
)

func TestMDNSAdvertiserLifecycle(t *testing.T) {
	adv, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	if err != nil {
		t.Fatalf("Failed to create advertiser: %v", err)
	}
	defer adv.Stop()

	info := &discovery.PortalInfo{Instance: "wifiprov-test", Port: 18080, SSID: "Setup-Test"}

	assert.ErrorIs(t, adv.Update(info), discovery.ErrNotFound)

	if err := adv.Advertise(context.Background(), info); err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}

	// Update on a live server is left to the announcer tests: zeroconf
	// rewrites its TXT records without locking while it is still announcing.
	assert.NoError(t, adv.Stop())
	assert.NoError(t, adv.Stop())
}

func TestMDNSAdvertiserRejectsInvalid(t *testing.T) {
	adv, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	if err != nil {
		t.Fatalf("Failed to create advertiser: %v", err)
	}

	err = adv.Advertise(context.Background(), &discovery.PortalInfo{Instance: "x"})
	assert.ErrorIs(t, err, discovery.ErrMissingRequired)
}
