package provisioner

import (
	"context"
	"log/slog"
	"sync"
)

// portalSurface is what the user reaches during provisioning: the access
// point plus its mDNS announcement. The announcement follows the access
// point, including the stop and restore done by the connect manager.
type portalSurface struct {
	hotspot   Hotspot
	announcer Announcer
	logger    *slog.Logger

	mu        sync.Mutex
	sessionID string
}

func (p *portalSurface) setSession(id string) {
	p.mu.Lock()
	p.sessionID = id
	p.mu.Unlock()
}

// Start brings the access point up, then announces it. An announcement
// failure is logged; the portal is still reachable by address.
func (p *portalSurface) Start(ctx context.Context) error {
	if err := p.hotspot.Start(ctx); err != nil {
		p.withdraw()
		return err
	}
	if p.announcer == nil {
		return nil
	}
	p.mu.Lock()
	id := p.sessionID
	p.mu.Unlock()
	if err := p.announcer.Start(ctx, id); err != nil {
		p.logger.Warn("portal announcement failed", "error", err)
	}
	return nil
}

// Stop withdraws the announcement, then stops the access point.
func (p *portalSurface) Stop(ctx context.Context) error {
	p.withdraw()
	return p.hotspot.Stop(ctx)
}

func (p *portalSurface) withdraw() {
	if p.announcer == nil {
		return
	}
	if err := p.announcer.Stop(); err != nil {
		p.logger.Warn("withdrawing portal announcement", "error", err)
	}
}
