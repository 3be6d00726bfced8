package provisioner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wifiprov/wifiprov-go/pkg/cache"
	"github.com/wifiprov/wifiprov-go/pkg/command"
	"github.com/wifiprov/wifiprov-go/pkg/connect"
	"github.com/wifiprov/wifiprov-go/pkg/events"
	"github.com/wifiprov/wifiprov-go/pkg/hotspot"
	"github.com/wifiprov/wifiprov-go/pkg/log"
	"github.com/wifiprov/wifiprov-go/pkg/persistence"
	"github.com/wifiprov/wifiprov-go/pkg/policy"
	"github.com/wifiprov/wifiprov-go/pkg/scan"
	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// Service is the provisioning backend.
type Service struct {
	cfg       Config
	logger    *slog.Logger
	trace     log.Logger
	transport supplicant.Transport

	cmd       *command.Channel
	listener  *events.Listener
	scanner   *scan.Scanner
	connector *connect.Manager
	hotspot   Hotspot
	surface   *portalSurface
	cache     *cache.Cache

	// opMu orders session transitions against connect attempts. Connect
	// holds it shared; Enter, Exit, Close and relaunches hold it exclusively.
	opMu sync.RWMutex

	mu       sync.Mutex
	started  bool
	closed   bool
	session  *persistence.SessionRecord
	handlers []EventHandler
}

// New composes a service over a supplicant transport and an access point.
// The service owns t and closes it in Close.
func New(t supplicant.Transport, hs Hotspot, cfg Config) *Service {
	s := &Service{
		cfg:       cfg,
		logger:    cfg.Logger,
		trace:     log.OrNoop(cfg.Trace),
		transport: t,
		hotspot:   hs,
		cache:     cache.New(),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	s.cmd = command.New(t, command.Config{
		Timeout:   cfg.CommandTimeout,
		Interface: cfg.Interface,
		Logger:    s.logger,
		Trace:     cfg.Trace,
	})
	s.listener = events.NewListener(t, events.ListenerConfig{
		RetryInterval: cfg.ReconnectInterval,
		Interface:     cfg.Interface,
		Logger:        s.logger,
		Trace:         cfg.Trace,
	})
	s.scanner = scan.New(s.cmd, s.listener, scan.Config{
		Timeout: cfg.ScanTimeout,
		Logger:  s.logger,
	})
	s.surface = &portalSurface{hotspot: hs, announcer: cfg.Announcer, logger: s.logger}
	s.connector = connect.New(s.cmd, s.listener, s.surface, connect.Config{
		Timeout:        cfg.ConnectTimeout,
		SettleDelay:    cfg.SettleDelay,
		RestoreTimeout: cfg.RestoreTimeout,
		DHCP:           cfg.DHCP,
		DHCPTimeout:    cfg.DHCPTimeout,
		Interface:      cfg.Interface,
		Logger:         s.logger,
		Trace:          cfg.Trace,
	})
	return s
}

// Start opens the supplicant event stream. If the supplicant is not up yet
// the listener keeps retrying in the background.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	return s.listener.Start(ctx)
}

// OnEvent registers a handler for service events.
func (s *Service) OnEvent(h EventHandler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// OnConnectPhase sets a callback for connect attempt phases.
func (s *Service) OnConnectPhase(fn func(old, new connect.Phase)) {
	s.connector.OnPhase(fn)
}

// Listener exposes the event listener, mainly for its link state.
func (s *Service) Listener() *events.Listener { return s.listener }

// Status returns the access point state.
func (s *Service) Status() hotspot.State {
	return s.hotspot.State()
}

// Session returns the active session, if any.
func (s *Service) Session() (SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return SessionInfo{}, false
	}
	return sessionInfo(s.session), true
}

// EnterProvisioning starts a provisioning session: it frees the radio,
// scans once, caches the result and brings the access point up. A failed or
// empty scan still starts the access point with an empty list. If the access
// point cannot start the error is returned and no session remains.
func (s *Service) EnterProvisioning(ctx context.Context) (SessionInfo, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return SessionInfo{}, ErrClosed
	case s.session != nil:
		s.mu.Unlock()
		return SessionInfo{}, ErrSessionActive
	}
	s.mu.Unlock()

	rec := persistence.SessionRecord{ID: uuid.NewString(), StartedAt: time.Now()}
	s.setSession(rec.ID)
	s.traceSession(rec.ID, "IDLE", "SCANNING", "")
	s.logger.Info("entering provisioning", "session", rec.ID)

	if err := s.surface.Stop(ctx); err != nil {
		s.logger.Warn("access point stop reported an error", "error", err)
	}
	if !command.AwaitReady(ctx, s.cmd, s.cfg.SettleDelay) {
		s.logger.Debug("interface did not settle before scan")
	}

	records, err := s.scanner.Scan(ctx)
	if err != nil {
		s.logger.Warn("entry scan failed, serving an empty list", "error", err)
		rec.ScanError = err.Error()
		records = nil
	} else if len(records) == 0 {
		s.logger.Info("entry scan found no networks")
	}

	s.cache.Reset()
	snap, err := s.cache.Populate(rec.ID, records)
	if err != nil {
		s.setSession("")
		return SessionInfo{}, err
	}
	rec.Networks = snap.Len()

	if err := s.surface.Start(ctx); err != nil {
		s.logger.Error("access point failed to start", "error", err)
		s.cache.Reset()
		rec.EndedAt = time.Now()
		rec.Outcome = OutcomeAPFailed
		s.persist(rec)
		s.setSession("")
		s.traceSession(rec.ID, "SCANNING", "IDLE", err.Error())
		s.emit(Event{Type: EventSessionEnded, SessionID: rec.ID, Outcome: OutcomeAPFailed, Err: err})
		return SessionInfo{}, fmt.Errorf("provisioner: start access point: %w", err)
	}

	s.mu.Lock()
	s.session = &rec
	info := sessionInfo(&rec)
	s.mu.Unlock()

	s.persist(rec)
	s.traceSession(rec.ID, "SCANNING", "ACTIVE", "")
	s.logger.Info("provisioning active", "session", rec.ID, "networks", rec.Networks)
	s.emit(Event{Type: EventSessionStarted, SessionID: rec.ID})
	return info, nil
}

// ExitProvisioning ends the session and stops the access point without
// joining a network. It is a no-op without a session.
func (s *Service) ExitProvisioning(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	active := s.session != nil
	s.mu.Unlock()
	if !active {
		return nil
	}

	err := s.surface.Stop(ctx)
	s.endSession(OutcomeExited, err)
	return err
}

// Scan returns the networks captured when the session started. It never
// touches the radio.
func (s *Service) Scan(context.Context) ([]supplicant.NetworkRecord, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	snap := s.cache.Snapshot()
	if snap == nil {
		return nil, ErrNoSession
	}
	return snap.Records(), nil
}

// Connect joins the network in req. On success the access point stays down
// and the session ends. On failure the access point has been restored
// before Connect returns; see package connect for the error values.
func (s *Service) Connect(ctx context.Context, req connect.Request) error {
	_, err := s.ConnectResult(ctx, req)
	return err
}

// ConnectResult is Connect with the attempt details.
func (s *Service) ConnectResult(ctx context.Context, req connect.Request) (connect.Result, error) {
	s.opMu.RLock()
	defer s.opMu.RUnlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return connect.Result{}, ErrClosed
	}

	res, err := s.connector.Connect(ctx, req)
	if res.Started.IsZero() {
		// Rejected before touching the radio.
		return res, err
	}

	id := s.recordAttempt(res)
	s.emit(Event{
		Type:      EventConnectFinished,
		SessionID: id,
		SSID:      res.SSID,
		Outcome:   res.Outcome.String(),
		Err:       err,
	})
	if err == nil && id != "" {
		s.endSession(OutcomeConnected, nil)
	}
	return res, err
}

// StationConnected reports whether the supplicant is in the completed
// state. It is the connectivity probe for the policy engine.
func (s *Service) StationConnected(ctx context.Context) (bool, error) {
	resp, err := s.cmd.Do(ctx, supplicant.Command{Op: supplicant.OpStatus})
	if err != nil {
		return false, err
	}
	return resp.State() == supplicant.StateCompleted, nil
}

var _ policy.ConnectivityProbe = (*Service)(nil)

// Run evaluates pol immediately and then every interval until ctx ends.
// While a session is active the policy is not consulted; instead a dead
// access point helper is relaunched.
func (s *Service) Run(ctx context.Context, pol policy.Policy, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPolicyInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.evaluate(ctx, pol)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) evaluate(ctx context.Context, pol policy.Policy) {
	s.mu.Lock()
	closed, active := s.closed, s.session != nil
	s.mu.Unlock()

	switch {
	case closed:
		return
	case active:
		s.checkHealth(ctx)
		return
	}

	if !pol.ShouldEnterProvisioning(ctx) {
		return
	}
	s.logger.Info("policy requests provisioning", "policy", pol.Kind().String())
	if _, err := s.EnterProvisioning(ctx); err != nil && !errors.Is(err, ErrSessionActive) {
		s.logger.Error("entering provisioning failed", "error", err)
	}
}

// checkHealth relaunches the access point when it claims to run but a
// helper has exited. A running connect attempt owns the radio, so the check
// is skipped then.
func (s *Service) checkHealth(ctx context.Context) {
	if s.connector.Busy() || !s.opMu.TryLock() {
		return
	}
	defer s.opMu.Unlock()

	if s.hotspot.State() != hotspot.StateRunning || s.hotspot.Healthy() {
		return
	}
	s.logger.Warn("access point helper died, relaunching")
	if err := s.surface.Start(ctx); err != nil {
		s.logger.Error("access point relaunch failed", "error", err)
	}
}

// Close ends any session, stops the access point and releases the
// supplicant connection.
func (s *Service) Close() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	active := s.session != nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.stopBound())
	defer cancel()

	var errs []error
	if err := s.surface.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop access point: %w", err))
	}
	if active {
		s.endSession(OutcomeClosed, nil)
	}
	errs = append(errs, s.listener.Close(), s.cmd.Close(), s.transport.Close())
	return errors.Join(errs...)
}

func (s *Service) stopBound() time.Duration {
	if s.cfg.RestoreTimeout > 0 {
		return s.cfg.RestoreTimeout
	}
	return connect.DefaultRestoreTimeout
}

// setSession tags every component's trace events with id.
func (s *Service) setSession(id string) {
	s.cmd.SetSession(id)
	s.connector.SetSession(id)
	s.hotspot.SetSession(id)
	s.surface.setSession(id)
}

// recordAttempt appends res to the active session and returns its ID, or ""
// when no session is active.
func (s *Service) recordAttempt(res connect.Result) string {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ""
	}
	s.session.Attempts = append(s.session.Attempts, persistence.AttemptRecord{
		SSID:      res.SSID,
		Outcome:   res.Outcome.String(),
		Reason:    res.Reason,
		StartedAt: res.Started,
		Duration:  res.Duration,
	})
	rec := cloneRecord(s.session)
	s.mu.Unlock()

	s.persist(rec)
	return rec.ID
}

// endSession finishes the active session with outcome.
func (s *Service) endSession(outcome string, cause error) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	s.session.EndedAt = time.Now()
	s.session.Outcome = outcome
	rec := cloneRecord(s.session)
	s.session = nil
	s.mu.Unlock()

	s.cache.Reset()
	s.persist(rec)
	s.setSession("")
	s.traceSession(rec.ID, "ACTIVE", "IDLE", outcome)
	s.logger.Info("provisioning ended", "session", rec.ID, "outcome", outcome, "attempts", len(rec.Attempts))
	s.emit(Event{Type: EventSessionEnded, SessionID: rec.ID, Outcome: outcome, Err: cause})
}

func (s *Service) persist(rec persistence.SessionRecord) {
	if s.cfg.Store == nil {
		return
	}
	if err := s.cfg.Store.Put(rec); err != nil {
		s.logger.Warn("saving session record failed", "session", rec.ID, "error", err)
	}
}

func (s *Service) emit(ev Event) {
	s.mu.Lock()
	handlers := append([]EventHandler(nil), s.handlers...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (s *Service) traceSession(id, oldState, newState, reason string) {
	s.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: id,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		Interface: s.cfg.Interface,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func sessionInfo(rec *persistence.SessionRecord) SessionInfo {
	return SessionInfo{
		ID:        rec.ID,
		StartedAt: rec.StartedAt,
		Networks:  rec.Networks,
		ScanError: rec.ScanError,
		Attempts:  len(rec.Attempts),
	}
}

func cloneRecord(rec *persistence.SessionRecord) persistence.SessionRecord {
	out := *rec
	out.Attempts = append([]persistence.AttemptRecord(nil), rec.Attempts...)
	return out
}
