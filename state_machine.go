package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// BootstrapTimeout bounds the initial session probe. It is fixed; only the
// clock is replaceable.
const BootstrapTimeout = 10 * time.Second

// Phase is the bootstrap state of a Machine.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseProbing  Phase = "probing"
	PhaseResolved Phase = "resolved"
	PhaseFailed   Phase = "failed"
)

// State is the {user, loading, error} triple consumed by the view layer.
type State struct {
	Phase   Phase
	User    *CurrentUser
	Loading bool
	// Error is the user visible message, empty for silent failures.
	Error string
	// Err is the tagged cause of the last terminal failure.
	Err error
	// Redirect is the route signalled by the last transition, if any.
	Redirect   string
	Generation uint64
}

func (s State) clone() State {
	s.User = s.User.Clone()
	return s
}

// Authenticated reports whether a user is resolved and loading is over.
func (s State) Authenticated() bool {
	return !s.Loading && s.User != nil
}

// ProviderAssertion is a third-party identity token to exchange for a session.
type ProviderAssertion struct {
	Provider string
	Token    string
}

// MachineOption customizes Machine construction.
type MachineOption func(*Machine)

// WithMachineClock injects a custom clock (useful for tests).
func WithMachineClock(clock Clock) MachineOption {
	return func(m *Machine) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithMachineLogger overrides the logger.
func WithMachineLogger(logger Logger) MachineOption {
	return func(m *Machine) {
		if logger != nil {
			m.provider, m.logger = ResolveLogger("auth.session", nil, logger)
		}
	}
}

// WithMachineLoggerProvider resolves the machine logger from provider.
func WithMachineLoggerProvider(provider LoggerProvider) MachineOption {
	return func(m *Machine) {
		if provider != nil {
			m.provider, m.logger = ResolveLogger("auth.session", provider, m.logger)
		}
	}
}

// WithMachineActivitySink sets the ActivitySink used to publish session events.
func WithMachineActivitySink(sink ActivitySink) MachineOption {
	return func(m *Machine) {
		m.sink = normalizeActivitySink(sink)
	}
}

// WithMachineNavigator sets the receiver of redirect signals.
func WithMachineNavigator(nav Navigator) MachineOption {
	return func(m *Machine) {
		if nav != nil {
			m.navigator = nav
		}
	}
}

// WithMachineRoutes overrides the redirect targets.
func WithMachineRoutes(routes Routes) MachineOption {
	return func(m *Machine) {
		m.routes = routes.withDefaults()
	}
}

// Machine owns the session state of one client. Every state changing
// operation takes a new generation; async results apply only while their
// generation is current. The mutex is not held across store, resolver or
// listener calls. Snapshot writes and clears do run under it, so a result
// whose generation went stale can never touch the persisted snapshot.
type Machine struct {
	store     SessionStore
	resolver  ProfileResolver
	snapshots *SnapshotCache
	routes    Routes
	navigator Navigator
	clock     Clock
	sink      ActivitySink
	logger    Logger
	provider  LoggerProvider

	mu           sync.Mutex
	generation   uint64
	state        State
	listeners    map[uint64]func(State)
	nextListener uint64
	unsubscribe  func()

	inflight sync.WaitGroup
}

// NewMachine builds an idle Machine. Call Start to subscribe and bootstrap.
func NewMachine(store SessionStore, resolver ProfileResolver, snapshots *SnapshotCache, opts ...MachineOption) *Machine {
	if snapshots == nil {
		snapshots = NewSnapshotCache(nil)
	}

	provider, logger := ResolveLogger("auth.session", nil, nil)
	m := &Machine{
		store:     store,
		resolver:  resolver,
		snapshots: snapshots,
		routes:    DefaultRoutes(),
		navigator: noopNavigator{},
		clock:     realClock{},
		sink:      noopActivitySink{},
		logger:    logger,
		provider:  provider,
		state:     State{Phase: PhaseIdle},
		listeners: map[uint64]func(State){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Routes returns the redirect targets in use.
func (m *Machine) Routes() Routes {
	return m.routes
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn for state changes and returns its unsubscribe func.
func (m *Machine) Subscribe(fn func(State)) func() {
	if fn == nil {
		return func() {}
	}

	m.mu.Lock()
	m.nextListener++
	id := m.nextListener
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Start subscribes to the store's auth changes and runs Bootstrap.
func (m *Machine) Start(ctx context.Context) State {
	unsubscribe := m.store.OnAuthStateChange(m.HandleAuthChangeEvent)

	m.mu.Lock()
	if m.unsubscribe != nil {
		m.mu.Unlock()
		unsubscribe()
	} else {
		m.unsubscribe = unsubscribe
		m.mu.Unlock()
	}

	return m.Bootstrap(ctx)
}

// Teardown unsubscribes from the store, invalidates in-flight work and waits
// for it to drain.
func (m *Machine) Teardown() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.generation++
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.inflight.Wait()
}

// Wait blocks until probes abandoned by a timeout have returned.
func (m *Machine) Wait() {
	m.inflight.Wait()
}

// Bootstrap probes the current session and resolves the user, racing a
// BootstrapTimeout timer. Whichever settles first is authoritative.
func (m *Machine) Bootstrap(ctx context.Context) State {
	gen := m.advance(func(s *State) {
		*s = State{Phase: PhaseProbing, Loading: true}
	})

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timer := m.clock.NewTimer(BootstrapTimeout)
	defer timer.Stop()

	done := make(chan struct{})
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		defer close(done)
		m.probe(probeCtx, gen)
	}()

	select {
	case <-done:
	case <-timer.C():
		m.logger.Warn("session bootstrap timed out", "timeout", BootstrapTimeout.String())
		m.terminal(ctx, gen, NewError(KindTimeout, "bootstrap session", context.DeadlineExceeded), commitOpts{
			requireProbing: true,
			bump:           true,
		})
	case <-ctx.Done():
		m.terminal(ctx, gen, NewError(KindTransport, "bootstrap session", ctx.Err()), commitOpts{
			requireProbing: true,
			bump:           true,
		})
	}

	return m.State()
}

func (m *Machine) probe(ctx context.Context, gen uint64) {
	opts := commitOpts{requireProbing: true}

	session, err := m.store.CurrentSession(ctx)
	if err != nil {
		m.logger.Error("session probe failed", "error", err)
		m.terminal(ctx, gen, NewError(KindTransport, "get current session", err), opts)
		return
	}

	if session == nil {
		m.terminal(ctx, gen, nil, opts)
		return
	}

	if !session.HasEmail() {
		m.terminal(ctx, gen, NewError(KindCorrupted, "get current session", errors.New("session has no email")), opts)
		return
	}

	user, persist, err := m.resolveUser(ctx, session)
	if err != nil {
		m.terminal(ctx, gen, err, opts)
		return
	}

	opts.event = ActivityEventSessionResolved
	m.resolved(ctx, gen, user, persist, opts)
}

// HandleAuthChangeEvent applies a Session Store notification. It is safe to
// call from any goroutine and tolerates repeated identical events.
func (m *Machine) HandleAuthChangeEvent(ctx context.Context, event AuthEvent, session *Session) {
	switch {
	case event == EventSignedOut:
		gen, ok := m.advanceIf(func(s State) bool {
			return s.Loading || s.User != nil || s.Phase == PhaseIdle
		})
		if !ok {
			m.logger.Debug("sign out already applied", "event", string(event))
			return
		}
		m.terminal(ctx, gen, nil, commitOpts{event: ActivityEventLogout})

	case session != nil && !session.HasEmail():
		gen := m.advance(nil)
		m.logger.Warn("auth change carried a session without email", "event", string(event))
		m.terminal(ctx, gen, NewError(KindCorrupted, "auth change", errors.New("session has no email")), commitOpts{})

	case session != nil && event == EventSignedIn:
		gen := m.advance(nil)
		m.signIn(ctx, gen, session, ActivityEventLoginSuccess)

	case session != nil:
		gen, ok := m.advanceIf(func(s State) bool {
			if s.Loading {
				return false
			}
			return s.User == nil || !strings.EqualFold(s.User.Email, session.User.Email)
		})
		if !ok {
			m.logger.Debug("auth change ignored", "event", string(event))
			return
		}
		m.signIn(ctx, gen, session, ActivityEventSessionResolved)

	default:
		gen, ok := m.advanceIf(func(s State) bool {
			return !s.Loading && s.User != nil
		})
		if !ok {
			m.logger.Debug("auth change without session ignored", "event", string(event))
			return
		}
		m.logger.Warn("session disappeared without sign out", "event", string(event))
		m.terminal(ctx, gen, NewError(KindCorrupted, "auth change", errors.New("session lost")), commitOpts{})
	}
}

// SignInWithPassword signs in through the store and resolves the user.
// Invalid input and rejected credentials are returned for display; every
// failure also converges into State.
func (m *Machine) SignInWithPassword(ctx context.Context, email, password string) (State, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return m.State(), err
	}
	if password == "" {
		return m.State(), ErrInvalidCredentials
	}

	gen := m.advance(beginSignIn)

	session, err := m.store.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.recordActivity(ctx, ActivityEvent{EventType: ActivityEventLoginFailure, Email: email, LoginMethod: LoginMethodEmail})
		if !errors.Is(err, ErrInvalidCredentials) && KindOf(err) == "" {
			err = NewError(KindTransport, "sign in with password", err)
		}
		m.terminal(ctx, gen, err, commitOpts{event: ActivityEventLoginFailure, silent: true})
		return m.State(), err
	}

	if !session.HasEmail() {
		err := NewError(KindCorrupted, "sign in with password", errors.New("session has no email"))
		m.terminal(ctx, gen, err, commitOpts{})
		return m.State(), err
	}

	signedIn := *session
	if signedIn.Provider == "" {
		signedIn.Provider = LoginMethodEmail
	}
	m.signIn(ctx, gen, &signedIn, ActivityEventLoginSuccess)

	state := m.State()
	if state.User == nil {
		return state, state.Err
	}
	return state, nil
}

// SecondaryProviderSignIn exchanges a federated identity assertion for a
// session and resolves the profile. Failures are terminal for the flow: they
// are logged and reflected in State, never returned.
func (m *Machine) SecondaryProviderSignIn(ctx context.Context, assertion ProviderAssertion) State {
	gen := m.advance(beginSignIn)

	session, err := m.store.SignInWithIDToken(ctx, assertion.Provider, assertion.Token)
	if err != nil {
		m.logger.Warn("identity exchange failed", "provider", assertion.Provider, "error", err)
		m.terminal(ctx, gen, NewError(KindExchangeFailed, "sign in with id token", err), commitOpts{})
		return m.State()
	}

	if !session.HasEmail() {
		m.logger.Warn("identity exchange returned no user", "provider", assertion.Provider)
		m.terminal(ctx, gen, NewError(KindExchangeFailed, "sign in with id token", errors.New("no user in session")), commitOpts{})
		return m.State()
	}

	signedIn := *session
	if signedIn.Provider == "" {
		signedIn.Provider = assertion.Provider
	}
	m.signIn(ctx, gen, &signedIn, ActivityEventSocialLogin)

	return m.State()
}

// Retry resets all in-memory state, drops the cached snapshot and bootstraps
// again.
func (m *Machine) Retry(ctx context.Context) State {
	m.advance(func(s *State) {
		*s = State{Phase: PhaseIdle}
	})

	if err := m.snapshots.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear role snapshot on retry", "error", err)
	}

	return m.Bootstrap(ctx)
}

// Logout clears local state first, then signs out remotely. A remote failure
// is returned after the local cleanup has happened. Calling Logout again is
// safe.
func (m *Machine) Logout(ctx context.Context) error {
	gen := m.advance(nil)
	m.terminal(ctx, gen, nil, commitOpts{event: ActivityEventLogout})

	if err := m.store.SignOut(ctx); err != nil {
		m.logger.Error("remote sign out failed", "error", err)
		return NewError(KindTransport, "sign out", err)
	}
	return nil
}

func beginSignIn(s *State) {
	s.Loading = true
	s.Error = ""
	s.Err = nil
	s.Redirect = ""
}

func (m *Machine) signIn(ctx context.Context, gen uint64, session *Session, event ActivityEventType) {
	user, persist, err := m.resolveUser(ctx, session)
	if err != nil {
		m.terminal(ctx, gen, err, commitOpts{})
		return
	}
	m.resolved(ctx, gen, user, persist, commitOpts{event: event})
}

// resolveUser builds the CurrentUser from a complete snapshot when one is
// cached for the session's email, otherwise from the resolver. persist is
// true when the snapshot should be refreshed.
func (m *Machine) resolveUser(ctx context.Context, session *Session) (*CurrentUser, bool, error) {
	snap, err := m.snapshots.Load(ctx)
	switch {
	case err == nil && snap.Complete() && snap.BelongsTo(session.User.Email):
		return userFromSnapshot(session, snap), false, nil
	case err == nil:
		m.logger.Debug("cached role snapshot unusable, resolving profile", "email", session.User.Email)
	case errors.Is(err, ErrSnapshotMissing):
	default:
		m.logger.Debug("discarding unreadable role snapshot", "error", err)
	}

	profile, err := m.resolver.Resolve(ctx, session.User.Email)
	if err != nil {
		if KindOf(err) == "" {
			err = NewError(KindTransport, "resolve profile", err)
		}
		return nil, false, err
	}
	if profile == nil {
		return nil, false, NewError(KindNotFound, "resolve profile", ErrProfileNotFound)
	}

	return userFromProfile(session, profile), true, nil
}

type commitOpts struct {
	requireProbing bool
	bump           bool
	silent         bool
	event          ActivityEventType
}

func (m *Machine) acceptLocked(gen uint64, opts commitOpts) bool {
	if gen != m.generation {
		return false
	}
	if opts.requireProbing && m.state.Phase != PhaseProbing {
		return false
	}
	return true
}

func (m *Machine) resolved(ctx context.Context, gen uint64, user *CurrentUser, persist bool, opts commitOpts) bool {
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	if !m.acceptLocked(gen, opts) {
		m.mu.Unlock()
		m.logger.Debug("discarding stale session result", "generation", gen)
		return false
	}

	if persist {
		if err := m.snapshots.Store(ctx, snapshotFromUser(user)); err != nil {
			m.logger.Warn("failed to cache role snapshot", "error", err)
		}
	}

	m.state = State{
		Phase:      PhaseResolved,
		User:       user,
		Generation: m.generation,
	}
	state, listeners := m.publishLocked()
	m.mu.Unlock()

	m.notify(listeners, state)

	event := opts.event
	if event == "" {
		event = ActivityEventSessionResolved
	}
	m.recordActivity(ctx, ActivityEvent{
		EventType:   event,
		UserID:      user.ID,
		Email:       user.Email,
		LoginMethod: user.LoginMethod,
	})
	return true
}

// terminal converges every failure and sign-out path: clear the snapshot,
// drop the user, redirect to the unauthenticated entry point.
func (m *Machine) terminal(ctx context.Context, gen uint64, cause error, opts commitOpts) bool {
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	if !m.acceptLocked(gen, opts) {
		m.mu.Unlock()
		m.logger.Debug("discarding stale session failure", "generation", gen, "error", cause)
		return false
	}
	if opts.bump {
		m.generation++
	}

	if err := m.snapshots.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear role snapshot", "error", err)
	}

	previous := m.state.User
	phase := PhaseResolved
	if cause != nil {
		phase = PhaseFailed
	}
	m.state = State{
		Phase:      phase,
		Err:        cause,
		Error:      UserMessage(cause),
		Redirect:   m.routes.Unauthenticated,
		Generation: m.generation,
	}
	state, listeners := m.publishLocked()
	m.mu.Unlock()

	m.navigator.Navigate(state.Redirect)
	m.notify(listeners, state)

	if opts.silent {
		return true
	}

	event := ActivityEvent{EventType: opts.event, ErrorKind: KindOf(cause)}
	if previous != nil {
		event.UserID = previous.ID
		event.Email = previous.Email
		event.LoginMethod = previous.LoginMethod
	}
	if event.EventType == "" {
		switch {
		case cause == nil:
			event.EventType = ActivityEventSessionCleared
		case IsKind(cause, KindTimeout):
			event.EventType = ActivityEventBootstrapTimeout
		default:
			event.EventType = ActivityEventSessionFailure
		}
	}
	if cause != nil {
		event.Metadata = map[string]any{"error": cause.Error()}
	}
	m.recordActivity(ctx, event)
	return true
}

// advance takes a new generation and optionally mutates the state.
func (m *Machine) advance(mutate func(*State)) uint64 {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	if mutate == nil {
		m.mu.Unlock()
		return gen
	}
	mutate(&m.state)
	m.state.Generation = gen
	state, listeners := m.publishLocked()
	m.mu.Unlock()

	m.notify(listeners, state)
	return gen
}

func (m *Machine) advanceIf(pred func(State) bool) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !pred(m.state) {
		return 0, false
	}
	m.generation++
	return m.generation, true
}

func (m *Machine) publishLocked() (State, []func(State)) {
	listeners := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	return m.state.clone(), listeners
}

func (m *Machine) notify(listeners []func(State), state State) {
	for _, fn := range listeners {
		fn(state.clone())
	}
}

func (m *Machine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.clock.Now()
	}

	sink := normalizeActivitySink(m.sink)
	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("session activity sink error", "error", err)
	}
}
