package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/pestline/go-auth"
	"github.com/stretchr/testify/mock"
)

// MockProfileFinder implements auth.ProfileFinder for testing
type MockProfileFinder struct {
	mock.Mock
}

func (m *MockProfileFinder) FindProfileByEmail(ctx context.Context, email string) (*auth.Profile, error) {
	args := m.Called(ctx, email)
	if p := args.Get(0); p != nil {
		return p.(*auth.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeStore is a scripted auth.SessionStore.
type fakeStore struct {
	mu sync.Mutex

	session    *auth.Session
	currentErr error
	// block, when set, holds CurrentSession until closed.
	block chan struct{}

	signInSession *auth.Session
	signInErr     error
	idSession     *auth.Session
	idErr         error
	signOutErr    error

	currentCalls int
	signInCalls  int
	signOuts     int

	handlers map[int]auth.AuthChangeHandler
	next     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{handlers: map[int]auth.AuthChangeHandler{}}
}

func (s *fakeStore) CurrentSession(ctx context.Context) (*auth.Session, error) {
	s.mu.Lock()
	s.currentCalls++
	block := s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentErr != nil {
		return nil, s.currentErr
	}
	if s.session == nil {
		return nil, nil
	}
	c := *s.session
	return &c, nil
}

func (s *fakeStore) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signInCalls++
	if s.signInErr != nil {
		return nil, s.signInErr
	}
	s.session = s.signInSession
	return s.signInSession, nil
}

func (s *fakeStore) SignInWithIDToken(ctx context.Context, provider, token string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idErr != nil {
		return nil, s.idErr
	}
	s.session = s.idSession
	return s.idSession, nil
}

// SignOut mirrors the real stores: a successful sign out is followed by a
// SIGNED_OUT notification.
func (s *fakeStore) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.signOuts++
	if s.signOutErr != nil {
		err := s.signOutErr
		s.mu.Unlock()
		return err
	}
	s.session = nil
	s.mu.Unlock()

	s.emit(ctx, auth.EventSignedOut, nil)
	return nil
}

func (s *fakeStore) OnAuthStateChange(handler auth.AuthChangeHandler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.handlers[id] = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

func (s *fakeStore) emit(ctx context.Context, event auth.AuthEvent, session *auth.Session) {
	s.mu.Lock()
	handlers := make([]auth.AuthChangeHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(ctx, event, session)
	}
}

func (s *fakeStore) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// manualClock hands out timers that fire only when told to.
type manualClock struct {
	now     time.Time
	created chan *manualTimer
}

func newManualClock() *manualClock {
	return &manualClock{
		now:     time.Date(2026, 4, 1, 7, 30, 0, 0, time.UTC),
		created: make(chan *manualTimer, 16),
	}
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) NewTimer(d time.Duration) auth.Timer {
	t := &manualTimer{d: d, ch: make(chan time.Time, 1)}
	c.created <- t
	return t
}

type manualTimer struct {
	d  time.Duration
	ch chan time.Time
}

func (t *manualTimer) C() <-chan time.Time { return t.ch }

func (t *manualTimer) Stop() bool { return true }

func (t *manualTimer) Fire() {
	t.ch <- time.Time{}
}

// quietLogger discards every message.
type quietLogger struct{}

func (quietLogger) Trace(string, ...any)                     {}
func (quietLogger) Debug(string, ...any)                     {}
func (quietLogger) Info(string, ...any)                      {}
func (quietLogger) Warn(string, ...any)                      {}
func (quietLogger) Error(string, ...any)                     {}
func (quietLogger) Fatal(string, ...any)                     {}
func (l quietLogger) WithContext(context.Context) auth.Logger { return l }

type activityRecorder struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *activityRecorder) Record(_ context.Context, e auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *activityRecorder) types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}

func session(email string) *auth.Session {
	return &auth.Session{
		AccessToken: "token-" + email,
		User:        auth.SessionUser{ID: "id-" + email, Email: email, Name: "Field Tech"},
		Provider:    auth.LoginMethodEmail,
	}
}

func profile(email, role string, approved bool) *auth.Profile {
	return &auth.Profile{ID: "profile-" + email, Email: email, Role: role, IsApproved: approved}
}

type machineFixture struct {
	store     *fakeStore
	finder    *MockProfileFinder
	kv        *auth.MemoryStore
	snapshots *auth.SnapshotCache
	clock     *manualClock
	activity  *activityRecorder
	routes    []string
	routesMu  sync.Mutex
	machine   *auth.Machine
}

func newMachineFixture() *machineFixture {
	f := &machineFixture{
		store:    newFakeStore(),
		finder:   &MockProfileFinder{},
		kv:       auth.NewMemoryStore(),
		clock:    newManualClock(),
		activity: &activityRecorder{},
	}
	f.snapshots = auth.NewSnapshotCache(f.kv)
	resolver := auth.NewProfileResolver(f.finder).WithLogger(quietLogger{})
	f.machine = auth.NewMachine(f.store, resolver, f.snapshots,
		auth.WithMachineClock(f.clock),
		auth.WithMachineLogger(quietLogger{}),
		auth.WithMachineActivitySink(f.activity),
		auth.WithMachineNavigator(auth.NavigatorFunc(func(route string) {
			f.routesMu.Lock()
			f.routes = append(f.routes, route)
			f.routesMu.Unlock()
		})),
	)
	return f
}

func (f *machineFixture) navigations() []string {
	f.routesMu.Lock()
	defer f.routesMu.Unlock()
	return append([]string(nil), f.routes...)
}
