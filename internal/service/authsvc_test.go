package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"QLDCwebserver/internal/domain"
	"QLDCwebserver/internal/metrics"
	"QLDCwebserver/internal/store/memory"
	"QLDCwebserver/internal/throttle"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubIdentity struct {
	t *testing.T

	mu        sync.Mutex
	calls     int
	loginFunc func(context.Context, string, string) (domain.LoginResult, error)
}

func (s *stubIdentity) Login(ctx context.Context, identifier, password string) (domain.LoginResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.loginFunc != nil {
		return s.loginFunc(ctx, identifier, password)
	}
	s.t.Fatalf("Login called unexpectedly")
	return domain.LoginResult{}, errors.New("unexpected call")
}

func rejectAll(context.Context, string, string) (domain.LoginResult, error) {
	return domain.LoginResult{}, domain.ErrInvalidCredentials
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, id *stubIdentity) (*AuthService, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	return &AuthService{
		Identity: id,
		Store:    memory.New(),
		Throttle: throttle.DefaultConfig(),
		Metrics:  metrics.New(),
		Now:      clock.Now,
	}, clock
}

const profileA = "7f8e2c1a-3b4d-4e5f-8a9b-0c1d2e3f4a5b"

func TestLoginLocksAfterFiveRejections(t *testing.T) {
	id := &stubIdentity{t: t, loginFunc: rejectAll}
	svc, _ := newTestService(t, id)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, st, err := svc.Login(ctx, profileA, "nguyenvana", "wrong")
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: unexpected err: %v", i, err)
		}
		if st.Locked || st.RemainingAttempts != 5-i {
			t.Fatalf("attempt %d: unexpected status %+v", i, st)
		}
	}

	_, st, err := svc.Login(ctx, profileA, "nguyenvana", "wrong")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("fifth attempt: unexpected err: %v", err)
	}
	if !st.Locked || st.LockRemaining != 15*time.Second {
		t.Fatalf("fifth attempt: unexpected status %+v", st)
	}
	if got := testutil.ToFloat64(svc.Metrics.Lockouts); got != 1 {
		t.Fatalf("lockouts: got %v", got)
	}

	_, _, err = svc.Login(ctx, profileA, "nguyenvana", "right")
	var locked *domain.LockedError
	if !errors.As(err, &locked) || !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("expected locked error, got %v", err)
	}
	if locked.Remaining != 15*time.Second {
		t.Fatalf("locked remaining: got %s", locked.Remaining)
	}
	if id.calls != 5 {
		t.Fatalf("identity api must not be called while locked, calls=%d", id.calls)
	}
}

func TestLoginUnlocksAfterLockDuration(t *testing.T) {
	id := &stubIdentity{t: t, loginFunc: rejectAll}
	svc, clock := newTestService(t, id)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, _ = svc.Login(ctx, profileA, "a", "b")
	}
	clock.now = clock.now.Add(15 * time.Second)

	st := svc.Status(ctx, profileA)
	if st.Locked || st.RemainingAttempts != 5 {
		t.Fatalf("unexpected status after lock duration: %+v", st)
	}
}

func TestLoginSuccessClearsHistory(t *testing.T) {
	fail := true
	id := &stubIdentity{t: t, loginFunc: func(_ context.Context, identifier, _ string) (domain.LoginResult, error) {
		if fail {
			return domain.LoginResult{}, domain.ErrInvalidCredentials
		}
		if identifier != "leader@example.vn" {
			t.Fatalf("identifier not trimmed: %q", identifier)
		}
		return domain.LoginResult{Token: "tok", User: domain.User{ID: "u1", Role: domain.RoleLeader}}, nil
	}}
	svc, _ := newTestService(t, id)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, _ = svc.Login(ctx, profileA, "leader@example.vn", "x")
	}
	fail = false

	res, st, err := svc.Login(ctx, profileA, "  leader@example.vn ", "y")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "tok" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if st.Locked || st.RemainingAttempts != 5 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestLoginUpstreamErrorDoesNotCount(t *testing.T) {
	id := &stubIdentity{t: t, loginFunc: func(context.Context, string, string) (domain.LoginResult, error) {
		return domain.LoginResult{}, domain.ErrUpstream
	}}
	svc, _ := newTestService(t, id)

	for i := 0; i < 10; i++ {
		_, st, err := svc.Login(context.Background(), profileA, "a", "b")
		if !errors.Is(err, domain.ErrUpstream) {
			t.Fatalf("unexpected err: %v", err)
		}
		if st.Locked || st.RemainingAttempts != 5 {
			t.Fatalf("upstream failures must not be counted: %+v", st)
		}
	}
}

func TestProfilesAreIndependent(t *testing.T) {
	id := &stubIdentity{t: t, loginFunc: rejectAll}
	svc, _ := newTestService(t, id)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, _ = svc.Login(ctx, profileA, "a", "b")
	}

	st := svc.Status(ctx, "0a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d")
	if st.Locked || st.RemainingAttempts != 5 {
		t.Fatalf("other profile affected: %+v", st)
	}
}

func TestStartCountdownWhileOpen(t *testing.T) {
	svc, _ := newTestService(t, &stubIdentity{t: t})

	var reports []throttle.Status
	c := svc.StartCountdown(context.Background(), profileA, time.Millisecond, func(st throttle.Status) {
		reports = append(reports, st)
	})
	c.Stop()

	if len(reports) != 1 || reports[0].Locked {
		t.Fatalf("unexpected reports: %+v", reports)
	}
}

type downStore struct{}

var errStoreDown = errors.New("dial tcp 10.0.0.7:6379: connection refused")

func (downStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errStoreDown }
func (downStore) Set(context.Context, string, []byte) error        { return errStoreDown }
func (downStore) Delete(context.Context, string) error              { return errStoreDown }

func TestLoginLocksWhileStoreIsDown(t *testing.T) {
	id := &stubIdentity{t: t, loginFunc: rejectAll}
	svc, clock := newTestService(t, id)
	svc.Store = downStore{}
	ctx := context.Background()

	for i := 1; i <= 20; i++ {
		_, _, _ = svc.Login(ctx, profileA, "nguyenvana", "wrong")
	}

	if id.calls != 5 {
		t.Fatalf("identity calls: got %d want 5", id.calls)
	}
	st := svc.Status(ctx, profileA)
	if !st.Locked || st.RemainingAttempts != 0 {
		t.Fatalf("expected profile to stay locked during the outage: %+v", st)
	}
	if got := testutil.ToFloat64(svc.Metrics.StoreErrors.WithLabelValues("write")); got == 0 {
		t.Fatalf("expected store write errors to be counted")
	}

	clock.now = clock.now.Add(15 * time.Second)
	if st := svc.Status(ctx, profileA); st.Locked || st.RemainingAttempts != 5 {
		t.Fatalf("expected lock to expire during the outage: %+v", st)
	}
}

func TestLoginWithoutStoreStillThrottles(t *testing.T) {
	id := &stubIdentity{t: t, loginFunc: rejectAll}
	svc, _ := newTestService(t, id)
	svc.Store = nil

	for i := 0; i < 8; i++ {
		_, _, _ = svc.Login(context.Background(), profileA, "a", "b")
	}
	if id.calls != 5 {
		t.Fatalf("identity calls: got %d want 5", id.calls)
	}
}

func TestConcurrentLoginsCannotExceedMaxAttempts(t *testing.T) {
	var (
		mu        sync.Mutex
		inFlight  int
		maxFlight int
	)
	id := &stubIdentity{t: t, loginFunc: func(context.Context, string, string) (domain.LoginResult, error) {
		mu.Lock()
		inFlight++
		maxFlight = max(maxFlight, inFlight)
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return domain.LoginResult{}, domain.ErrInvalidCredentials
	}}
	svc, _ := newTestService(t, id)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = svc.Login(context.Background(), profileA, "a", "b")
		}()
	}
	wg.Wait()

	if id.calls != 5 {
		t.Fatalf("identity calls: got %d want 5", id.calls)
	}
	if maxFlight != 1 {
		t.Fatalf("logins of one profile ran concurrently: %d", maxFlight)
	}
}
