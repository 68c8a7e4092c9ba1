package service

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"QLDCwebserver/internal/auth"
	"QLDCwebserver/internal/domain"
	"QLDCwebserver/internal/metrics"
	"QLDCwebserver/internal/store"
	"QLDCwebserver/internal/store/memory"
	"QLDCwebserver/internal/throttle"
)

type IdentityClient interface {
	Login(ctx context.Context, identifier, password string) (domain.LoginResult, error)
}

const profileLockStripes = 256

// AuthService runs the login flow for one client profile at a time: refuse
// while the profile is locked out, forward credentials, record the outcome.
//
// Logins of the same profile are serialized within the process. While Store
// is failing, throttle state is kept in process memory. An AuthService must
// not be copied after first use.
type AuthService struct {
	Identity IdentityClient
	Store    throttle.KeyValueStore
	Throttle throttle.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time

	kvOnce sync.Once
	kv     *store.FallbackStore

	profileLocks [profileLockStripes]sync.Mutex
}

func (s *AuthService) Login(ctx context.Context, profileID, identifier, password string) (domain.LoginResult, throttle.Status, error) {
	logger := s.logger().With("op", "auth.Login")

	unlock := s.lockProfile(profileID)
	defer unlock()

	th := s.throttleFor(ctx, profileID)
	if st := th.Observe(ctx); st.Locked {
		s.Metrics.ObserveLogin(metrics.ResultLocked)
		logger.Info("login refused: profile locked", "remaining", st.LockRemaining)
		return domain.LoginResult{}, st, &domain.LockedError{Remaining: st.LockRemaining}
	}

	res, err := s.Identity.Login(ctx, strings.TrimSpace(identifier), password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			th.RecordFailedAttempt(ctx)
			st := th.Status()
			s.Metrics.ObserveLogin(metrics.ResultRejected)
			if st.Locked {
				s.Metrics.ObserveLockout()
			}
			logger.Info("login rejected", "remaining_attempts", st.RemainingAttempts, "locked", st.Locked)
			return domain.LoginResult{}, st, err
		}

		s.Metrics.ObserveLogin(metrics.ResultUpstream)
		logger.Error("identity api failed", "err", err)
		return domain.LoginResult{}, th.Status(), err
	}

	th.RecordSuccess(ctx)
	s.Metrics.ObserveLogin(metrics.ResultSuccess)
	if !res.User.Role.Valid() {
		logger.Warn("identity api returned an unknown role", "user_id", res.User.ID)
	}
	logger.Info("login succeeded", "user_id", res.User.ID, "role", res.User.Role)
	return res, th.Status(), nil
}

func (s *AuthService) Status(ctx context.Context, profileID string) throttle.Status {
	unlock := s.lockProfile(profileID)
	defer unlock()

	return s.throttleFor(ctx, profileID).Observe(ctx)
}

// StartCountdown starts the lock countdown for a profile. The caller owns the
// returned countdown and must Stop it or cancel ctx.
func (s *AuthService) StartCountdown(ctx context.Context, profileID string, interval time.Duration, fn func(throttle.Status)) *throttle.Countdown {
	return s.throttleFor(ctx, profileID).StartCountdown(ctx, interval, fn)
}

func (s *AuthService) throttleFor(ctx context.Context, profileID string) *throttle.Throttle {
	kv := store.Namespace(s.throttleStore(), auth.NamespaceFor(profileID))

	var clock throttle.Clock = throttle.SystemClock
	if s.Now != nil {
		clock = throttle.ClockFunc(s.Now)
	}

	return throttle.Load(ctx, kv, clock,
		throttle.WithConfig(s.Throttle),
		throttle.WithLogger(s.logger()),
		throttle.WithStoreErrorHook(s.Metrics.ObserveStoreError),
	)
}

func (s *AuthService) throttleStore() *store.FallbackStore {
	s.kvOnce.Do(func() {
		var primary throttle.KeyValueStore = s.Store
		if primary == nil {
			primary = memory.New()
		}
		s.kv = store.Fallback(primary, s.storeError)
	})
	return s.kv
}

func (s *AuthService) storeError(op string, err error) {
	s.logger().Warn("throttle store unavailable, using process memory", "op", op, "err", err)
	s.Metrics.ObserveStoreError(op, err)
}

// lockProfile serializes work on one profile. Profiles share a fixed set of
// mutexes, so unrelated profiles occasionally wait on each other.
func (s *AuthService) lockProfile(profileID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(profileID))
	mu := &s.profileLocks[h.Sum32()%profileLockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *AuthService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
