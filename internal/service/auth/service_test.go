package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/account-security/internal/model"
	"github.com/jwalitptl/account-security/internal/repository/memory"
	"github.com/jwalitptl/account-security/internal/service/audit"
	"github.com/jwalitptl/account-security/pkg/auth"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
	"github.com/jwalitptl/account-security/pkg/metrics"
	"github.com/jwalitptl/account-security/pkg/security"
)

const (
	testEmail    = "maria@clinic.example"
	testPassword = "correct-horse-42"
)

// recordingAudit keeps the order events were written in.
type recordingAudit struct {
	*memory.AuditRepository
	mu    sync.Mutex
	kinds []model.ActivityKind
	fail  bool
}

func (r *recordingAudit) Create(ctx context.Context, log *model.ActivityLog) error {
	if r.fail {
		return errors.New("audit store down")
	}
	r.mu.Lock()
	r.kinds = append(r.kinds, log.Kind)
	r.mu.Unlock()
	return r.AuditRepository.Create(ctx, log)
}

func (r *recordingAudit) Kinds() []model.ActivityKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ActivityKind(nil), r.kinds...)
}

type capturedMail struct {
	to    string
	token string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []capturedMail
}

func (f *fakeMailer) SendPasswordReset(ctx context.Context, to, name, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, capturedMail{to: to, token: token})
	return nil
}

func (f *fakeMailer) SendLockoutNotice(ctx context.Context, to string, lockedUntil time.Time) error {
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

type fixture struct {
	svc      *Service
	accounts *memory.AccountRepository
	audit    *recordingAudit
	mailer   *fakeMailer
	events   *fakePublisher
	hasher   security.PasswordHasher
	clock    time.Time
	account  *model.Account
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) reload(t *testing.T) *model.Account {
	t.Helper()
	acc, err := f.accounts.GetByID(context.Background(), f.account.ID)
	require.NoError(t, err)
	return acc
}

func setup(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		accounts: memory.NewAccountRepository(),
		audit:    &recordingAudit{AuditRepository: memory.NewAuditRepository()},
		mailer:   &fakeMailer{},
		events:   &fakePublisher{},
		hasher:   security.NewBcryptHasher(bcrypt.MinCost),
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	jwtSvc, err := auth.NewJWTService(auth.Config{
		Secret:        "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
	require.NoError(t, err)

	m := metrics.NewNop()
	svc, err := NewService(Deps{
		Accounts:    f.accounts,
		ResetTokens: f.accounts.ResetTokens(),
		Blacklist:   memory.NewTokenBlacklist(),
		Hasher:      f.hasher,
		Strength:    security.NewStrengthPolicy(model.DefaultPasswordPolicy()),
		Tokens:      jwtSvc,
		Email:       f.mailer,
		Auditor:     audit.NewService(f.audit, zerolog.Nop(), m),
		Events:      f.events,
		Metrics:     m,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return f.clock }
	f.svc = svc

	hash, err := f.hasher.Hash(testPassword)
	require.NoError(t, err)
	f.account = model.NewAccount(model.NewAccountParams{
		OrganizationID: uuid.New(),
		Email:          testEmail,
		Name:           "Maria",
		PasswordHash:   hash,
		Role:           model.RolePatient,
	}, f.clock)
	require.NoError(t, f.accounts.Create(context.Background(), f.account))
	return f
}

var rc = model.RequestContext{IPAddress: "10.0.0.7", UserAgent: "test"}

func TestAuthenticateSuccess(t *testing.T) {
	f := setup(t)

	tokens, err := f.svc.Authenticate(context.Background(), "MARIA@clinic.example", testPassword, rc)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	acc := f.reload(t)
	assert.Equal(t, 0, acc.FailedLoginAttempts)
	require.NotNil(t, acc.LastLoginAt)
	assert.True(t, acc.LastLoginAt.Equal(f.clock))
	require.NotNil(t, acc.LastLoginIP)
	assert.Equal(t, "10.0.0.7", *acc.LastLoginIP)
	assert.Equal(t, []model.ActivityKind{model.ActivityLogin}, f.audit.Kinds())
}

func TestAuthenticateUnknownAccount(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Authenticate(context.Background(), "nobody@clinic.example", testPassword, rc)
	assert.ErrorIs(t, err, apperrors.InvalidCredentials)
	assert.Empty(t, f.audit.Kinds())
}

func TestAuthenticateLocksAfterFiveFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := f.svc.Authenticate(ctx, testEmail, "wrong-password-1", rc)
		require.ErrorIs(t, err, apperrors.InvalidCredentials)
		assert.Nil(t, f.reload(t).LockedUntil)
	}

	_, err := f.svc.Authenticate(ctx, testEmail, "wrong-password-1", rc)
	require.ErrorIs(t, err, apperrors.InvalidCredentials)

	acc := f.reload(t)
	assert.Equal(t, 5, acc.FailedLoginAttempts)
	require.NotNil(t, acc.LockedUntil)
	assert.True(t, acc.LockedUntil.Equal(f.clock.Add(15*time.Minute)))

	kinds := f.audit.Kinds()
	require.Len(t, kinds, 6)
	assert.Equal(t, model.ActivityLoginFailed, kinds[4])
	assert.Equal(t, model.ActivityAccountLock, kinds[5])
	assert.Equal(t, []string{EventAccountLocked}, f.events.events)
}

func TestAuthenticateLockedAccountIgnoresCorrectSecret(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = f.svc.Authenticate(ctx, testEmail, "wrong-password-1", rc)
	}
	before := len(f.audit.Kinds())

	f.advance(10 * time.Minute)
	_, err := f.svc.Authenticate(ctx, testEmail, testPassword, rc)
	assert.ErrorIs(t, err, apperrors.AccountLocked)

	_, err = f.svc.Authenticate(ctx, testEmail, "wrong-password-1", rc)
	assert.ErrorIs(t, err, apperrors.AccountLocked)

	assert.Equal(t, 5, f.reload(t).FailedLoginAttempts)
	assert.Len(t, f.audit.Kinds(), before)
}

func TestAuthenticateSucceedsAfterLockExpires(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = f.svc.Authenticate(ctx, testEmail, "wrong-password-1", rc)
	}

	f.advance(16 * time.Minute)
	_, err := f.svc.Authenticate(ctx, testEmail, testPassword, rc)
	require.NoError(t, err)

	acc := f.reload(t)
	assert.Equal(t, 0, acc.FailedLoginAttempts)
	assert.Nil(t, acc.LockedUntil)
}

func TestAuthenticateEscalatesBands(t *testing.T) {
	tests := []struct {
		name     string
		prior    int
		wantLock time.Duration
	}{
		{"tenth failure", 9, time.Hour},
		{"fifteenth failure", 14, 24 * time.Hour},
		{"twentieth failure", 19, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ctx := context.Background()
			_, err := f.accounts.UpdateLoginState(ctx, f.account.ID, func(st *model.LoginState) error {
				st.FailedLoginAttempts = tt.prior
				return nil
			})
			require.NoError(t, err)

			_, err = f.svc.Authenticate(ctx, testEmail, "wrong-password-1", rc)
			require.ErrorIs(t, err, apperrors.InvalidCredentials)

			acc := f.reload(t)
			assert.Equal(t, tt.prior+1, acc.FailedLoginAttempts)
			require.NotNil(t, acc.LockedUntil)
			assert.True(t, acc.LockedUntil.Equal(f.clock.Add(tt.wantLock)))
		})
	}
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.accounts.SetStatus(ctx, f.account.ID, model.AccountStatusInactive))

	_, err := f.svc.Authenticate(ctx, testEmail, testPassword, rc)
	assert.ErrorIs(t, err, apperrors.AccountInactive)
	assert.Equal(t, 0, f.reload(t).FailedLoginAttempts)

	page, err := f.svc.auditor.ListActivity(ctx, f.account.ID, model.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, model.ActivityLoginFailed, page.Items[0].Kind)
	assert.Equal(t, "inactive", page.Items[0].Extra.Get("reason"))
}

// deactivatingAccounts deactivates the account right after handing out a
// snapshot, as an administrator acting between read and write would.
type deactivatingAccounts struct {
	*memory.AccountRepository
}

func (d *deactivatingAccounts) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	acc, err := d.AccountRepository.GetByEmail(ctx, email)
	if err != nil || acc == nil {
		return acc, err
	}
	return acc, d.SetStatus(ctx, acc.ID, model.AccountStatusInactive)
}

func TestAuthenticateDeactivatedMidLogin(t *testing.T) {
	f := setup(t)
	f.svc.accounts = &deactivatingAccounts{AccountRepository: f.accounts}

	_, err := f.svc.Authenticate(context.Background(), testEmail, testPassword, rc)
	assert.ErrorIs(t, err, apperrors.AccountInactive)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.svc.metrics.LoginAttempts.WithLabelValues("inactive")))
	assert.Equal(t, float64(0), testutil.ToFloat64(f.svc.metrics.LoginAttempts.WithLabelValues("locked")))
	assert.Nil(t, f.reload(t).LastLoginAt)
}

func TestAuthenticateConcurrentFailuresLockExactlyOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Authenticate(ctx, testEmail, "wrong-password-1", rc)
			assert.Error(t, err)
		}()
	}
	wg.Wait()

	acc := f.reload(t)
	assert.Equal(t, 5, acc.FailedLoginAttempts)
	require.NotNil(t, acc.LockedUntil)

	var failed, locked int
	for _, k := range f.audit.Kinds() {
		switch k {
		case model.ActivityLoginFailed:
			failed++
		case model.ActivityAccountLock:
			locked++
		}
	}
	assert.Equal(t, 5, failed)
	assert.Equal(t, 1, locked)
}

func TestAuthenticateSurvivesAuditOutage(t *testing.T) {
	f := setup(t)
	f.audit.fail = true

	_, err := f.svc.Authenticate(context.Background(), testEmail, "wrong-password-1", rc)
	assert.ErrorIs(t, err, apperrors.InvalidCredentials)
	assert.Equal(t, 1, f.reload(t).FailedLoginAttempts)

	_, err = f.svc.Authenticate(context.Background(), testEmail, testPassword, rc)
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong current password", func(t *testing.T) {
		f := setup(t)
		err := f.svc.ChangePassword(ctx, f.account.ID, "not-it-123", "fresh-secret-9", rc)
		assert.ErrorIs(t, err, apperrors.InvalidCredentials)
	})

	t.Run("weak password", func(t *testing.T) {
		f := setup(t)
		err := f.svc.ChangePassword(ctx, f.account.ID, testPassword, "short1", rc)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrWeakSecret))
	})

	t.Run("current password reused", func(t *testing.T) {
		f := setup(t)
		err := f.svc.ChangePassword(ctx, f.account.ID, testPassword, testPassword, rc)
		assert.ErrorIs(t, err, apperrors.SecretReuse)
	})

	t.Run("success records history and event", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.svc.ChangePassword(ctx, f.account.ID, testPassword, "fresh-secret-9", rc))

		acc := f.reload(t)
		assert.NoError(t, f.hasher.Compare(acc.PasswordHash, "fresh-secret-9"))
		assert.Len(t, acc.PasswordHistory, 1)
		assert.Equal(t, []model.ActivityKind{model.ActivityPasswordChange}, f.audit.Kinds())

		err := f.svc.ChangePassword(ctx, f.account.ID, "fresh-secret-9", testPassword, rc)
		assert.ErrorIs(t, err, apperrors.SecretReuse)
	})
}

func TestChangePasswordHistoryWindow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	secrets := []string{"rotation-one-1", "rotation-two-2", "rotation-three-3", "rotation-four-4", "rotation-five-5"}
	current := testPassword
	for _, next := range secrets {
		require.NoError(t, f.svc.ChangePassword(ctx, f.account.ID, current, next, rc))
		current = next
	}

	// the original secret is the oldest of five remembered hashes
	err := f.svc.ChangePassword(ctx, f.account.ID, current, testPassword, rc)
	assert.ErrorIs(t, err, apperrors.SecretReuse)

	require.NoError(t, f.svc.ChangePassword(ctx, f.account.ID, current, "rotation-six-6", rc))
	current = "rotation-six-6"

	// one more change evicted it
	require.NoError(t, f.svc.ChangePassword(ctx, f.account.ID, current, testPassword, rc))
	assert.Len(t, f.reload(t).PasswordHistory, model.MaxPasswordHistory)
}

// gatedAccounts holds every GetByID caller until n of them have read the
// account, so they all act on the same snapshot.
type gatedAccounts struct {
	*memory.AccountRepository
	arrived sync.WaitGroup
}

func newGatedAccounts(repo *memory.AccountRepository, n int) *gatedAccounts {
	g := &gatedAccounts{AccountRepository: repo}
	g.arrived.Add(n)
	return g
}

func (g *gatedAccounts) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	acc, err := g.AccountRepository.GetByID(ctx, id)
	g.arrived.Done()
	g.arrived.Wait()
	return acc, err
}

func TestConcurrentChangesToSameSecret(t *testing.T) {
	f := setup(t)
	f.svc.accounts = newGatedAccounts(f.accounts, 2)
	const next = "Brand-New-Secret-77"

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.ChangePassword(context.Background(), f.account.ID, testPassword, next, rc)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		// the loser's current secret is no longer the stored one
		assert.ErrorIs(t, err, apperrors.InvalidCredentials)
	}
	assert.Equal(t, 1, succeeded)

	acc := f.reload(t)
	assert.NoError(t, f.hasher.Compare(acc.PasswordHash, next))
	require.Len(t, acc.PasswordHistory, 1)
	for _, old := range acc.PasswordHistory {
		assert.Error(t, f.hasher.Compare(old, next))
	}
}

func TestConcurrentResetsWithOneToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.svc.RequestPasswordReset(ctx, testEmail, rc))
	token := f.mailer.sent[0].token

	f.svc.accounts = newGatedAccounts(f.accounts, 2)
	secrets := []string{"first-reset-secret-1", "second-reset-secret-2"}
	errs := make([]error, len(secrets))
	var wg sync.WaitGroup
	for i := range secrets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.CompletePasswordReset(ctx, token, secrets[i], rc)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperrors.TokenInvalidOrExpired)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.reload(t).PasswordHistory, 1)
}

func TestPasswordResetFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = f.svc.Authenticate(ctx, testEmail, "wrong-password-1", rc)
	}
	require.NotNil(t, f.reload(t).LockedUntil)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, testEmail, rc))
	require.Len(t, f.mailer.sent, 1)
	token := f.mailer.sent[0].token
	assert.Equal(t, testEmail, f.mailer.sent[0].to)

	err := f.svc.CompletePasswordReset(ctx, token, testPassword, rc)
	assert.ErrorIs(t, err, apperrors.SecretReuse)

	require.NoError(t, f.svc.CompletePasswordReset(ctx, token, "brand-new-secret-7", rc))

	acc := f.reload(t)
	assert.Equal(t, 0, acc.FailedLoginAttempts)
	assert.Nil(t, acc.LockedUntil)
	assert.Contains(t, f.audit.Kinds(), model.ActivityPasswordResetRequest)
	assert.Contains(t, f.audit.Kinds(), model.ActivityPasswordReset)

	_, err = f.svc.Authenticate(ctx, testEmail, "brand-new-secret-7", rc)
	assert.NoError(t, err)

	err = f.svc.CompletePasswordReset(ctx, token, "another-secret-8", rc)
	assert.ErrorIs(t, err, apperrors.TokenInvalidOrExpired)
}

func TestPasswordResetTokenExpires(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestPasswordReset(ctx, testEmail, rc))
	require.Len(t, f.mailer.sent, 1)

	f.advance(2 * time.Hour)
	err := f.svc.CompletePasswordReset(ctx, f.mailer.sent[0].token, "brand-new-secret-7", rc)
	assert.ErrorIs(t, err, apperrors.TokenInvalidOrExpired)
}

func TestRequestPasswordResetHidesUnknownAccounts(t *testing.T) {
	f := setup(t)

	assert.NoError(t, f.svc.RequestPasswordReset(context.Background(), "ghost@clinic.example", rc))
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.audit.Kinds())
}

func TestCompletePasswordResetUnknownToken(t *testing.T) {
	f := setup(t)
	err := f.svc.CompletePasswordReset(context.Background(), "bogus", "brand-new-secret-7", rc)
	assert.ErrorIs(t, err, apperrors.TokenInvalidOrExpired)
}

func TestLogoutRevokesTokens(t *testing.T) {
	f := setup(t)
	f.svc.now = time.Now
	ctx := context.Background()

	tokens, err := f.svc.Authenticate(ctx, testEmail, testPassword, rc)
	require.NoError(t, err)

	_, err = f.svc.ValidateToken(ctx, tokens.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, tokens.AccessToken, tokens.RefreshToken, rc))

	_, err = f.svc.ValidateToken(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, apperrors.TokenInvalidOrExpired)
	_, err = f.svc.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.TokenInvalidOrExpired)
	assert.Contains(t, f.audit.Kinds(), model.ActivityLogout)
}

func TestRefreshRotatesRefreshToken(t *testing.T) {
	f := setup(t)
	f.svc.now = time.Now
	ctx := context.Background()

	tokens, err := f.svc.Authenticate(ctx, testEmail, testPassword, rc)
	require.NoError(t, err)

	next, err := f.svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, next.RefreshToken)

	_, err = f.svc.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.TokenInvalidOrExpired)

	_, err = f.svc.ValidateToken(ctx, next.AccessToken)
	assert.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := setup(t)
	f.svc.now = time.Now

	tokens, err := f.svc.Authenticate(context.Background(), testEmail, testPassword, rc)
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), tokens.AccessToken)
	assert.ErrorIs(t, err, apperrors.TokenInvalidOrExpired)
}
