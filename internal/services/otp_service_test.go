package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"medicare/internal/models"
	"medicare/internal/repositories"
)

type fakeMailer struct {
	mu    sync.Mutex
	sent  map[string][]string
	fail  error
	calls int
}

func (m *fakeMailer) SendOTPEmail(email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return m.fail
	}
	if m.sent == nil {
		m.sent = map[string][]string{}
	}
	m.sent[email] = append(m.sent[email], code)
	return nil
}

func (m *fakeMailer) last(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := m.sent[email]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

type fakeAccounts struct {
	mu     sync.Mutex
	byMail map[string]*models.Account
	nextID int
	err    error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byMail: map[string]*models.Account{}}
}

func (f *fakeAccounts) Upsert(_ context.Context, email, userType string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if a, ok := f.byMail[email]; ok {
		cp := *a
		return &cp, nil
	}
	f.nextID++
	a := &models.Account{ID: f.nextID, Email: email, UserType: userType}
	f.byMail[email] = a
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) RecordLogin(ctx context.Context, email, userType string, at time.Time) (*models.Account, error) {
	if _, err := f.Upsert(ctx, email, userType); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.byMail[email]
	a.LastLogin = &at
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id int) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byMail {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type otpFixture struct {
	svc      *OTPService
	store    *repositories.MemoryOTPStore
	mailer   *fakeMailer
	accounts *fakeAccounts
	clock    *fakeClock
	tokens   TokenService
}

func newOTPFixture(t *testing.T) *otpFixture {
	t.Helper()
	f := &otpFixture{
		store:    repositories.NewMemoryOTPStore(),
		mailer:   &fakeMailer{},
		accounts: newFakeAccounts(),
		clock:    &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
		tokens:   NewTokenService("test-secret", 24*time.Hour),
	}
	f.svc = NewOTPService(f.store, f.accounts, f.mailer, f.tokens, OTPConfig{TTL: 10 * time.Minute, MaxAttempts: 3}, nil, nil)
	f.svc.now = f.clock.Now
	f.svc.hashCost = bcrypt.MinCost
	return f
}

const doctorEmail = "dr.house@example.com"

func TestIssue_SendsSixDigitCodeAndStoresHash(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, "  "+doctorEmail+" ", ""))

	code := f.mailer.last(doctorEmail)
	require.Len(t, code, 6)
	assert.GreaterOrEqual(t, code, "100000")

	pending, err := f.store.Get(ctx, doctorEmail)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.NotEqual(t, code, pending.CodeHash)
	assert.Equal(t, 0, pending.Attempts)
	assert.Equal(t, "doctor", pending.UserType)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), pending.ExpiresAt)
}

func TestIssue_RejectsMalformedEmail(t *testing.T) {
	f := newOTPFixture(t)
	for _, email := range []string{"", "no-at-sign", "a@b", "a b@c.d", "@example.com"} {
		err := f.svc.Issue(context.Background(), email, "doctor")
		assert.ErrorIs(t, err, ErrInvalidEmail, email)
	}
	assert.Equal(t, 0, f.mailer.calls)
	assert.Equal(t, 0, f.store.Len())
}

func TestIssue_DispatchFailureLeavesNoLiveCode(t *testing.T) {
	f := newOTPFixture(t)
	f.mailer.fail = errors.New("smtp down")

	err := f.svc.Issue(context.Background(), doctorEmail, "doctor")
	require.ErrorIs(t, err, ErrDispatchFailed)

	pending, err := f.store.Get(context.Background(), doctorEmail)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestIssue_DispatchFailureKeepsPreviousCode(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, doctorEmail, "doctor"))
	first := f.mailer.last(doctorEmail)

	f.mailer.fail = errors.New("smtp down")
	require.ErrorIs(t, f.svc.Issue(ctx, doctorEmail, "doctor"), ErrDispatchFailed)

	res, err := f.svc.Verify(ctx, doctorEmail, first)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
}

func TestIssue_AccountStoreFailure(t *testing.T) {
	f := newOTPFixture(t)
	f.accounts.err = errors.New("db down")

	err := f.svc.Issue(context.Background(), doctorEmail, "doctor")
	require.ErrorIs(t, err, ErrDependency)
	assert.Equal(t, 0, f.mailer.calls)
}

func TestIssue_ReissueReplacesCodeAndResetsAttempts(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	codes := []string{"111111", "222222"}
	f.svc.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	require.NoError(t, f.svc.Issue(ctx, doctorEmail, "doctor"))
	_, err := f.svc.Verify(ctx, doctorEmail, "999999")
	require.ErrorIs(t, err, ErrOTPInvalid)
	_, err = f.svc.Verify(ctx, doctorEmail, "999999")
	require.ErrorIs(t, err, ErrOTPInvalid)

	require.NoError(t, f.svc.Issue(ctx, doctorEmail, "doctor"))
	pending, _ := f.store.Get(ctx, doctorEmail)
	assert.Equal(t, 0, pending.Attempts)

	_, err = f.svc.Verify(ctx, doctorEmail, "111111")
	require.ErrorIs(t, err, ErrOTPInvalid, "first code is no longer live")

	res, err := f.svc.Verify(ctx, doctorEmail, "222222")
	require.NoError(t, err)
	assert.Equal(t, doctorEmail, res.Account.Email)
}

func TestVerify_Success(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, doctorEmail, "doctor"))

	res, err := f.svc.Verify(ctx, doctorEmail, f.mailer.last(doctorEmail))
	require.NoError(t, err)
	require.NotNil(t, res.Account.LastLogin)
	assert.Equal(t, f.clock.Now(), *res.Account.LastLogin)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), res.ExpiresAt)
	assert.NotEmpty(t, res.Token)
}

func TestVerify_TokenCarriesIdentity(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	f.clock.t = time.Now()
	require.NoError(t, f.svc.Issue(ctx, doctorEmail, "user"))

	res, err := f.svc.Verify(ctx, doctorEmail, f.mailer.last(doctorEmail))
	require.NoError(t, err)

	claims, err := f.tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Account.ID, claims.AccountID)
	assert.Equal(t, doctorEmail, claims.Email)
	assert.Equal(t, "user", claims.UserType)
	assert.Equal(t, f.clock.Now().UnixMilli(), claims.LoginTime)
}

func TestVerify_SingleUse(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, doctorEmail, "doctor"))
	code := f.mailer.last(doctorEmail)

	_, err := f.svc.Verify(ctx, doctorEmail, code)
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, doctorEmail, code)
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestVerify_NotFound(t *testing.T) {
	f := newOTPFixture(t)
	_, err := f.svc.Verify(context.Background(), doctorEmail, "123456")
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestVerify_MissingFields(t *testing.T) {
	f := newOTPFixture(t)
	_, err := f.svc.Verify(context.Background(), "", "123456")
	assert.ErrorIs(t, err, ErrOTPRequired)
	_, err = f.svc.Verify(context.Background(), doctorEmail, " ")
	assert.ErrorIs(t, err, ErrOTPRequired)
}

func TestVerify_ExpiredCodeIsRemoved(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, doctorEmail, "doctor"))
	code := f.mailer.last(doctorEmail)

	f.clock.Advance(10*time.Minute + time.Second)
	_, err := f.svc.Verify(ctx, doctorEmail, code)
	require.ErrorIs(t, err, ErrOTPExpired)

	_, err = f.svc.Verify(ctx, doctorEmail, code)
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestVerify_CodeValidUntilExpiryInstant(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, doctorEmail, "doctor"))

	f.clock.Advance(10 * time.Minute)
	_, err := f.svc.Verify(ctx, doctorEmail, f.mailer.last(doctorEmail))
	assert.NoError(t, err)
}

func TestVerify_LocksAfterThreeFailures(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, doctorEmail, "doctor"))
	code := f.mailer.last(doctorEmail)
	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}

	for i := 0; i < 3; i++ {
		_, err := f.svc.Verify(ctx, doctorEmail, wrong)
		require.ErrorIs(t, err, ErrOTPInvalid)
	}

	// the correct code no longer helps once the counter is exhausted
	_, err := f.svc.Verify(ctx, doctorEmail, code)
	require.ErrorIs(t, err, ErrOTPLocked)

	_, err = f.svc.Verify(ctx, doctorEmail, code)
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestVerify_ConcurrentAttemptsCountedOnce(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	f.svc.newCode = func() (string, error) { return "424242", nil }
	require.NoError(t, f.svc.Issue(ctx, doctorEmail, "doctor"))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		invalid int
		locked  int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Verify(ctx, doctorEmail, "111111")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrOTPInvalid):
				invalid++
			case errors.Is(err, ErrOTPLocked):
				locked++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, invalid)
	assert.Equal(t, 1, locked)
}

func TestSweep_RemovesOnlyExpired(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Issue(ctx, "old@example.com", "doctor"))
	f.clock.Advance(6 * time.Minute)
	require.NoError(t, f.svc.Issue(ctx, "new@example.com", "doctor"))
	f.clock.Advance(5 * time.Minute)

	n, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.store.Len())

	pending, _ := f.store.Get(ctx, "new@example.com")
	assert.NotNil(t, pending)
}

// pausingStore hands out the current entry and then blocks the first held Get until released.
type pausingStore struct {
	*repositories.MemoryOTPStore
	mu      sync.Mutex
	hold    bool
	entered chan struct{}
	release chan struct{}
}

func newPausingStore(inner *repositories.MemoryOTPStore) *pausingStore {
	return &pausingStore{MemoryOTPStore: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausingStore) holdNextGet() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hold = true
}

func (p *pausingStore) Get(ctx context.Context, email string) (*models.PendingVerification, error) {
	p.mu.Lock()
	hold := p.hold
	p.hold = false
	p.mu.Unlock()

	v, err := p.MemoryOTPStore.Get(ctx, email)
	if hold {
		close(p.entered)
		<-p.release
	}
	return v, err
}

func TestVerify_ResendDuringWrongGuessKeepsOnlyNewCode(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	store := newPausingStore(f.store)
	f.svc.store = store
	codes := []string{"111111", "222222"}
	f.svc.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	require.NoError(t, f.svc.Issue(ctx, doctorEmail, "doctor"))

	store.holdNextGet()
	verifyDone := make(chan error, 1)
	go func() {
		_, err := f.svc.Verify(ctx, doctorEmail, "999999")
		verifyDone <- err
	}()
	<-store.entered

	issueDone := make(chan error, 1)
	go func() { issueDone <- f.svc.Issue(ctx, doctorEmail, "doctor") }()
	require.Eventually(t, func() bool { return f.mailer.last(doctorEmail) == "222222" }, time.Second, 5*time.Millisecond)

	close(store.release)
	require.ErrorIs(t, <-verifyDone, ErrOTPInvalid)
	require.NoError(t, <-issueDone)

	_, err := f.svc.Verify(ctx, doctorEmail, "111111")
	require.ErrorIs(t, err, ErrOTPInvalid)

	res, err := f.svc.Verify(ctx, doctorEmail, "222222")
	require.NoError(t, err)
	assert.Equal(t, doctorEmail, res.Account.Email)
}

func TestVerify_EntryReplacedElsewhereIsNotRestored(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	store := newPausingStore(f.store)
	f.svc.store = store
	f.svc.newCode = func() (string, error) { return "111111", nil }
	require.NoError(t, f.svc.Issue(ctx, doctorEmail, "doctor"))

	store.holdNextGet()
	verifyDone := make(chan error, 1)
	go func() {
		_, err := f.svc.Verify(ctx, doctorEmail, "111111")
		verifyDone <- err
	}()
	<-store.entered

	// another instance issues a new code while the old entry is being checked
	hash, err := bcrypt.GenerateFromPassword([]byte("333333"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(ctx, &models.PendingVerification{
		Email:     doctorEmail,
		CodeHash:  string(hash),
		ExpiresAt: f.clock.Now().Add(10 * time.Minute),
		UserType:  "doctor",
	}))
	close(store.release)

	require.ErrorIs(t, <-verifyDone, ErrOTPInvalid, "stale code must not log in")
	pending, err := f.store.Get(ctx, doctorEmail)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, string(hash), pending.CodeHash)
	assert.Equal(t, 0, pending.Attempts)

	_, err = f.svc.Verify(ctx, doctorEmail, "333333")
	require.NoError(t, err)
}
