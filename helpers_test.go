package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/opsdeck/authcore/password"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

// fastPassword keeps argon2 cheap in tests.
var fastPassword = PasswordConfig{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

type fakeIdentity struct {
	mu    sync.Mutex
	users map[string]UserRecord // by user ID

	recordedLogins []string
	updatedHashes  map[string]string
}

func newFakeIdentity(users ...UserRecord) *fakeIdentity {
	f := &fakeIdentity{
		users:         make(map[string]UserRecord, len(users)),
		updatedHashes: make(map[string]string),
	}
	for _, u := range users {
		f.users[u.UserID] = u
	}
	return f
}

func (f *fakeIdentity) GetUserByUsername(_ context.Context, username string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (f *fakeIdentity) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeIdentity) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	f.users[userID] = u
	f.updatedHashes[userID] = newHash
	return nil
}

func (f *fakeIdentity) RecordLogin(_ context.Context, userID, originAddress string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordedLogins = append(f.recordedLogins, userID+"@"+originAddress)
	return nil
}

type fakeSender struct {
	mu    sync.Mutex
	codes []string
	fail  bool
}

func (f *fakeSender) SendOTP(_ context.Context, _, _, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeSender) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.codes) == 0 {
		t.Fatal("no code was delivered")
	}
	return f.codes[len(f.codes)-1]
}

type fakeRoles struct {
	mu       sync.Mutex
	roles    map[string]CustomRoleRecord
	assigned map[string]int
}

func newFakeRoles(roles ...CustomRoleRecord) *fakeRoles {
	f := &fakeRoles{
		roles:    make(map[string]CustomRoleRecord, len(roles)),
		assigned: make(map[string]int),
	}
	for _, r := range roles {
		f.roles[r.RoleID] = r
	}
	return f
}

func (f *fakeRoles) GetCustomRole(_ context.Context, roleID string) (CustomRoleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roles[roleID]
	if !ok {
		return CustomRoleRecord{}, ErrRoleNotFound
	}
	return r, nil
}

func (f *fakeRoles) CreateCustomRole(_ context.Context, role CustomRoleRecord) (CustomRoleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[role.RoleID] = role
	return role, nil
}

func (f *fakeRoles) UpdateCustomRole(_ context.Context, role CustomRoleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[role.RoleID]; !ok {
		return ErrRoleNotFound
	}
	f.roles[role.RoleID] = role
	return nil
}

func (f *fakeRoles) DeleteCustomRole(_ context.Context, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[roleID]; !ok {
		return ErrRoleNotFound
	}
	delete(f.roles, roleID)
	return nil
}

func (f *fakeRoles) CountAssignedUsers(_ context.Context, roleID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assigned[roleID], nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = testSigningKey
	cfg.Password = fastPassword
	return cfg
}

func hashPassword(t *testing.T, plaintext string) string {
	t.Helper()
	h, err := password.NewHasher(password.Params{
		Memory:      fastPassword.Memory,
		Iterations:  fastPassword.Time,
		Parallelism: fastPassword.Parallelism,
		SaltLength:  fastPassword.SaltLength,
		KeyLength:   fastPassword.KeyLength,
	}).Hash(plaintext)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return h
}

func testUser(t *testing.T) UserRecord {
	return UserRecord{
		UserID:       "u-1",
		Username:     "ada",
		Email:        "ada@example.com",
		DisplayName:  "Ada",
		PasswordHash: hashPassword(t, "correct horse"),
		Role:         "manager",
		Active:       true,
	}
}

type engineFixture struct {
	engine   *Engine
	identity *fakeIdentity
	sender   *fakeSender
	roles    *fakeRoles
	redis    *miniredis.Miniredis
}

func newTestEngine(t *testing.T, mutate func(*Config), users ...UserRecord) *engineFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	identity := newFakeIdentity(users...)
	sender := &fakeSender{}
	roles := newFakeRoles()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithIdentityProvider(identity).
		WithRoleProvider(roles).
		WithOTPSender(sender).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &engineFixture{
		engine:   engine,
		identity: identity,
		sender:   sender,
		roles:    roles,
		redis:    mr,
	}
}

func ctxFrom(ip, userAgent string) context.Context {
	ctx := context.Background()
	if ip != "" {
		ctx = WithClientIP(ctx, ip)
	}
	if userAgent != "" {
		ctx = WithUserAgent(ctx, userAgent)
	}
	return ctx
}
