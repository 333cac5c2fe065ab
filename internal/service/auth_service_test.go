package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/bucketing"
	"github.com/html-librarian/mig-catalog/internal/config"
	"github.com/html-librarian/mig-catalog/internal/encryption"
	"github.com/html-librarian/mig-catalog/internal/hashing"
	"github.com/html-librarian/mig-catalog/internal/models"
	"github.com/html-librarian/mig-catalog/internal/repository/scylla"
	"github.com/html-librarian/mig-catalog/internal/security"
	"github.com/html-librarian/mig-catalog/internal/token"
)

// memoryUserRepo keeps users in maps, mirroring the users and
// email_to_user tables.
type memoryUserRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*models.User
	byEmail map[string]uuid.UUID
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		byID:    make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (r *memoryUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *user
	r.byID[user.UserID] = &stored
	r.byEmail[user.EmailHash] = user.UserID
	return nil
}

func (r *memoryUserRepo) GetByID(ctx context.Context, bucket int, userID uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[userID]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *memoryUserRepo) LookupByEmailHash(ctx context.Context, emailHash string) (int, uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byEmail[emailHash]
	if !ok {
		return 0, uuid.Nil, scylla.ErrNotFound
	}
	return r.byID[userID].UserBucket, userID, nil
}

func (r *memoryUserRepo) List(ctx context.Context, limit int) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]*models.User, 0, len(r.byID))
	for _, user := range r.byID {
		if len(users) >= limit {
			break
		}
		copied := *user
		users = append(users, &copied)
	}
	return users, nil
}

func (r *memoryUserRepo) Update(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[user.UserID]; !ok {
		return scylla.ErrNotFound
	}
	stored := *user
	r.byID[user.UserID] = &stored
	return nil
}

func (r *memoryUserRepo) UpdateLastLogin(ctx context.Context, bucket int, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[userID]
	if !ok {
		return scylla.ErrNotFound
	}
	user.LastLogin = &at
	return nil
}

func (r *memoryUserRepo) Delete(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, user.UserID)
	delete(r.byEmail, user.EmailHash)
	return nil
}

// testParams keeps argon2 cheap so the suite stays fast.
var testParams = hashing.Argon2Params{
	Memory:      8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func newAuthService(t *testing.T) (*AuthService, *memoryUserRepo, *security.Manager) {
	t.Helper()

	repo := newMemoryUserRepo()

	tokens, err := token.NewService(config.AuthConfig{
		SecretKey:      strings.Repeat("a", 64),
		Issuer:         "mig-catalog-api",
		Audience:       "mig-catalog-users",
		AccessTokenTTL: 30 * time.Minute,
		MaxTokenAge:    time.Hour,
	}, zap.NewNop())
	require.NoError(t, err)

	securityMgr := security.NewManager(config.SecurityConfig{
		MaxFailedAttempts: 10,
		AttemptWindow:     time.Hour,
		LockoutDuration:   15 * time.Minute,
	}, zap.NewNop(), nil)

	svc := NewAuthService(
		repo,
		hashing.NewHasher(testParams),
		encryption.NewManager(config.KMSConfig{Enabled: false}, nil, zap.NewNop()),
		bucketing.NewManager(config.BucketingConfig{UserBuckets: 100, EventBuckets: 100}),
		tokens,
		securityMgr,
		30*time.Minute,
		zap.NewNop(),
	)

	return svc, repo, securityMgr
}

func TestRegisterStoresEncryptedEmail(t *testing.T) {
	svc, repo, _ := newAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{
		Email:    "Alice@Example.com",
		Username: "alice",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)

	stored := repo.byID[user.UserID]
	require.NotNil(t, stored)
	assert.Equal(t, "alice@example.com", stored.Email)
	assert.NotEmpty(t, stored.EmailHash)
	assert.NotEmpty(t, stored.EmailEncrypted)
	assert.NotContains(t, string(stored.EmailEncrypted), "alice@example.com")
	assert.NotEqual(t, "correct-horse-battery", stored.PasswordHash)
	assert.True(t, stored.IsActive)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	req := RegisterRequest{Email: "bob@example.com", Username: "bob", Password: "long-enough-pass"}
	_, err := svc.Register(ctx, req)
	require.NoError(t, err)

	// Same address under different casing is still a duplicate.
	req.Email = "BOB@example.com"
	req.Username = "bob2"
	_, err = svc.Register(ctx, req)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing email", RegisterRequest{Username: "carol", Password: "long-enough-pass"}},
		{"bad email", RegisterRequest{Email: "not-an-address", Username: "carol", Password: "long-enough-pass"}},
		{"short password", RegisterRequest{Email: "carol@example.com", Username: "carol", Password: "short"}},
		{"short username", RegisterRequest{Email: "carol@example.com", Username: "ca", Password: "long-enough-pass"}},
		{"script in username", RegisterRequest{Email: "carol@example.com", Username: "<script>x</script>", Password: "long-enough-pass"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestLoginSuccess(t *testing.T) {
	svc, _, securityMgr := newAuthService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterRequest{
		Email:    "dave@example.com",
		Username: "dave",
		Password: "long-enough-pass",
	})
	require.NoError(t, err)

	// A prior failure must be cleared by the successful login.
	securityMgr.RecordFailure("10.0.0.1", "/api/v1/auth/login")

	result, err := svc.Login(ctx, LoginRequest{
		Email:    "dave@example.com",
		Password: "long-enough-pass",
		SourceID: "10.0.0.1",
		Endpoint: "/api/v1/auth/login",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, "bearer", result.TokenType)
	assert.Equal(t, int((30 * time.Minute).Seconds()), result.ExpiresIn)
	assert.Equal(t, registered.UserID, result.User.UserID)
	assert.Equal(t, "dave@example.com", result.User.Email)
	assert.Empty(t, result.User.PasswordHash)
	assert.NotNil(t, result.User.LastLogin)
	assert.Equal(t, 0, securityMgr.FailureCount("10.0.0.1"))
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, securityMgr := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{
		Email:    "erin@example.com",
		Username: "erin",
		Password: "long-enough-pass",
	})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginRequest{
		Email:    "erin@example.com",
		Password: "wrong-password-here",
		SourceID: "10.0.0.2",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, securityMgr.FailureCount("10.0.0.2"))
}

func TestLoginUnknownEmailLooksLikeWrongPassword(t *testing.T) {
	svc, _, securityMgr := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever-password",
		SourceID: "10.0.0.3",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, securityMgr.FailureCount("10.0.0.3"))
}

func TestLoginInactiveUser(t *testing.T) {
	svc, repo, _ := newAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{
		Email:    "frank@example.com",
		Username: "frank",
		Password: "long-enough-pass",
	})
	require.NoError(t, err)

	repo.byID[user.UserID].IsActive = false

	_, err = svc.Login(ctx, LoginRequest{
		Email:    "frank@example.com",
		Password: "long-enough-pass",
		SourceID: "10.0.0.4",
	})
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestLoginTokenVerifiesAgainstService(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterRequest{
		Email:    "grace@example.com",
		Username: "grace",
		Password: "long-enough-pass",
	})
	require.NoError(t, err)

	result, err := svc.Login(ctx, LoginRequest{
		Email:    "grace@example.com",
		Password: "long-enough-pass",
	})
	require.NoError(t, err)

	claims, err := svc.tokens.Verify(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.UserID.String(), claims.Subject)
}
