package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/bucketing"
	"github.com/html-librarian/mig-catalog/internal/encryption"
	"github.com/html-librarian/mig-catalog/internal/hashing"
	"github.com/html-librarian/mig-catalog/internal/models"
	"github.com/html-librarian/mig-catalog/internal/repository/scylla"
	"github.com/html-librarian/mig-catalog/internal/security"
	"github.com/html-librarian/mig-catalog/internal/token"
	"github.com/html-librarian/mig-catalog/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserInactive       = errors.New("user is inactive")
	ErrInvalidInput       = errors.New("invalid input")
)

const minPasswordLength = 8

// RegisterRequest is the payload for account creation.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest carries login credentials. SourceID identifies the caller
// (client IP) for failure tracking and is filled by the handler, not the
// client.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	SourceID string `json:"-"`
	Endpoint string `json:"-"`
}

// LoginResult is the successful login response payload.
type LoginResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        *models.User `json:"user"`
}

// AuthService implements registration and credential login. All failure
// paths for login collapse into ErrInvalidCredentials so responses cannot
// distinguish a wrong password from an unknown email, and a missing user
// still burns a full hash verification to keep timing flat.
type AuthService struct {
	users     scylla.UserRepositoryInterface
	hasher    *hashing.Hasher
	encryptor *encryption.Manager
	buckets   *bucketing.Manager
	tokens    *token.Service
	security  *security.Manager
	accessTTL time.Duration
	logger    *zap.Logger
}

func NewAuthService(
	users scylla.UserRepositoryInterface,
	hasher *hashing.Hasher,
	encryptor *encryption.Manager,
	buckets *bucketing.Manager,
	tokens *token.Service,
	securityMgr *security.Manager,
	accessTTL time.Duration,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		hasher:    hasher,
		encryptor: encryptor,
		buckets:   buckets,
		tokens:    tokens,
		security:  securityMgr,
		accessTTL: accessTTL,
		logger:    logger,
	}
}

// Register creates a new account. The email is stored envelope-encrypted
// with a deterministic hash for the uniqueness check and later lookups.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	if err := validateRegistration(email, username, req.Password); err != nil {
		return nil, err
	}

	emailHash := hashing.LookupHash(email)

	if _, _, err := s.users.LookupByEmailHash(ctx, emailHash); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, scylla.ErrNotFound) {
		return nil, err
	}

	passwordHash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	envelope, err := s.encryptor.Encrypt(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt email: %w", err)
	}
	encryptedEmail, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode email envelope: %w", err)
	}

	userID := uuid.New()
	user := &models.User{
		UserBucket:     s.buckets.UserBucket(userID),
		UserID:         userID,
		Email:          email,
		EmailHash:      emailHash,
		EmailEncrypted: encryptedEmail,
		EmailKeyID:     envelope.KeyID,
		Username:       username,
		PasswordHash:   passwordHash,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		util.String("user_id", user.UserID.String()),
		util.String("username", user.Username))

	return user, nil
}

// Login verifies credentials and issues an access token. Failures are
// reported to the security manager keyed by the request source.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	emailHash := hashing.LookupHash(email)

	bucket, userID, err := s.users.LookupByEmailHash(ctx, emailHash)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			// Unknown email burns the same hashing work as a real check.
			s.hasher.DummyVerify()
			s.recordFailure(req)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	user, err := s.users.GetByID(ctx, bucket, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			s.hasher.DummyVerify()
			s.recordFailure(req)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		s.recordFailure(req)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.recordFailure(req)
		return nil, ErrUserInactive
	}

	accessToken, err := s.tokens.Issue(user.UserID.String(), s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.UserBucket, user.UserID, now); err != nil {
		// Login still succeeds; the timestamp is advisory.
		s.logger.Warn("failed to update last login",
			util.String("user_id", user.UserID.String()), util.ErrorField(err))
	}
	user.LastLogin = &now
	user.Email = email
	user.PasswordHash = ""

	if req.SourceID != "" {
		s.security.Reset(req.SourceID)
	}

	s.logger.Info("user logged in", util.String("user_id", user.UserID.String()))

	return &LoginResult{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int(s.accessTTL.Seconds()),
		User:        user,
	}, nil
}

func (s *AuthService) recordFailure(req LoginRequest) {
	if req.SourceID == "" {
		return
	}
	s.security.RecordFailure(req.SourceID, req.Endpoint)
}

func validateRegistration(email, username, password string) error {
	if email == "" || username == "" || password == "" {
		return fmt.Errorf("%w: email, username and password are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(username) < 3 || len(username) > 64 {
		return fmt.Errorf("%w: username must be between 3 and 64 characters", ErrInvalidInput)
	}
	if util.ContainsSuspicious(username) {
		return fmt.Errorf("%w: username contains invalid characters", ErrInvalidInput)
	}
	return nil
}
