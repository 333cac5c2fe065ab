package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/bucketing"
	"github.com/html-librarian/mig-catalog/internal/encryption"
	"github.com/html-librarian/mig-catalog/internal/models"
	"github.com/html-librarian/mig-catalog/internal/repository/scylla"
	"github.com/html-librarian/mig-catalog/internal/util"
)

var ErrUserNotFound = errors.New("user not found")

// UserUpdateRequest carries the mutable profile fields.
type UserUpdateRequest struct {
	Username *string `json:"username,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// UserService reads and mutates account records. The stored email envelope
// is decrypted on read so API responses carry the plaintext address while
// the database never does.
type UserService struct {
	users     scylla.UserRepositoryInterface
	encryptor *encryption.Manager
	buckets   *bucketing.Manager
	logger    *zap.Logger
}

func NewUserService(
	users scylla.UserRepositoryInterface,
	encryptor *encryption.Manager,
	buckets *bucketing.Manager,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		users:     users,
		encryptor: encryptor,
		buckets:   buckets,
		logger:    logger,
	}
}

// Get loads a user by id and decrypts the email for the response.
func (s *UserService) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	bucket := s.buckets.UserBucket(userID)

	user, err := s.users.GetByID(ctx, bucket, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := s.decryptEmail(ctx, user); err != nil {
		// The record is still useful without the address.
		s.logger.Warn("failed to decrypt user email",
			util.String("user_id", user.UserID.String()), util.ErrorField(err))
	}
	user.PasswordHash = ""

	return user, nil
}

// List returns accounts without decrypting addresses: listings never need
// PII and skipping the unwrap keeps the scan cheap.
func (s *UserService) List(ctx context.Context, limit int) ([]*models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	users, err := s.users.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	for _, user := range users {
		user.PasswordHash = ""
	}
	return users, nil
}

// Update applies the provided profile fields.
func (s *UserService) Update(ctx context.Context, userID uuid.UUID, req UserUpdateRequest) (*models.User, error) {
	bucket := s.buckets.UserBucket(userID)

	user, err := s.users.GetByID(ctx, bucket, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if req.Username != nil {
		username := *req.Username
		if len(username) < 3 || len(username) > 64 || util.ContainsSuspicious(username) {
			return nil, fmt.Errorf("%w: invalid username", ErrInvalidInput)
		}
		user.Username = username
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	if err := s.decryptEmail(ctx, user); err != nil {
		s.logger.Warn("failed to decrypt user email",
			util.String("user_id", user.UserID.String()), util.ErrorField(err))
	}
	user.PasswordHash = ""

	return user, nil
}

// Delete removes the account and its email lookup row.
func (s *UserService) Delete(ctx context.Context, userID uuid.UUID) error {
	bucket := s.buckets.UserBucket(userID)

	user, err := s.users.GetByID(ctx, bucket, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := s.users.Delete(ctx, user); err != nil {
		return err
	}

	s.logger.Info("user deleted", util.String("user_id", userID.String()))
	return nil
}

func (s *UserService) decryptEmail(ctx context.Context, user *models.User) error {
	if len(user.EmailEncrypted) == 0 {
		return nil
	}

	var envelope encryption.EncryptedField
	if err := json.Unmarshal(user.EmailEncrypted, &envelope); err != nil {
		return fmt.Errorf("invalid email envelope: %w", err)
	}

	email, err := s.encryptor.Decrypt(ctx, &envelope)
	if err != nil {
		return err
	}

	user.Email = email
	return nil
}
