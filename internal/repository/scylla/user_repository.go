package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/html-librarian/mig-catalog/internal/models"
	"github.com/html-librarian/mig-catalog/internal/util"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// UserRepositoryInterface is what the service layer depends on.
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, bucket int, userID uuid.UUID) (*models.User, error)
	LookupByEmailHash(ctx context.Context, emailHash string) (int, uuid.UUID, error)
	List(ctx context.Context, limit int) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, bucket int, userID uuid.UUID, at time.Time) error
	Delete(ctx context.Context, user *models.User) error
}

type UserRepository struct {
	client *ScyllaClient
}

func NewUserRepository(client *ScyllaClient) *UserRepository {
	return &UserRepository{client: client}
}

// Create inserts the user row and the email lookup row in one logged batch
// so the two tables cannot diverge.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.CreateUser.Statement(),
		user.UserBucket, user.UserID, user.EmailHash, user.EmailEncrypted,
		user.EmailKeyID, user.Username, user.PasswordHash, user.IsActive,
		user.CreatedAt, user.UpdatedAt, user.LastLogin)

	batch.Query(r.client.Prepared.CreateEmailToUser.Statement(),
		user.EmailHash, user.UserBucket, user.UserID, user.CreatedAt)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("failed to create user",
			util.String("user_id", user.UserID.String()),
			util.ErrorField(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, bucket int, userID uuid.UUID) (*models.User, error) {
	user := &models.User{}

	query := r.client.Prepared.GetUserByID.Bind(bucket, userID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&user.UserBucket, &user.UserID, &user.EmailHash, &user.EmailEncrypted,
		&user.EmailKeyID, &user.Username, &user.PasswordHash, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLogin)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// LookupByEmailHash resolves the bucket and id for an email hash.
func (r *UserRepository) LookupByEmailHash(ctx context.Context, emailHash string) (int, uuid.UUID, error) {
	var bucket int
	var userID uuid.UUID

	query := r.client.Prepared.GetUserByEmailHash.Bind(emailHash).WithContext(ctx)

	if err := r.client.ScanWithRetry(query, &bucket, &userID); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return 0, uuid.Nil, ErrNotFound
		}
		return 0, uuid.Nil, fmt.Errorf("failed to lookup user by email: %w", err)
	}

	return bucket, userID, nil
}

// List scans user rows across buckets up to limit.
func (r *UserRepository) List(ctx context.Context, limit int) ([]*models.User, error) {
	iter := r.client.Prepared.ListUsers.WithContext(ctx).PageSize(limit).Iter()

	users := make([]*models.User, 0, limit)
	for len(users) < limit {
		user := &models.User{}
		if !iter.Scan(&user.UserBucket, &user.UserID, &user.EmailHash,
			&user.EmailEncrypted, &user.EmailKeyID, &user.Username,
			&user.PasswordHash, &user.IsActive, &user.CreatedAt,
			&user.UpdatedAt, &user.LastLogin) {
			break
		}
		users = append(users, user)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.UpdatedAt = &now

	query := r.client.Prepared.UpdateUser.
		Bind(user.Username, user.IsActive, user.UpdatedAt, user.UserBucket, user.UserID).
		WithContext(ctx)

	if err := query.Exec(); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, bucket int, userID uuid.UUID, at time.Time) error {
	query := r.client.Prepared.UpdateUserLastLogin.
		Bind(at, bucket, userID).
		WithContext(ctx)

	if err := query.Exec(); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// Delete removes the user row and its email lookup row together.
func (r *UserRepository) Delete(ctx context.Context, user *models.User) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.DeleteUser.Statement(), user.UserBucket, user.UserID)
	batch.Query(r.client.Prepared.DeleteEmailToUser.Statement(), user.EmailHash)

	if err := r.client.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
