package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-hub/campus-ops-api/internal/models"
)

// UserRepository provides persistence for users and audit records.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "id, email, password_hash, name, avatar_url, provider, provider_id, roles, enabled, created_at, updated_at"

// FindByEmail returns the user with the given email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE email = $1 LIMIT 1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID returns the user with the given identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1 LIMIT 1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns all users ordered by creation time.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users ORDER BY created_at DESC", userColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ListIDsByRole returns the ids of enabled users holding any of the given
// roles. Used by the dispatcher to fan notifications out to admins and
// technicians.
func (r *UserRepository) ListIDsByRole(ctx context.Context, roles ...models.UserRole) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	values := models.RoleSet(roles)
	query := "SELECT id FROM users WHERE enabled AND roles && $1::text[] ORDER BY created_at"
	arg, err := values.Value()
	if err != nil {
		return nil, fmt.Errorf("encode roles: %w", err)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, arg); err != nil {
		return nil, fmt.Errorf("list user ids by role: %w", err)
	}
	return ids, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	query := `INSERT INTO users (id, email, password_hash, name, avatar_url, provider, provider_id, roles, enabled, created_at, updated_at)
VALUES (:id, :email, :password_hash, :name, :avatar_url, :provider, :provider_id, :roles, :enabled, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateProfile refreshes name/avatar on sign-in (Google accounts).
func (r *UserRepository) UpdateProfile(ctx context.Context, id, name string, avatarURL *string) error {
	query := "UPDATE users SET name = $2, avatar_url = $3, updated_at = $4 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, name, avatarURL, time.Now().UTC()); err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return nil
}

// UpdateRoles replaces the user's role set.
func (r *UserRepository) UpdateRoles(ctx context.Context, id string, roles models.RoleSet) error {
	arg, err := roles.Value()
	if err != nil {
		return fmt.Errorf("encode roles: %w", err)
	}
	query := "UPDATE users SET roles = $2, updated_at = $3 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, arg, time.Now().UTC()); err != nil {
		return fmt.Errorf("update user roles: %w", err)
	}
	return nil
}

// ExistsByEmail reports whether an account already uses the email.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := "SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)"
	if err := r.db.GetContext(ctx, &exists, query, email); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

// CreateAuditLog records an admin mutation.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, detail, ip_address, user_agent, created_at)
VALUES (:id, :user_id, :action, :resource, :resource_id, :detail, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
