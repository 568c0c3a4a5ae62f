// Package gormstore implements the engine's identity and role provider
// interfaces over a GORM-managed SQL database.
package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/opsdeck/authcore"
)

// Store adapts a *gorm.DB to [authcore.IdentityProvider] and
// [authcore.RoleProvider].
type Store struct {
	db *gorm.DB
}

var (
	_ authcore.IdentityProvider = (*Store)(nil)
	_ authcore.RoleProvider     = (*Store)(nil)
)

// New wraps an open GORM handle. The caller owns the connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the user and role tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&User{}, &CustomRole{})
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (authcore.UserRecord, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return authcore.UserRecord{}, authcore.ErrUserNotFound
		}
		return authcore.UserRecord{}, err
	}
	return toUserRecord(user), nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (authcore.UserRecord, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return authcore.UserRecord{}, authcore.ErrUserNotFound
		}
		return authcore.UserRecord{}, err
	}
	return toUserRecord(user), nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	res := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Update("password_hash", newHash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func (s *Store) RecordLogin(ctx context.Context, userID, originAddress string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"last_login_at":  at,
			"last_origin_ip": originAddress,
		}).Error
}

func (s *Store) GetCustomRole(ctx context.Context, roleID string) (authcore.CustomRoleRecord, error) {
	var role CustomRole
	err := s.db.WithContext(ctx).Where("id = ?", roleID).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return authcore.CustomRoleRecord{}, authcore.ErrRoleNotFound
		}
		return authcore.CustomRoleRecord{}, err
	}
	return toRoleRecord(role)
}

func (s *Store) CreateCustomRole(ctx context.Context, role authcore.CustomRoleRecord) (authcore.CustomRoleRecord, error) {
	perms, err := encodePermissions(role.Permissions)
	if err != nil {
		return authcore.CustomRoleRecord{}, err
	}

	row := CustomRole{
		ID:          role.RoleID,
		Name:        role.Name,
		System:      role.System,
		Permissions: perms,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return authcore.CustomRoleRecord{}, err
	}
	return toRoleRecord(row)
}

func (s *Store) UpdateCustomRole(ctx context.Context, role authcore.CustomRoleRecord) error {
	perms, err := encodePermissions(role.Permissions)
	if err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Model(&CustomRole{}).
		Where("id = ?", role.RoleID).
		Updates(map[string]any{
			"name":        role.Name,
			"permissions": perms,
			"updated_at":  role.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrRoleNotFound
	}
	return nil
}

func (s *Store) DeleteCustomRole(ctx context.Context, roleID string) error {
	res := s.db.WithContext(ctx).Where("id = ?", roleID).Delete(&CustomRole{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrRoleNotFound
	}
	return nil
}

func (s *Store) CountAssignedUsers(ctx context.Context, roleID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).
		Where("custom_role_id = ?", roleID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func toUserRecord(u User) authcore.UserRecord {
	rec := authcore.UserRecord{
		UserID:       u.ID,
		Username:     u.Username,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		CustomRoleID: u.CustomRoleID,
		Active:       u.Active,
		LastOriginIP: u.LastOriginIP,
	}
	if u.LastLoginAt != nil {
		rec.LastLoginAt = *u.LastLoginAt
	}
	return rec
}

func toRoleRecord(r CustomRole) (authcore.CustomRoleRecord, error) {
	perms, err := decodePermissions(r.Permissions)
	if err != nil {
		return authcore.CustomRoleRecord{}, err
	}
	return authcore.CustomRoleRecord{
		RoleID:      r.ID,
		Name:        r.Name,
		System:      r.System,
		Permissions: perms,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}
