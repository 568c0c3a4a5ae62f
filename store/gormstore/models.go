package gormstore

import (
	"encoding/json"
	"time"
)

// User is the account row backing [authcore.IdentityProvider].
type User struct {
	ID           string `gorm:"primaryKey;size:64"`
	Username     string `gorm:"uniqueIndex;size:128;not null"`
	Email        string `gorm:"size:255;not null"`
	DisplayName  string `gorm:"size:255"`
	PasswordHash string `gorm:"size:512;not null"`
	Role         string `gorm:"size:32;not null"`
	CustomRoleID string `gorm:"size:64;index"`
	Active       bool   `gorm:"not null;default:true"`
	LastLoginAt  *time.Time
	LastOriginIP string `gorm:"size:64"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CustomRole is an admin-defined role row. Permissions are stored as a
// JSON document mapping module to action list.
type CustomRole struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"uniqueIndex;size:128;not null"`
	System      bool   `gorm:"not null;default:false"`
	Permissions string `gorm:"type:text;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func encodePermissions(perms map[string][]string) (string, error) {
	if perms == nil {
		perms = map[string][]string{}
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodePermissions(raw string) (map[string][]string, error) {
	if raw == "" {
		return map[string][]string{}, nil
	}
	var perms map[string][]string
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		return nil, err
	}
	return perms, nil
}
