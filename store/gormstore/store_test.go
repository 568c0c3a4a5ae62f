package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/opsdeck/authcore"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}

	return New(gormDB), mock
}

func userColumns() []string {
	return []string{
		"id", "username", "email", "display_name", "password_hash",
		"role", "custom_role_id", "active", "last_login_at",
		"last_origin_ip", "created_at", "updated_at",
	}
}

func TestGetUserByUsername(t *testing.T) {
	store, mock := newTestStore(t)

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE username = \$1`).
		WithArgs("ada", 1).
		WillReturnRows(sqlmock.NewRows(userColumns()).AddRow(
			"u-1", "ada", "ada@example.com", "Ada", "$argon2id$...",
			"manager", "", true, nil, "203.0.113.9", now, now,
		))

	user, err := store.GetUserByUsername(context.Background(), "ada")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user.UserID != "u-1" || user.Role != "manager" || !user.Active {
		t.Fatalf("unexpected record: %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetUserByUsernameNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE username = \$1`).
		WithArgs("ghost", 1).
		WillReturnRows(sqlmock.NewRows(userColumns()))

	_, err := store.GetUserByUsername(context.Background(), "ghost")
	if !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdatePasswordHash(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE "users" SET "password_hash"=\$1,"updated_at"=\$2 WHERE id = \$3`).
		WithArgs("new-hash", sqlmock.AnyArg(), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdatePasswordHash(context.Background(), "u-1", "new-hash"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdatePasswordHashUnknownUser(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE "users" SET "password_hash"=\$1,"updated_at"=\$2 WHERE id = \$3`).
		WithArgs("new-hash", sqlmock.AnyArg(), "nobody").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdatePasswordHash(context.Background(), "nobody", "new-hash")
	if !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGetCustomRole(t *testing.T) {
	store, mock := newTestStore(t)

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "custom_roles" WHERE id = \$1`).
		WithArgs("r-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "system", "permissions", "created_at", "updated_at",
		}).AddRow(
			"r-1", "auditors", false, `{"crm":["read"],"billing":["read"]}`, now, now,
		))

	role, err := store.GetCustomRole(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("GetCustomRole: %v", err)
	}
	if role.Name != "auditors" {
		t.Fatalf("unexpected role: %+v", role)
	}
	if len(role.Permissions["crm"]) != 1 || role.Permissions["crm"][0] != "read" {
		t.Fatalf("unexpected permissions: %+v", role.Permissions)
	}
}

func TestGetCustomRoleNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT \* FROM "custom_roles" WHERE id = \$1`).
		WithArgs("ghost", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "system", "permissions", "created_at", "updated_at"}))

	_, err := store.GetCustomRole(context.Background(), "ghost")
	if !errors.Is(err, authcore.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestCountAssignedUsers(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "users" WHERE custom_role_id = \$1`).
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := store.CountAssignedUsers(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("CountAssignedUsers: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestDeleteCustomRole(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`DELETE FROM "custom_roles" WHERE id = \$1`).
		WithArgs("r-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.DeleteCustomRole(context.Background(), "r-1"); err != nil {
		t.Fatalf("DeleteCustomRole: %v", err)
	}
}

func TestPermissionsRoundTrip(t *testing.T) {
	perms := map[string][]string{"tasks": {"read", "write"}}

	encoded, err := encodePermissions(perms)
	if err != nil {
		t.Fatalf("encodePermissions: %v", err)
	}
	decoded, err := decodePermissions(encoded)
	if err != nil {
		t.Fatalf("decodePermissions: %v", err)
	}
	if len(decoded["tasks"]) != 2 {
		t.Fatalf("unexpected decode: %+v", decoded)
	}

	if _, err := decodePermissions("{not json"); err == nil {
		t.Fatal("expected error for malformed permissions document")
	}
}
