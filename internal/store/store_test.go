package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/suratbrts/cms/internal/database"
	"github.com/suratbrts/cms/internal/model"
	"github.com/suratbrts/cms/internal/query"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, mobile string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), mobile, "Test User")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestUserCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	us := NewUserStore(db)

	u, err := us.Create(ctx, "9876543210", "Asha")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Points != 0 {
		t.Errorf("points = %d, want 0", u.Points)
	}
	if u.Progress != 25 {
		t.Errorf("progress = %d, want 25", u.Progress)
	}
	if !u.IsActive {
		t.Error("expected new user to be active")
	}

	got, err := us.GetByMobile(ctx, "9876543210")
	if err != nil {
		t.Fatalf("get by mobile: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Fatalf("GetByMobile = %+v, want id %d", got, u.ID)
	}

	missing, err := us.GetByID(ctx, 9999)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestUserDuplicateMobile(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "9000000001")

	_, err := NewUserStore(db).Create(context.Background(), "9000000001", "Dup")
	if !IsUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}
}

func TestUserAddPointsRefusesNegative(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	us := NewUserStore(db)
	u := createTestUser(t, db, "9000000002")

	ok, err := us.AddPoints(ctx, u.ID, 30)
	if err != nil || !ok {
		t.Fatalf("credit: ok=%v err=%v", ok, err)
	}
	ok, err = us.AddPoints(ctx, u.ID, -50)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if ok {
		t.Error("expected overdraw to be refused")
	}

	got, _ := us.GetByID(ctx, u.ID)
	if got.Points != 30 {
		t.Errorf("points = %d, want 30", got.Points)
	}
}

func TestUserUpdateProfileProgress(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "9000000003")

	got, err := NewUserStore(db).UpdateProfile(context.Background(), u.ID, "Asha", "asha@example.com", "Adajan", "")
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if got.Progress != 75 {
		t.Errorf("progress = %d, want 75", got.Progress)
	}
}

func TestUserListSearch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	us := NewUserStore(db)
	us.Create(ctx, "9000000010", "Ravi Patel")
	us.Create(ctx, "9000000011", "Meera Shah")
	us.Create(ctx, "9000000012", "100%_literal")

	users, total, err := us.List(ctx, UserFilter{Search: "shah"}, query.NewPage(1, 10, 10))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(users) != 1 || users[0].Name != "Meera Shah" {
		t.Errorf("search shah = %d/%v", total, users)
	}

	_, total, _ = us.List(ctx, UserFilter{Search: "%_"}, query.NewPage(1, 10, 10))
	if total != 1 {
		t.Errorf("wildcard search total = %d, want 1", total)
	}
}

func TestRoleAndAdmin(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	rs := NewRoleStore(db)
	as := NewAdminStore(db)

	role, err := rs.Create(ctx, "Reviewer", "Reviews complaints", []string{model.PermComplaintsView})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if len(role.Permissions) != 1 || role.Permissions[0] != model.PermComplaintsView {
		t.Errorf("permissions = %v", role.Permissions)
	}

	admin, err := as.Create(ctx, "Officer", "officer@brts.in", "hash", &role.ID)
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if admin.RoleID == nil || *admin.RoleID != role.ID {
		t.Errorf("role id = %v, want %d", admin.RoleID, role.ID)
	}

	if _, err := rs.Update(ctx, role.ID, "Reviewer", "", []string{model.PermComplaintsView, model.PermComplaintsManage}); err != nil {
		t.Fatalf("update role: %v", err)
	}
	updated, _ := rs.GetByID(ctx, role.ID)
	if len(updated.Permissions) != 2 {
		t.Errorf("permissions after update = %v", updated.Permissions)
	}

	if err := as.SetActive(ctx, admin.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, _ := as.GetByEmail(ctx, "officer@brts.in")
	if got.IsActive {
		t.Error("expected admin to be inactive")
	}
}
