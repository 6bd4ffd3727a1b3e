package tests

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"midad_platform/midad/schema"
	"midad_platform/midad/services"
	"midad_platform/midad/userdata"

	"github.com/google/uuid"
)

func sortUserList(users []services.UserInfo) {
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
}

func TestSignupAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("user%d", i)
		email := fmt.Sprintf("user%d@mail.com", i)
		password := fmt.Sprintf("user%d_password", i)

		client := env.newClient()
		login, err := client.signup(name, email, password, "")
		if err != nil {
			t.Fatal(err)
		}

		_, err = client.signup(name, email, password, "")
		if err == nil {
			t.Fatal("duplicate signup should fail")
		}

		err = client.login(loginInfo{Email: "user@mail.com", Password: password})
		if err == nil {
			t.Fatal("login should fail with wrong email")
		}

		err = client.login(loginInfo{Email: email, Password: "password"})
		if err == nil {
			t.Fatal("login should fail with wrong password")
		}

		err = client.login(login)
		if err != nil {
			t.Fatal(err)
		}

		info, err := client.userInfo()
		if err != nil {
			t.Fatal(err)
		}

		if info.Name != name || info.Email != email || info.Id.String() != client.userId || info.Role != schema.RoleStudent {
			t.Fatalf("invalid info %v", info)
		}
		if !info.TokenExpiresAt.After(time.Now()) {
			t.Fatalf("token expiration should be in the future, got %v", info.TokenExpiresAt)
		}
	}
}

func TestSignupCannotGrantAdmin(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newClient()
	_, err := client.signup("sneaky", "sneaky@mail.com", "password", schema.RoleAdmin)
	if err == nil {
		t.Fatal("signup with admin role should be rejected")
	}

	_, err = client.signup("prof", "prof@mail.com", "password", schema.RoleProfessor)
	if err != nil {
		t.Fatalf("professor signup should be allowed: %v", err)
	}
}

func TestLoginInitializesWorkspaceDefaults(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc", "")
	if err != nil {
		t.Fatal(err)
	}

	record, err := user.getWorkspace("settings")
	if err != nil {
		t.Fatal(err)
	}

	var settings userdata.Settings
	if err := json.Unmarshal(record.Data, &settings); err != nil {
		t.Fatal(err)
	}
	if settings != userdata.DefaultSettings() {
		t.Fatalf("expected default settings, got %+v", settings)
	}

	sources, err := user.getWorkspace("sources")
	if err != nil {
		t.Fatal(err)
	}
	if string(sources.Data) != "[]" {
		t.Fatalf("new account sources should be empty, got %v", string(sources.Data))
	}

	research, err := user.getWorkspace("research")
	if err != nil {
		t.Fatal(err)
	}
	if string(research.Data) != "null" {
		t.Fatalf("new account research should be null, got %v", string(research.Data))
	}
}

func TestLoginPreservesExistingWorkspace(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc", "")
	if err != nil {
		t.Fatal(err)
	}

	custom := userdata.DefaultSettings()
	custom.Theme = "dark"
	if err := user.putWorkspace("settings", custom); err != nil {
		t.Fatal(err)
	}

	// Logging in again must not reset saved data.
	if err := user.login(loginInfo{Email: "abc@mail.com", Password: "abc_password"}); err != nil {
		t.Fatal(err)
	}

	record, err := user.getWorkspace("settings")
	if err != nil {
		t.Fatal(err)
	}
	var settings userdata.Settings
	if err := json.Unmarshal(record.Data, &settings); err != nil {
		t.Fatal(err)
	}
	if settings.Theme != "dark" {
		t.Fatalf("settings were reset on second login: %+v", settings)
	}
}

func TestListUsers(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	student, err := env.newUser("abc", "")
	if err != nil {
		t.Fatal(err)
	}

	prof, err := env.newUser("prof", schema.RoleProfessor)
	if err != nil {
		t.Fatal(err)
	}

	users, err := admin.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users for admin list, got %d", len(users))
	}
	sortUserList(users)
	if users[0].Name != "abc" || users[1].Name != adminName || users[2].Name != "prof" {
		t.Fatalf("invalid admin user list %v", users)
	}

	users, err = student.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Name != "abc" {
		t.Fatalf("invalid student user list: %v", users)
	}

	// A professor with no assigned students sees only themselves.
	users, err = prof.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Name != "prof" {
		t.Fatalf("invalid professor user list: %v", users)
	}

	anon := env.newClient()
	if _, err := anon.listUsers(); !errors.Is(err, ErrUnauthorized) {
		t.Fatal("expected unauthorized error")
	}
}

func TestPromoteDemoteAdmin(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	user1, err := env.newUser("abc", "")
	if err != nil {
		t.Fatal(err)
	}

	user2, err := env.newUser("xyz", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := user1.promoteAdmin(user2.userId); !errors.Is(err, ErrForbidden) {
		t.Fatal("students cannot promote admins")
	}

	if err := admin.promoteAdmin(user1.userId); err != nil {
		t.Fatalf("admin should be able to promote admin: %v", err)
	}

	if err := user1.promoteAdmin(user2.userId); err != nil {
		t.Fatal("new admin should be able to promote admin")
	}

	if err := admin.demoteAdmin(user1.userId); err != nil {
		t.Fatalf("admin should be demoted: %v", err)
	}

	if err := user1.demoteAdmin(user2.userId); !errors.Is(err, ErrForbidden) {
		t.Fatal("demoted admin cannot demote others")
	}

	// Demoting both remaining admins would leave none.
	if err := admin.demoteAdmin(user2.userId); err != nil {
		t.Fatal(err)
	}
	if err := admin.demoteAdmin(admin.userId); err == nil {
		t.Fatal("demoting the last admin should fail")
	}
}

func TestDeleteUserPurgesWorkspace(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("abc", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := user.putWorkspace("settings", userdata.DefaultSettings()); err != nil {
		t.Fatal(err)
	}

	userId := uuid.MustParse(user.userId)

	if err := admin.deleteUser(user.userId); err != nil {
		t.Fatal(err)
	}

	users, err := admin.listUsers()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Id.String() != admin.userId {
		t.Fatalf("invalid users after delete: %v", users)
	}

	var settings userdata.Settings
	err = env.data.Load(userId, userdata.CategorySettings, &settings)
	if !errors.Is(err, userdata.ErrRecordNotFound) {
		t.Fatalf("workspace records should be purged with the account, got %v", err)
	}
}
