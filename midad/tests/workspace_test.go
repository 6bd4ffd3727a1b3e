package tests

import (
	"errors"
	"testing"
)

func TestWorkspaceRoundTrip(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc", "")
	if err != nil {
		t.Fatal(err)
	}

	payload := map[string]interface{}{"chapters": []string{"intro", "methods"}}
	if err := user.putWorkspace("research", payload); err != nil {
		t.Fatal(err)
	}

	record, err := user.getWorkspace("research")
	if err != nil {
		t.Fatal(err)
	}
	if record.Category != "research" {
		t.Fatalf("wrong category %v", record.Category)
	}
	if record.LastModified.IsZero() {
		t.Fatal("last modified should be set")
	}

	if err := user.deleteWorkspace("research"); err != nil {
		t.Fatal(err)
	}

	if _, err := user.getWorkspace("research"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted record should be gone, got %v", err)
	}
}

func TestWorkspaceRejectsUnknownCategory(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := user.putWorkspace("secrets", map[string]string{"a": "b"}); err == nil {
		t.Fatal("unknown category should be rejected")
	}
}

func TestWorkspaceIsolation(t *testing.T) {
	env := setupTestEnv(t)

	user1, err := env.newUser("abc", "")
	if err != nil {
		t.Fatal(err)
	}

	user2, err := env.newUser("xyz", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := user1.putWorkspace("research", map[string]string{"title": "بحث سري"}); err != nil {
		t.Fatal(err)
	}

	// Another student cannot read it.
	if _, err := user2.getWorkspaceOf(user1.userId, "research"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// The owner and an admin can.
	if _, err := user1.getWorkspaceOf(user1.userId, "research"); err != nil {
		t.Fatal(err)
	}

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := admin.getWorkspaceOf(user1.userId, "research"); err != nil {
		t.Fatal(err)
	}
}

func TestSupervisorWorkspaceAccess(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	student, err := env.newUser("student1", "")
	if err != nil {
		t.Fatal(err)
	}

	prof, err := env.newUser("prof1", "professor")
	if err != nil {
		t.Fatal(err)
	}

	if err := student.putWorkspace("research", map[string]string{"title": "بحث التخرج"}); err != nil {
		t.Fatal(err)
	}

	// Before assignment the professor has no access.
	if _, err := prof.getWorkspaceOf(student.userId, "research"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden before assignment, got %v", err)
	}

	if _, err := admin.assignSupervisor(student.userId, prof.userId); err != nil {
		t.Fatal(err)
	}

	if _, err := prof.getWorkspaceOf(student.userId, "research"); err != nil {
		t.Fatalf("assigned supervisor should have access: %v", err)
	}

	// Access is one directional: the student cannot read the supervisor's
	// workspace, and other professors are still locked out.
	if _, err := student.getWorkspaceOf(prof.userId, "research"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	otherProf, err := env.newUser("prof2", "professor")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := otherProf.getWorkspaceOf(student.userId, "research"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for unassigned professor, got %v", err)
	}
}

func TestAssignmentRevocationRemovesAccess(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	student, err := env.newUser("student1", "")
	if err != nil {
		t.Fatal(err)
	}

	prof, err := env.newUser("prof1", "professor")
	if err != nil {
		t.Fatal(err)
	}

	if err := student.putWorkspace("schedule", []map[string]string{{"title": "خطة"}}); err != nil {
		t.Fatal(err)
	}

	assignment, err := admin.assignSupervisor(student.userId, prof.userId)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := prof.getWorkspaceOf(student.userId, "schedule"); err != nil {
		t.Fatal(err)
	}

	if err := admin.removeAssignment(assignment.Id.String()); err != nil {
		t.Fatal(err)
	}

	if _, err := prof.getWorkspaceOf(student.userId, "schedule"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden after revocation, got %v", err)
	}
}
