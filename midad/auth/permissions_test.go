package auth

import (
	"testing"

	"midad_platform/midad/schema"

	"github.com/google/uuid"
)

func TestCanAccess(t *testing.T) {
	student := uuid.New()
	otherStudent := uuid.New()
	supervisor := uuid.New()
	otherProfessor := uuid.New()
	admin := uuid.New()

	tests := []struct {
		name              string
		actorId           uuid.UUID
		actorRole         string
		ownerId           uuid.UUID
		ownerSupervisorId uuid.UUID
		allowed           bool
	}{
		{"owner reads own data", student, schema.RoleStudent, student, supervisor, true},
		{"owner without supervisor reads own data", student, schema.RoleStudent, student, uuid.Nil, true},
		{"student cannot read another student", otherStudent, schema.RoleStudent, student, supervisor, false},
		{"admin reads any data", admin, schema.RoleAdmin, student, uuid.Nil, true},
		{"assigned supervisor reads student data", supervisor, schema.RoleProfessor, student, supervisor, true},
		{"unassigned professor cannot read student data", otherProfessor, schema.RoleProfessor, student, supervisor, false},
		{"professor cannot read unsupervised student", otherProfessor, schema.RoleProfessor, student, uuid.Nil, false},
		{"supervisor id equal to actor but wrong role", supervisor, schema.RoleStudent, student, supervisor, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			allowed := CanAccess(test.actorId, test.actorRole, test.ownerId, test.ownerSupervisorId)
			if allowed != test.allowed {
				t.Fatalf("expected allowed=%v, got %v", test.allowed, allowed)
			}
		})
	}
}

func TestCheckSignupRole(t *testing.T) {
	if err := checkSignupRole(schema.RoleStudent); err != nil {
		t.Fatalf("student signup should be allowed: %v", err)
	}
	if err := checkSignupRole(schema.RoleProfessor); err != nil {
		t.Fatalf("professor signup should be allowed: %v", err)
	}
	if err := checkSignupRole(schema.RoleAdmin); err == nil {
		t.Fatal("admin signup should be rejected")
	}
	if err := checkSignupRole("superuser"); err == nil {
		t.Fatal("unknown role should be rejected")
	}
}
