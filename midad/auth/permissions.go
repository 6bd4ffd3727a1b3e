package auth

import (
	"fmt"
	"net/http"

	"midad_platform/midad/schema"
	"midad_platform/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CanAccess reports whether an actor may read another user's workspace data.
// It is a pure function of its inputs so callers can evaluate it without a db
// handle: the owner always may, admins always may, and a professor may when
// they are the owner's assigned supervisor. ownerSupervisorId is uuid.Nil
// when the owner has no supervisor.
func CanAccess(actorId uuid.UUID, actorRole string, ownerId, ownerSupervisorId uuid.UUID) bool {
	if actorId == ownerId {
		return true
	}
	if actorRole == schema.RoleAdmin {
		return true
	}
	if actorRole == schema.RoleProfessor && ownerSupervisorId != uuid.Nil && actorId == ownerSupervisorId {
		return true
	}
	return false
}

func CanAccessUserData(actor schema.User, ownerId uuid.UUID, db *gorm.DB) (bool, error) {
	if actor.Id == ownerId || actor.IsAdmin() {
		return true, nil
	}
	if actor.Role != schema.RoleProfessor {
		return false, nil
	}

	supervisorId, err := schema.GetSupervisorOf(ownerId, db)
	if err != nil {
		return false, err
	}

	return CanAccess(actor.Id, actor.Role, ownerId, supervisorId), nil
}

func AdminOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsAdmin() {
				http.Error(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

func ProfessorOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if user.Role != schema.RoleProfessor && !user.IsAdmin() {
				http.Error(w, fmt.Sprintf("user %v is not a supervisor", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// UserDataAccessOnly guards routes with a {user_id} path param that read
// another user's workspace. Requests from actors the predicate rejects are
// answered 403 without reaching the handler.
func UserDataAccessOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			ownerId, err := utils.URLParamUUID(r, "user_id")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			allowed, err := CanAccessUserData(user, ownerId, db)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !allowed {
				http.Error(w, fmt.Sprintf("user %v cannot access data of user %v", user.Id, ownerId), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
