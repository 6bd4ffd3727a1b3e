package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"midad_platform/midad/auth"
	"midad_platform/midad/schema"
	"midad_platform/midad/session"
	"midad_platform/midad/userdata"
	"midad_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	resolver *session.Resolver
	data     *userdata.Manager
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if s.userAuth.AllowDirectSignup() {
			r.Post("/signup", s.Signup)
		}

		r.Get("/login", s.LoginWithEmail)
		r.Post("/login-with-token", s.LoginWithToken)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/list", s.List)
		r.Get("/info", s.Info)
		r.Post("/logout", s.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Post("/create", s.CreateUser)

		r.Delete("/{user_id}", s.DeleteUser)

		r.Post("/{user_id}/admin", s.PromoteAdmin)
		r.Delete("/{user_id}/admin", s.DemoteAdmin)
	})

	return r
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type signupResponse struct {
	UserId uuid.UUID `json:"user_id"`
}

func (s *UserService) Signup(w http.ResponseWriter, r *http.Request) {
	var params signupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if !s.userAuth.AllowDirectSignup() {
		http.Error(w, "direct signup is not supported for this identity provider", http.StatusBadRequest)
		return
	}

	if params.Role == "" {
		params.Role = schema.RoleStudent
	}

	userId, err := s.userAuth.CreateUser(auth.NewUserArgs{
		Name: params.Name, Email: params.Email, Password: params.Password, Role: params.Role,
	})
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrEmailAlreadyInUse):
			responseCode = http.StatusConflict
		case errors.Is(err, auth.ErrInvalidRole):
			responseCode = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), responseCode)
		return
	}

	if err := s.data.InitializeDefaults(userId); err != nil {
		http.Error(w, fmt.Sprintf("error initializing workspace: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, signupResponse{UserId: userId})
}

type loginResponse struct {
	UserId      uuid.UUID `json:"user_id"`
	AccessToken string    `json:"access_token"`
}

func (s *UserService) LoginWithEmail(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	login, err := s.userAuth.LoginWithEmail(email, password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrUserNotFoundWithEmail):
			responseCode = http.StatusNotFound
		case errors.Is(err, auth.ErrInvalidCredentials):
			responseCode = http.StatusUnauthorized
		}
		http.Error(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	if err := s.completeSignIn(login.UserId); err != nil {
		http.Error(w, fmt.Sprintf("login failed: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, loginResponse{UserId: login.UserId, AccessToken: login.AccessToken})
}

type loginWithTokenRequest struct {
	AccessToken string `json:"access_token"`
}

func (s *UserService) LoginWithToken(w http.ResponseWriter, r *http.Request) {
	var params loginWithTokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	login, err := s.userAuth.LoginWithToken(params.AccessToken)
	if err != nil {
		http.Error(w, fmt.Sprintf("login failed: %v", err), http.StatusInternalServerError)
		return
	}

	if err := s.completeSignIn(login.UserId); err != nil {
		http.Error(w, fmt.Sprintf("login failed: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, loginResponse{UserId: login.UserId, AccessToken: login.AccessToken})
}

// completeSignIn runs after the provider accepted credentials: the workspace
// gets its starting records if this is the first sign-in, and identity change
// subscribers hear about the transition.
func (s *UserService) completeSignIn(userId uuid.UUID) error {
	if err := s.data.InitializeDefaults(userId); err != nil {
		return CodedError(fmt.Errorf("error initializing workspace: %w", err), http.StatusInternalServerError)
	}

	s.resolver.NotifySignIn(userId)
	return nil
}

func (s *UserService) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.resolver.NotifySignOut(user.Id)

	utils.WriteSuccess(w)
}

func (s *UserService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, userId); err != nil {
			return err
		}

		deleteAssignments := txn.Where("student_id = ? or supervisor_id = ?", userId, userId).Delete(&schema.SupervisorAssignment{})
		if deleteAssignments.Error != nil {
			slog.Error("sql error deleting user assignments", "user_id", userId, "error", deleteAssignments.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		deleteUserResult := txn.Delete(&schema.User{Id: userId})
		if deleteUserResult.Error != nil {
			slog.Error("sql error deleting user", "user_id", userId, "error", deleteUserResult.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting user %v: %v", userId, err), GetResponseCode(err))
		return
	}

	if err := s.data.PurgeAll(userId); err != nil {
		http.Error(w, fmt.Sprintf("error purging workspace of user %v: %v", userId, err), http.StatusInternalServerError)
		return
	}

	if err := s.userAuth.DeleteUser(userId); err != nil {
		http.Error(w, fmt.Sprintf("error deleting user %v: %v", userId, err), http.StatusInternalServerError)
		return
	}

	s.resolver.NotifySignOut(userId)

	utils.WriteSuccess(w)
}

func (s *UserService) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		user.Role = schema.RoleAdmin

		result := txn.Save(&user)
		if result.Error != nil {
			slog.Error("sql error updating user role to admin", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error promoting admin: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *UserService) DemoteAdmin(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if !user.IsAdmin() {
			return CodedError(errors.New("user is already not an admin"), http.StatusUnprocessableEntity)
		}

		var count int64
		result := txn.Model(&schema.User{}).Where("role = ?", schema.RoleAdmin).Count(&count)
		if result.Error != nil {
			slog.Error("sql error counting existing admins", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if count < 2 {
			return CodedError(fmt.Errorf("cannot demote admin %v since there would be no admins left", userId), http.StatusUnprocessableEntity)
		}

		user.Role = schema.RoleStudent

		result = txn.Save(&user)
		if result.Error != nil {
			slog.Error("sql error updating user role", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error demoting admin: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type UserInfo struct {
	Id         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Department string    `json:"department"`
}

func convertToUserInfo(user *schema.User) UserInfo {
	return UserInfo{
		Id:         user.Id,
		Name:       user.Name,
		Email:      user.Email,
		Role:       user.Role,
		Department: user.Department,
	}
}

// List returns the users visible to the caller: admins see everyone,
// professors see their assigned students, students see themselves.
func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var users []schema.User

	switch {
	case user.IsAdmin():
		result := s.db.Find(&users)
		if result.Error != nil {
			slog.Error("sql error listing users", "error", result.Error)
			http.Error(w, fmt.Sprintf("error listing users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
			return
		}
	case user.Role == schema.RoleProfessor:
		studentIds, err := schema.GetStudentIdsOf(user.Id, s.db)
		if err != nil {
			http.Error(w, "error loading assigned students", http.StatusInternalServerError)
			return
		}
		if len(studentIds) > 0 {
			result := s.db.Find(&users, "id IN ?", studentIds)
			if result.Error != nil {
				slog.Error("sql error listing assigned students", "error", result.Error)
				http.Error(w, fmt.Sprintf("error listing users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
				return
			}
		}
		users = append(users, user)
	default:
		users = []schema.User{user}
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, convertToUserInfo(&u))
	}
	utils.WriteJsonResponse(w, infos)
}

type UserInfoResponse struct {
	UserInfo
	SupervisorId   *uuid.UUID `json:"supervisor_id,omitempty"`
	TokenExpiresAt time.Time  `json:"token_expires_at"`
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info := convertToUserInfo(&user)

	supervisorId, err := schema.GetSupervisorOf(user.Id, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error getting user info: %v", err), http.StatusInternalServerError)
		return
	}

	expiration, err := s.userAuth.GetTokenExpiration(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("error getting token expiration: %v", err), http.StatusInternalServerError)
		return
	}

	res := UserInfoResponse{UserInfo: info, TokenExpiresAt: expiration}
	if supervisorId != uuid.Nil {
		res.SupervisorId = &supervisorId
	}

	utils.WriteJsonResponse(w, res)
}

func (s *UserService) CreateUser(w http.ResponseWriter, r *http.Request) {
	var params signupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Role == "" {
		params.Role = schema.RoleStudent
	}

	userId, err := s.userAuth.CreateUser(auth.NewUserArgs{
		Name: params.Name, Email: params.Email, Password: params.Password, Role: params.Role,
	})
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrEmailAlreadyInUse):
			responseCode = http.StatusConflict
		case errors.Is(err, auth.ErrInvalidRole):
			responseCode = http.StatusUnprocessableEntity
		}
		http.Error(w, fmt.Sprintf("error creating user: %v", err), responseCode)
		return
	}

	if err := s.data.InitializeDefaults(userId); err != nil {
		http.Error(w, fmt.Sprintf("error initializing workspace: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, signupResponse{UserId: userId})
}
