package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"midad_platform/midad/auth"
	"midad_platform/midad/realtime"
	"midad_platform/midad/userdata"
	"midad_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WorkspaceService exposes the namespaced per-user record store. Each
// category holds one record per owner, replaced wholesale on save.
type WorkspaceService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	data     *userdata.Manager
	feed     realtime.Feed
}

func (s *WorkspaceService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Post("/initialize", s.Initialize)

		r.Get("/{category}", s.Get)
		r.Put("/{category}", s.Put)
		r.Delete("/{category}", s.Delete)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.UserDataAccessOnly(s.db))

		r.Get("/{user_id}/{category}", s.GetForUser)
	})

	return r
}

func workspaceErrorCode(err error) int {
	switch {
	case errors.Is(err, userdata.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, userdata.ErrInvalidCategory), errors.Is(err, userdata.ErrInvalidOwner):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type WorkspaceRecord struct {
	Category     string          `json:"category"`
	Data         json.RawMessage `json:"data"`
	LastModified time.Time       `json:"last_modified"`
}

func (s *WorkspaceService) getHandler(w http.ResponseWriter, r *http.Request, ownerId uuid.UUID) {
	name, err := utils.URLParam(r, "category")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	category := userdata.Category(name)

	var data json.RawMessage
	if err := s.data.Load(ownerId, category, &data); err != nil {
		http.Error(w, fmt.Sprintf("error loading workspace record: %v", err), workspaceErrorCode(err))
		return
	}

	lastModified, err := s.data.LastModified(ownerId, category)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading workspace record: %v", err), workspaceErrorCode(err))
		return
	}

	utils.WriteJsonResponse(w, WorkspaceRecord{
		Category:     string(category),
		Data:         data,
		LastModified: lastModified,
	})
}

func (s *WorkspaceService) Get(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.getHandler(w, r, user.Id)
}

func (s *WorkspaceService) GetForUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.getHandler(w, r, userId)
}

func (s *WorkspaceService) Put(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	name, err := utils.URLParam(r, "category")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	category := userdata.Category(name)

	var payload json.RawMessage
	if !utils.ParseRequestBody(w, r, &payload) {
		return
	}

	if err := s.data.Save(user.Id, category, payload); err != nil {
		http.Error(w, fmt.Sprintf("error saving workspace record: %v", err), workspaceErrorCode(err))
		return
	}

	publishChange(s.feed, user.Id, string(category))

	utils.WriteSuccess(w)
}

func (s *WorkspaceService) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	name, err := utils.URLParam(r, "category")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	category := userdata.Category(name)

	if err := s.data.Remove(user.Id, category); err != nil {
		http.Error(w, fmt.Sprintf("error removing workspace record: %v", err), workspaceErrorCode(err))
		return
	}

	publishChange(s.feed, user.Id, string(category))

	utils.WriteSuccess(w)
}

// Initialize seeds empty records for any category the caller does not have
// yet. Existing records survive, so clients can call it on every sign in.
func (s *WorkspaceService) Initialize(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.data.InitializeDefaults(user.Id); err != nil {
		http.Error(w, fmt.Sprintf("error initializing workspace: %v", err), workspaceErrorCode(err))
		return
	}

	utils.WriteSuccess(w)
}
