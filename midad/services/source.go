package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"midad_platform/midad/auth"
	"midad_platform/midad/realtime"
	"midad_platform/midad/schema"
	"midad_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SourceService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	feed     realtime.Feed
}

func (s *SourceService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/", s.List)
		r.Post("/", s.Create)
		r.Put("/{source_id}", s.Update)
		r.Delete("/{source_id}", s.Delete)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.UserDataAccessOnly(s.db))

		r.Get("/{user_id}/list", s.ListForUser)
	})

	return r
}

type SourceInfo struct {
	Id        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Url       string    `json:"url"`
	Type      string    `json:"type"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

func convertToSourceInfo(source *schema.Source) SourceInfo {
	return SourceInfo{
		Id:        source.Id,
		Title:     source.Title,
		Author:    source.Author,
		Url:       source.Url,
		Type:      source.Type,
		Notes:     source.Notes,
		CreatedAt: source.CreatedAt,
	}
}

func checkSourceType(sourceType string) error {
	switch sourceType {
	case schema.SourceBook, schema.SourceArticle, schema.SourceWebsite, schema.SourceOther:
		return nil
	}
	return fmt.Errorf("invalid source type '%v'", sourceType)
}

func (s *SourceService) listHandler(w http.ResponseWriter, userId uuid.UUID) {
	var sources []schema.Source
	result := s.db.Order("created_at desc").Find(&sources, "user_id = ?", userId)
	if result.Error != nil {
		slog.Error("sql error listing sources", "user_id", userId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing sources: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]SourceInfo, 0, len(sources))
	for _, source := range sources {
		infos = append(infos, convertToSourceInfo(&source))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *SourceService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.listHandler(w, user.Id)
}

func (s *SourceService) ListForUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.listHandler(w, userId)
}

type sourceRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Url    string `json:"url"`
	Type   string `json:"type"`
	Notes  string `json:"notes"`
}

func (s *SourceService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params sourceRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Title == "" {
		http.Error(w, "source title is required", http.StatusUnprocessableEntity)
		return
	}
	if params.Type == "" {
		params.Type = schema.SourceArticle
	}
	if err := checkSourceType(params.Type); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	source := schema.Source{
		Id:     uuid.New(),
		UserId: user.Id,
		Title:  params.Title,
		Author: params.Author,
		Url:    params.Url,
		Type:   params.Type,
		Notes:  params.Notes,
	}

	result := s.db.Create(&source)
	if result.Error != nil {
		slog.Error("sql error creating source", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating source: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	publishChange(s.feed, user.Id, realtime.KindSources)

	utils.WriteJsonResponse(w, convertToSourceInfo(&source))
}

// getOwnedSource loads a source and verifies it belongs to the caller. A
// source owned by someone else is reported as not found, not forbidden, so
// the endpoint does not confirm the id exists.
func getOwnedSource(txn *gorm.DB, sourceId, userId uuid.UUID) (schema.Source, error) {
	var source schema.Source
	result := txn.Limit(1).Find(&source, "id = ? AND user_id = ?", sourceId, userId)
	if result.Error != nil {
		slog.Error("sql error finding source", "source_id", sourceId, "error", result.Error)
		return schema.Source{}, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if result.RowsAffected == 0 {
		return schema.Source{}, CodedError(schema.ErrSourceNotFound, http.StatusNotFound)
	}
	return source, nil
}

func (s *SourceService) Update(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sourceId, err := utils.URLParamUUID(r, "source_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params sourceRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Title == "" {
		http.Error(w, "source title is required", http.StatusUnprocessableEntity)
		return
	}
	if params.Type == "" {
		params.Type = schema.SourceArticle
	}
	if err := checkSourceType(params.Type); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	var source schema.Source
	err = s.db.Transaction(func(txn *gorm.DB) error {
		source, err = getOwnedSource(txn, sourceId, user.Id)
		if err != nil {
			return err
		}

		source.Title = params.Title
		source.Author = params.Author
		source.Url = params.Url
		source.Type = params.Type
		source.Notes = params.Notes

		result := txn.Save(&source)
		if result.Error != nil {
			slog.Error("sql error updating source", "source_id", sourceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating source: %v", err), GetResponseCode(err))
		return
	}

	publishChange(s.feed, user.Id, realtime.KindSources)

	utils.WriteJsonResponse(w, convertToSourceInfo(&source))
}

func (s *SourceService) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sourceId, err := utils.URLParamUUID(r, "source_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		source, err := getOwnedSource(txn, sourceId, user.Id)
		if err != nil {
			return err
		}

		result := txn.Delete(&source)
		if result.Error != nil {
			slog.Error("sql error deleting source", "source_id", sourceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting source: %v", err), GetResponseCode(err))
		return
	}

	publishChange(s.feed, user.Id, realtime.KindSources)

	utils.WriteSuccess(w)
}
