package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"midad_platform/midad/auth"
	"midad_platform/midad/realtime"
	"midad_platform/midad/schema"
	"midad_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ResearchService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	feed     realtime.Feed
}

func (s *ResearchService) Routes() chi.Router {
	r := chi.NewRouter()

	// The gallery is the public face of the platform, no auth.
	r.Get("/gallery", s.Gallery)

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/", s.Get)
		r.Post("/", s.Save)
		r.Get("/progress", s.Progress)

		r.Post("/publish", s.Publish)
		r.Delete("/publish", s.Unpublish)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.UserDataAccessOnly(s.db))

		r.Get("/{user_id}", s.GetForUser)
		r.Get("/{user_id}/progress", s.ProgressForUser)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Post("/{research_id}/feature", s.Feature)
		r.Delete("/{research_id}/feature", s.Unfeature)
	})

	return r
}

type ResearchInfo struct {
	Id          uuid.UUID `json:"id"`
	UserId      uuid.UUID `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	WordCount   int       `json:"word_count"`
	Status      string    `json:"status"`

	IsPublished    bool       `json:"is_published"`
	IsFeatured     bool       `json:"is_featured"`
	Summary        string     `json:"summary,omitempty"`
	SupervisorName string     `json:"supervisor_name,omitempty"`
	GraduationYear int        `json:"graduation_year,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func convertToResearchInfo(research *schema.ResearchProject) ResearchInfo {
	return ResearchInfo{
		Id:             research.Id,
		UserId:         research.UserId,
		Title:          research.Title,
		Description:    research.Description,
		Content:        research.Content,
		WordCount:      research.WordCount,
		Status:         research.Status,
		IsPublished:    research.IsPublished,
		IsFeatured:     research.IsFeatured,
		Summary:        research.Summary,
		SupervisorName: research.SupervisorName,
		GraduationYear: research.GraduationYear,
		PublishedAt:    research.PublishedAt,
		UpdatedAt:      research.UpdatedAt,
	}
}

func (s *ResearchService) getResearchHandler(w http.ResponseWriter, userId uuid.UUID) {
	research, err := schema.GetResearch(userId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrResearchNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error getting research: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertToResearchInfo(&research))
}

func (s *ResearchService) Get(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.getResearchHandler(w, user.Id)
}

func (s *ResearchService) GetForUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.getResearchHandler(w, userId)
}

func checkResearchStatus(status string) error {
	if status != schema.ResearchPlanning && status != schema.ResearchInProgress && status != schema.ResearchCompleted {
		return fmt.Errorf("invalid research status '%v'", status)
	}
	return nil
}

type saveResearchRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Status      string `json:"status"`
}

// Save upserts the caller's research project. A user has one project; saving
// replaces it wholesale, the last writer wins.
func (s *ResearchService) Save(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params saveResearchRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Title == "" {
		http.Error(w, "research title is required", http.StatusUnprocessableEntity)
		return
	}
	if params.Status == "" {
		params.Status = schema.ResearchPlanning
	}
	if err := checkResearchStatus(params.Status); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	var research schema.ResearchProject

	err = s.db.Transaction(func(txn *gorm.DB) error {
		existing, err := schema.GetResearch(user.Id, txn)
		if err != nil && !errors.Is(err, schema.ErrResearchNotFound) {
			return CodedError(err, http.StatusInternalServerError)
		}

		if errors.Is(err, schema.ErrResearchNotFound) {
			research = schema.ResearchProject{Id: uuid.New(), UserId: user.Id}
		} else {
			research = existing
		}

		research.Title = params.Title
		research.Description = params.Description
		research.Content = params.Content
		research.WordCount = len(strings.Fields(params.Content))
		research.Status = params.Status

		result := txn.Save(&research)
		if result.Error != nil {
			slog.Error("sql error saving research", "user_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error saving research: %v", err), GetResponseCode(err))
		return
	}

	publishChange(s.feed, user.Id, realtime.KindResearch)

	utils.WriteJsonResponse(w, convertToResearchInfo(&research))
}

type ProgressInfo struct {
	ResearchId           *uuid.UUID `json:"research_id,omitempty"`
	ResearchTitle        string     `json:"research_title"`
	ResearchStatus       string     `json:"research_status"`
	WordCount            int        `json:"word_count"`
	TotalChapters        int        `json:"total_chapters"`
	ApprovedChapters     int        `json:"approved_chapters"`
	PendingReviews       int        `json:"pending_reviews"`
	CompletionPercentage int        `json:"completion_percentage"`
	LastActivity         *time.Time `json:"last_activity,omitempty"`
}

// The completion percentage assumes a thesis of five chapters.
const expectedChapters = 5

func computeProgress(userId uuid.UUID, db *gorm.DB) (ProgressInfo, error) {
	progress := ProgressInfo{ResearchStatus: schema.ResearchPlanning}

	research, err := schema.GetResearch(userId, db)
	if err != nil && !errors.Is(err, schema.ErrResearchNotFound) {
		return ProgressInfo{}, err
	}
	if err == nil {
		progress.ResearchId = &research.Id
		progress.ResearchTitle = research.Title
		progress.ResearchStatus = research.Status
		progress.WordCount = research.WordCount
		updatedAt := research.UpdatedAt
		progress.LastActivity = &updatedAt
	}

	var submissions []schema.ChapterSubmission
	result := db.Find(&submissions, "student_id = ?", userId)
	if result.Error != nil {
		slog.Error("sql error listing submissions for progress", "user_id", userId, "error", result.Error)
		return ProgressInfo{}, schema.ErrDbAccessFailed
	}

	progress.TotalChapters = len(submissions)
	for _, submission := range submissions {
		switch submission.Status {
		case schema.SubmissionApproved:
			progress.ApprovedChapters++
		case schema.SubmissionPending, schema.SubmissionUnderReview:
			progress.PendingReviews++
		}
	}

	progress.CompletionPercentage = min(progress.ApprovedChapters*100/expectedChapters, 100)

	return progress, nil
}

func (s *ResearchService) progressHandler(w http.ResponseWriter, userId uuid.UUID) {
	progress, err := computeProgress(userId, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error computing progress: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, progress)
}

func (s *ResearchService) Progress(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.progressHandler(w, user.Id)
}

func (s *ResearchService) ProgressForUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.progressHandler(w, userId)
}

type publishRequest struct {
	Summary        string `json:"summary"`
	SupervisorName string `json:"supervisor_name"`
	GraduationYear int    `json:"graduation_year"`
}

// Publish makes the caller's completed research visible in the public
// gallery.
func (s *ResearchService) Publish(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params publishRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		research, err := schema.GetResearch(user.Id, txn)
		if err != nil {
			if errors.Is(err, schema.ErrResearchNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if research.Status != schema.ResearchCompleted {
			return CodedError(errors.New("only completed research can be published"), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		research.IsPublished = true
		research.Summary = params.Summary
		research.SupervisorName = params.SupervisorName
		research.GraduationYear = params.GraduationYear
		research.PublishedAt = &now

		result := txn.Save(&research)
		if result.Error != nil {
			slog.Error("sql error publishing research", "user_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error publishing research: %v", err), GetResponseCode(err))
		return
	}

	publishChange(s.feed, user.Id, realtime.KindResearch)

	utils.WriteSuccess(w)
}

func (s *ResearchService) Unpublish(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		research, err := schema.GetResearch(user.Id, txn)
		if err != nil {
			if errors.Is(err, schema.ErrResearchNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		research.IsPublished = false
		research.IsFeatured = false
		research.PublishedAt = nil

		result := txn.Save(&research)
		if result.Error != nil {
			slog.Error("sql error unpublishing research", "user_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error unpublishing research: %v", err), GetResponseCode(err))
		return
	}

	publishChange(s.feed, user.Id, realtime.KindResearch)

	utils.WriteSuccess(w)
}

type GalleryEntry struct {
	Id             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary"`
	AuthorName     string     `json:"author_name"`
	SupervisorName string     `json:"supervisor_name"`
	GraduationYear int        `json:"graduation_year"`
	IsFeatured     bool       `json:"is_featured"`
	PublishedAt    *time.Time `json:"published_at"`
}

// Gallery lists published research. Optional filters: featured=true,
// year=<graduation year>.
func (s *ResearchService) Gallery(w http.ResponseWriter, r *http.Request) {
	query := s.db.Preload("User").Where("is_published = ?", true)

	if r.URL.Query().Get("featured") == "true" {
		query = query.Where("is_featured = ?", true)
	}

	year, err := utils.QueryParamInt(r, "year", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if year != 0 {
		query = query.Where("graduation_year = ?", year)
	}

	var projects []schema.ResearchProject
	result := query.Order("published_at desc").Find(&projects)
	if result.Error != nil {
		slog.Error("sql error listing gallery", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing gallery: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	entries := make([]GalleryEntry, 0, len(projects))
	for _, project := range projects {
		entry := GalleryEntry{
			Id:             project.Id,
			Title:          project.Title,
			Summary:        project.Summary,
			SupervisorName: project.SupervisorName,
			GraduationYear: project.GraduationYear,
			IsFeatured:     project.IsFeatured,
			PublishedAt:    project.PublishedAt,
		}
		if project.User != nil {
			entry.AuthorName = project.User.Name
		}
		entries = append(entries, entry)
	}

	utils.WriteJsonResponse(w, entries)
}

func (s *ResearchService) setFeatured(w http.ResponseWriter, r *http.Request, featured bool) {
	researchId, err := utils.URLParamUUID(r, "research_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var research schema.ResearchProject
		result := txn.Limit(1).Find(&research, "id = ?", researchId)
		if result.Error != nil {
			slog.Error("sql error finding research to feature", "research_id", researchId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(schema.ErrResearchNotFound, http.StatusNotFound)
		}

		if featured && !research.IsPublished {
			return CodedError(errors.New("only published research can be featured"), http.StatusUnprocessableEntity)
		}

		updateResult := txn.Model(&research).Update("is_featured", featured)
		if updateResult.Error != nil {
			slog.Error("sql error updating featured flag", "research_id", researchId, "error", updateResult.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating featured flag: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *ResearchService) Feature(w http.ResponseWriter, r *http.Request) {
	s.setFeatured(w, r, true)
}

func (s *ResearchService) Unfeature(w http.ResponseWriter, r *http.Request) {
	s.setFeatured(w, r, false)
}
