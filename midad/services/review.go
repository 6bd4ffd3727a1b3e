package services

import (
	"errors"
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

type ReviewService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	feed     realtime.Feed
}

func (s *ReviewService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/submissions", s.ListSubmissions)
		r.Post("/submissions", s.Submit)
		r.Get("/submissions/{submission_id}", s.GetSubmission)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.ProfessorOnly())

		r.Get("/students", s.Students)
		r.Post("/submissions/{submission_id}/comments", s.Comment)
		r.Put("/submissions/{submission_id}/review", s.Review)
	})

	return r
}

type CommentInfo struct {
	Id        uuid.UUID `json:"id"`
	AuthorId  uuid.UUID `json:"author_id"`
	Comment   string    `json:"comment"`
	Kind      string    `json:"kind"`
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
}

type SubmissionInfo struct {
	Id            uuid.UUID  `json:"id"`
	StudentId     uuid.UUID  `json:"student_id"`
	StudentName   string     `json:"student_name,omitempty"`
	ChapterNumber int        `json:"chapter_number"`
	Title         string     `json:"title"`
	Content       string     `json:"content,omitempty"`
	Status        string     `json:"status"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`

	Comments []CommentInfo `json:"comments,omitempty"`
}

func convertToSubmissionInfo(submission *schema.ChapterSubmission) SubmissionInfo {
	info := SubmissionInfo{
		Id:            submission.Id,
		StudentId:     submission.StudentId,
		ChapterNumber: submission.ChapterNumber,
		Title:         submission.Title,
		Content:       submission.Content,
		Status:        submission.Status,
		SubmittedAt:   submission.SubmittedAt,
		ReviewedAt:    submission.ReviewedAt,
	}
	if submission.Student != nil {
		info.StudentName = submission.Student.Name
	}
	for _, comment := range submission.Comments {
		info.Comments = append(info.Comments, CommentInfo{
			Id:        comment.Id,
			AuthorId:  comment.AuthorId,
			Comment:   comment.Comment,
			Kind:      comment.Kind,
			Resolved:  comment.Resolved,
			CreatedAt: comment.CreatedAt,
		})
	}
	return info
}

func checkSubmissionStatus(status string) error {
	switch status {
	case schema.SubmissionPending, schema.SubmissionUnderReview, schema.SubmissionApproved, schema.SubmissionNeedsRevision:
		return nil
	}
	return fmt.Errorf("invalid submission status '%v'", status)
}

type StudentProgress struct {
	StudentId    uuid.UUID    `json:"student_id"`
	StudentName  string       `json:"student_name"`
	StudentEmail string       `json:"student_email"`
	Progress     ProgressInfo `json:"progress"`
}

// Students summarizes the progress of every student assigned to the calling
// supervisor. Admins see all students.
func (s *ReviewService) Students(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var students []schema.User
	if user.IsAdmin() {
		result := s.db.Find(&students, "role = ?", schema.RoleStudent)
		if result.Error != nil {
			slog.Error("sql error listing students", "error", result.Error)
			http.Error(w, fmt.Sprintf("error listing students: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
			return
		}
	} else {
		studentIds, err := schema.GetStudentIdsOf(user.Id, s.db)
		if err != nil {
			http.Error(w, fmt.Sprintf("error listing students: %v", err), http.StatusInternalServerError)
			return
		}
		if len(studentIds) > 0 {
			result := s.db.Find(&students, "id IN ?", studentIds)
			if result.Error != nil {
				slog.Error("sql error listing students", "supervisor_id", user.Id, "error", result.Error)
				http.Error(w, fmt.Sprintf("error listing students: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
				return
			}
		}
	}

	summaries := make([]StudentProgress, 0, len(students))
	for _, student := range students {
		progress, err := computeProgress(student.Id, s.db)
		if err != nil {
			http.Error(w, fmt.Sprintf("error computing progress: %v", err), http.StatusInternalServerError)
			return
		}
		summaries = append(summaries, StudentProgress{
			StudentId:    student.Id,
			StudentName:  student.Name,
			StudentEmail: student.Email,
			Progress:     progress,
		})
	}

	utils.WriteJsonResponse(w, summaries)
}

type submitRequest struct {
	ChapterNumber int    `json:"chapter_number"`
	Title         string `json:"title"`
	Content       string `json:"content"`
}

// Submit records a chapter for review and alerts the student's supervisor,
// if one is assigned.
func (s *ReviewService) Submit(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params submitRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Title == "" {
		http.Error(w, "submission title is required", http.StatusUnprocessableEntity)
		return
	}
	if params.ChapterNumber < 1 {
		http.Error(w, "chapter number must be positive", http.StatusUnprocessableEntity)
		return
	}

	submission := schema.ChapterSubmission{
		Id:            uuid.New(),
		StudentId:     user.Id,
		ChapterNumber: params.ChapterNumber,
		Title:         params.Title,
		Content:       params.Content,
		Status:        schema.SubmissionPending,
		SubmittedAt:   time.Now().UTC(),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Create(&submission); result.Error != nil {
			slog.Error("sql error creating submission", "user_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		supervisorId, err := schema.GetSupervisorOf(user.Id, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if supervisorId != uuid.Nil {
			if err := notifyUser(txn, s.feed, supervisorId, schema.NotificationResearch,
				"📄 فصل جديد للمراجعة",
				fmt.Sprintf("قام %v بتسليم الفصل %v: %v", user.Name, params.ChapterNumber, params.Title),
				"/supervisor/submissions"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating submission: %v", err), GetResponseCode(err))
		return
	}

	publishChange(s.feed, user.Id, realtime.KindReview)

	utils.WriteJsonResponse(w, convertToSubmissionInfo(&submission))
}

// ListSubmissions returns the submissions visible to the caller: their own
// for students, their assigned students' for supervisors, everyone's for
// admins. An optional status query param filters the result.
func (s *ReviewService) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db.Preload("Student")

	switch user.Role {
	case schema.RoleAdmin:
		// No scoping.
	case schema.RoleProfessor:
		studentIds, err := schema.GetStudentIdsOf(user.Id, s.db)
		if err != nil {
			http.Error(w, fmt.Sprintf("error listing submissions: %v", err), http.StatusInternalServerError)
			return
		}
		if len(studentIds) == 0 {
			utils.WriteJsonResponse(w, []SubmissionInfo{})
			return
		}
		query = query.Where("student_id IN ?", studentIds)
	default:
		query = query.Where("student_id = ?", user.Id)
	}

	if status := r.URL.Query().Get("status"); status != "" {
		if err := checkSubmissionStatus(status); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		query = query.Where("status = ?", status)
	}

	var submissions []schema.ChapterSubmission
	result := query.Order("submitted_at desc").Find(&submissions)
	if result.Error != nil {
		slog.Error("sql error listing submissions", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing submissions: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]SubmissionInfo, 0, len(submissions))
	for _, submission := range submissions {
		infos = append(infos, convertToSubmissionInfo(&submission))
	}
	utils.WriteJsonResponse(w, infos)
}

// getAccessibleSubmission loads a submission and verifies the caller may see
// it. A submission outside the caller's reach is reported as not found.
func (s *ReviewService) getAccessibleSubmission(r *http.Request, txn *gorm.DB, loadComments bool) (schema.ChapterSubmission, error) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		return schema.ChapterSubmission{}, CodedError(err, http.StatusInternalServerError)
	}

	submissionId, err := utils.URLParamUUID(r, "submission_id")
	if err != nil {
		return schema.ChapterSubmission{}, CodedError(err, http.StatusBadRequest)
	}

	submission, err := schema.GetSubmission(submissionId, txn, loadComments)
	if err != nil {
		if errors.Is(err, schema.ErrSubmissionNotFound) {
			return schema.ChapterSubmission{}, CodedError(err, http.StatusNotFound)
		}
		return schema.ChapterSubmission{}, CodedError(err, http.StatusInternalServerError)
	}

	allowed, err := auth.CanAccessUserData(user, submission.StudentId, txn)
	if err != nil {
		return schema.ChapterSubmission{}, CodedError(err, http.StatusInternalServerError)
	}
	if !allowed {
		return schema.ChapterSubmission{}, CodedError(schema.ErrSubmissionNotFound, http.StatusNotFound)
	}

	return submission, nil
}

func (s *ReviewService) GetSubmission(w http.ResponseWriter, r *http.Request) {
	submission, err := s.getAccessibleSubmission(r, s.db, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("error getting submission: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, convertToSubmissionInfo(&submission))
}

type commentRequest struct {
	Comment string `json:"comment"`
	Kind    string `json:"kind"`
}

// Comment attaches supervisor feedback to a submission. The first comment
// moves a pending submission under review, and the student is notified.
func (s *ReviewService) Comment(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params commentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Comment == "" {
		http.Error(w, "comment text is required", http.StatusUnprocessableEntity)
		return
	}
	if params.Kind == "" {
		params.Kind = schema.CommentGeneral
	}
	switch params.Kind {
	case schema.CommentGeneral, schema.CommentSuggestion, schema.CommentCorrection:
	default:
		http.Error(w, fmt.Sprintf("invalid comment kind '%v'", params.Kind), http.StatusUnprocessableEntity)
		return
	}

	var comment schema.ReviewComment
	var studentId uuid.UUID
	err = s.db.Transaction(func(txn *gorm.DB) error {
		submission, err := s.getAccessibleSubmission(r, txn, false)
		if err != nil {
			return err
		}
		studentId = submission.StudentId

		comment = schema.ReviewComment{
			Id:           uuid.New(),
			SubmissionId: submission.Id,
			AuthorId:     user.Id,
			Comment:      params.Comment,
			Kind:         params.Kind,
		}
		if result := txn.Create(&comment); result.Error != nil {
			slog.Error("sql error creating review comment", "submission_id", submission.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if submission.Status == schema.SubmissionPending {
			now := time.Now().UTC()
			updates := map[string]interface{}{"status": schema.SubmissionUnderReview, "reviewed_at": &now}
			if result := txn.Model(&submission).Updates(updates); result.Error != nil {
				slog.Error("sql error updating submission status", "submission_id", submission.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		return notifyUser(txn, s.feed, submission.StudentId, schema.NotificationResearch,
			"💬 تعليق جديد من المشرف",
			fmt.Sprintf("أضاف %v تعليقاً على الفصل %v", user.Name, submission.ChapterNumber),
			"/submissions")
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error adding comment: %v", err), GetResponseCode(err))
		return
	}

	publishChange(s.feed, studentId, realtime.KindReview)

	utils.WriteJsonResponse(w, CommentInfo{
		Id:        comment.Id,
		AuthorId:  comment.AuthorId,
		Comment:   comment.Comment,
		Kind:      comment.Kind,
		Resolved:  comment.Resolved,
		CreatedAt: comment.CreatedAt,
	})
}

type reviewRequest struct {
	Status string `json:"status"`
}

// Review settles a submission as approved or needing revision and tells the
// student.
func (s *ReviewService) Review(w http.ResponseWriter, r *http.Request) {
	var params reviewRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Status != schema.SubmissionApproved && params.Status != schema.SubmissionNeedsRevision {
		http.Error(w, fmt.Sprintf("review status must be '%v' or '%v'", schema.SubmissionApproved, schema.SubmissionNeedsRevision), http.StatusUnprocessableEntity)
		return
	}

	var studentId uuid.UUID
	err := s.db.Transaction(func(txn *gorm.DB) error {
		submission, err := s.getAccessibleSubmission(r, txn, false)
		if err != nil {
			return err
		}
		studentId = submission.StudentId

		now := time.Now().UTC()
		updates := map[string]interface{}{"status": params.Status, "reviewed_at": &now}
		if result := txn.Model(&submission).Updates(updates); result.Error != nil {
			slog.Error("sql error reviewing submission", "submission_id", submission.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		title := "✅ تمت الموافقة على الفصل"
		message := fmt.Sprintf("تمت الموافقة على الفصل %v: %v", submission.ChapterNumber, submission.Title)
		kind := schema.NotificationSuccess
		if params.Status == schema.SubmissionNeedsRevision {
			title = "📝 الفصل يحتاج إلى تعديل"
			message = fmt.Sprintf("يحتاج الفصل %v: %v إلى تعديلات، راجع ملاحظات المشرف", submission.ChapterNumber, submission.Title)
			kind = schema.NotificationWarning
		}

		return notifyUser(txn, s.feed, submission.StudentId, kind, title, message, "/submissions")
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error reviewing submission: %v", err), GetResponseCode(err))
		return
	}

	publishChange(s.feed, studentId, realtime.KindReview)

	utils.WriteSuccess(w)
}
