package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrResearchNotFound   = errors.New("research project not found")
	ErrSourceNotFound     = errors.New("source not found")
	ErrTaskNotFound       = errors.New("schedule task not found")
	ErrSubmissionNotFound = errors.New("chapter submission not found")
	ErrAssignmentNotFound = errors.New("supervisor assignment not found")
	ErrDbAccessFailed     = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

// GetResearch returns the owner's current research project. A user has at
// most one active project; the newest one wins if old rows linger.
func GetResearch(userId uuid.UUID, db *gorm.DB) (ResearchProject, error) {
	var research ResearchProject

	result := db.Order("created_at desc").First(&research, "user_id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return research, ErrResearchNotFound
		}
		slog.Error("sql error in get research", "user_id", userId, "error", result.Error)
		return research, ErrDbAccessFailed
	}

	return research, nil
}

func GetSubmission(submissionId uuid.UUID, db *gorm.DB, loadComments bool) (ChapterSubmission, error) {
	var submission ChapterSubmission

	query := db
	if loadComments {
		query = query.Preload("Comments")
	}
	result := query.First(&submission, "id = ?", submissionId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return submission, ErrSubmissionNotFound
		}
		slog.Error("sql error in get submission", "submission_id", submissionId, "error", result.Error)
		return submission, ErrDbAccessFailed
	}

	return submission, nil
}

// GetSupervisorOf returns the supervisor assigned to the given student, or
// uuid.Nil if no assignment exists.
func GetSupervisorOf(studentId uuid.UUID, db *gorm.DB) (uuid.UUID, error) {
	var assignment SupervisorAssignment

	result := db.Limit(1).Find(&assignment, "student_id = ?", studentId)
	if result.Error != nil {
		slog.Error("sql error in get supervisor of student", "student_id", studentId, "error", result.Error)
		return uuid.Nil, ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return uuid.Nil, nil
	}

	return assignment.SupervisorId, nil
}

// GetStudentIdsOf returns the ids of all students assigned to a supervisor.
func GetStudentIdsOf(supervisorId uuid.UUID, db *gorm.DB) ([]uuid.UUID, error) {
	var assignments []SupervisorAssignment

	result := db.Find(&assignments, "supervisor_id = ?", supervisorId)
	if result.Error != nil {
		slog.Error("sql error in get students of supervisor", "supervisor_id", supervisorId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}

	ids := make([]uuid.UUID, 0, len(assignments))
	for _, assignment := range assignments {
		ids = append(ids, assignment.StudentId)
	}
	return ids, nil
}
