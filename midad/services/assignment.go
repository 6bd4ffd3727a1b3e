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

type AssignmentService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	feed     realtime.Feed
}

func (s *AssignmentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Get("/", s.List)
		r.Post("/", s.Assign)
		r.Delete("/{assignment_id}", s.Remove)
	})

	return r
}

type AssignmentInfo struct {
	Id             uuid.UUID `json:"id"`
	StudentId      uuid.UUID `json:"student_id"`
	StudentName    string    `json:"student_name"`
	SupervisorId   uuid.UUID `json:"supervisor_id"`
	SupervisorName string    `json:"supervisor_name"`
	CreatedAt      time.Time `json:"created_at"`
}

func convertToAssignmentInfo(assignment *schema.SupervisorAssignment) AssignmentInfo {
	info := AssignmentInfo{
		Id:           assignment.Id,
		StudentId:    assignment.StudentId,
		SupervisorId: assignment.SupervisorId,
		CreatedAt:    assignment.CreatedAt,
	}
	if assignment.Student != nil {
		info.StudentName = assignment.Student.Name
	}
	if assignment.Supervisor != nil {
		info.SupervisorName = assignment.Supervisor.Name
	}
	return info
}

func (s *AssignmentService) List(w http.ResponseWriter, r *http.Request) {
	var assignments []schema.SupervisorAssignment
	result := s.db.Preload("Student").Preload("Supervisor").Order("created_at desc").Find(&assignments)
	if result.Error != nil {
		slog.Error("sql error listing assignments", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing assignments: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]AssignmentInfo, 0, len(assignments))
	for _, assignment := range assignments {
		infos = append(infos, convertToAssignmentInfo(&assignment))
	}
	utils.WriteJsonResponse(w, infos)
}

type assignRequest struct {
	StudentId    uuid.UUID `json:"student_id"`
	SupervisorId uuid.UUID `json:"supervisor_id"`
}

var errStudentAlreadyAssigned = errors.New("student already has a supervisor assigned")

func (s *AssignmentService) Assign(w http.ResponseWriter, r *http.Request) {
	admin, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params assignRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var assignment schema.SupervisorAssignment
	err = s.db.Transaction(func(txn *gorm.DB) error {
		student, err := schema.GetUser(params.StudentId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(fmt.Errorf("student not found"), http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}
		if student.Role != schema.RoleStudent {
			return CodedError(fmt.Errorf("user %v is not a student", student.Id), http.StatusUnprocessableEntity)
		}

		supervisor, err := schema.GetUser(params.SupervisorId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(fmt.Errorf("supervisor not found"), http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}
		if supervisor.Role != schema.RoleProfessor {
			return CodedError(fmt.Errorf("user %v is not a professor", supervisor.Id), http.StatusUnprocessableEntity)
		}

		existing, err := schema.GetSupervisorOf(student.Id, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if existing != uuid.Nil {
			return CodedError(errStudentAlreadyAssigned, http.StatusConflict)
		}

		assignment = schema.SupervisorAssignment{
			Id:           uuid.New(),
			StudentId:    student.Id,
			SupervisorId: supervisor.Id,
			AssignedBy:   admin.Id,
		}

		result := txn.Create(&assignment)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return CodedError(errStudentAlreadyAssigned, http.StatusConflict)
			}
			slog.Error("sql error creating assignment", "student_id", student.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := notifyUser(txn, s.feed, student.Id, schema.NotificationInfo,
			"تم تعيين مشرف",
			fmt.Sprintf("تم تعيين %v مشرفاً على بحثك", supervisor.Name), "/supervisor"); err != nil {
			return err
		}
		if err := notifyUser(txn, s.feed, supervisor.Id, schema.NotificationInfo,
			"طالب جديد تحت إشرافك",
			fmt.Sprintf("تم تعيينك مشرفاً على الطالب %v", student.Name), "/supervisor/students"); err != nil {
			return err
		}

		assignment.Student = &student
		assignment.Supervisor = &supervisor
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error assigning supervisor: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, convertToAssignmentInfo(&assignment))
}

func (s *AssignmentService) Remove(w http.ResponseWriter, r *http.Request) {
	assignmentId, err := utils.URLParamUUID(r, "assignment_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var assignment schema.SupervisorAssignment
		result := txn.Limit(1).Find(&assignment, "id = ?", assignmentId)
		if result.Error != nil {
			slog.Error("sql error finding assignment", "assignment_id", assignmentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(schema.ErrAssignmentNotFound, http.StatusNotFound)
		}

		if result := txn.Delete(&assignment); result.Error != nil {
			slog.Error("sql error deleting assignment", "assignment_id", assignmentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := notifyUser(txn, s.feed, assignment.StudentId, schema.NotificationInfo,
			"تم إلغاء تعيين المشرف",
			"لم يعد لديك مشرف معين على بحثك", "/supervisor"); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error removing assignment: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
