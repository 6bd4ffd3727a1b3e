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

type ScheduleService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	feed     realtime.Feed
}

func (s *ScheduleService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/", s.List)
		r.Post("/", s.Create)
		r.Put("/{task_id}", s.Update)
		r.Delete("/{task_id}", s.Delete)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.UserDataAccessOnly(s.db))

		r.Get("/{user_id}/list", s.ListForUser)
	})

	return r
}

type TaskInfo struct {
	Id          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
}

func convertToTaskInfo(task *schema.ScheduleTask) TaskInfo {
	return TaskInfo{
		Id:          task.Id,
		Title:       task.Title,
		Description: task.Description,
		DueDate:     task.DueDate,
		Status:      task.Status,
		Priority:    task.Priority,
		CreatedAt:   task.CreatedAt,
	}
}

func checkTaskStatus(status string) error {
	switch status {
	case schema.TaskPending, schema.TaskInProgress, schema.TaskCompleted:
		return nil
	}
	return fmt.Errorf("invalid task status '%v'", status)
}

func checkTaskPriority(priority string) error {
	switch priority {
	case schema.PriorityLow, schema.PriorityMedium, schema.PriorityHigh:
		return nil
	}
	return fmt.Errorf("invalid task priority '%v'", priority)
}

func (s *ScheduleService) listHandler(w http.ResponseWriter, userId uuid.UUID) {
	var tasks []schema.ScheduleTask
	result := s.db.Order("due_date asc").Find(&tasks, "user_id = ?", userId)
	if result.Error != nil {
		slog.Error("sql error listing tasks", "user_id", userId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing tasks: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]TaskInfo, 0, len(tasks))
	for _, task := range tasks {
		infos = append(infos, convertToTaskInfo(&task))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *ScheduleService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.listHandler(w, user.Id)
}

func (s *ScheduleService) ListForUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.listHandler(w, userId)
}

type taskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
}

func (params *taskRequest) applyDefaultsAndCheck() error {
	if params.Title == "" {
		return fmt.Errorf("task title is required")
	}
	if params.Status == "" {
		params.Status = schema.TaskPending
	}
	if params.Priority == "" {
		params.Priority = schema.PriorityMedium
	}
	if err := checkTaskStatus(params.Status); err != nil {
		return err
	}
	return checkTaskPriority(params.Priority)
}

func (s *ScheduleService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params taskRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if err := params.applyDefaultsAndCheck(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	task := schema.ScheduleTask{
		Id:          uuid.New(),
		UserId:      user.Id,
		Title:       params.Title,
		Description: params.Description,
		DueDate:     params.DueDate,
		Status:      params.Status,
		Priority:    params.Priority,
	}

	result := s.db.Create(&task)
	if result.Error != nil {
		slog.Error("sql error creating task", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating task: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	publishChange(s.feed, user.Id, realtime.KindSchedule)

	utils.WriteJsonResponse(w, convertToTaskInfo(&task))
}

func getOwnedTask(txn *gorm.DB, taskId, userId uuid.UUID) (schema.ScheduleTask, error) {
	var task schema.ScheduleTask
	result := txn.Limit(1).Find(&task, "id = ? AND user_id = ?", taskId, userId)
	if result.Error != nil {
		slog.Error("sql error finding task", "task_id", taskId, "error", result.Error)
		return schema.ScheduleTask{}, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if result.RowsAffected == 0 {
		return schema.ScheduleTask{}, CodedError(schema.ErrTaskNotFound, http.StatusNotFound)
	}
	return task, nil
}

func (s *ScheduleService) Update(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	taskId, err := utils.URLParamUUID(r, "task_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params taskRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if err := params.applyDefaultsAndCheck(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	var task schema.ScheduleTask
	err = s.db.Transaction(func(txn *gorm.DB) error {
		task, err = getOwnedTask(txn, taskId, user.Id)
		if err != nil {
			return err
		}

		// Moving the deadline re-arms the reminder.
		if params.DueDate != nil && (task.DueDate == nil || !task.DueDate.Equal(*params.DueDate)) {
			task.DeadlineNotified = false
		}

		task.Title = params.Title
		task.Description = params.Description
		task.DueDate = params.DueDate
		task.Status = params.Status
		task.Priority = params.Priority

		result := txn.Save(&task)
		if result.Error != nil {
			slog.Error("sql error updating task", "task_id", taskId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating task: %v", err), GetResponseCode(err))
		return
	}

	publishChange(s.feed, user.Id, realtime.KindSchedule)

	utils.WriteJsonResponse(w, convertToTaskInfo(&task))
}

func (s *ScheduleService) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	taskId, err := utils.URLParamUUID(r, "task_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		task, err := getOwnedTask(txn, taskId, user.Id)
		if err != nil {
			return err
		}

		result := txn.Delete(&task)
		if result.Error != nil {
			slog.Error("sql error deleting task", "task_id", taskId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting task: %v", err), GetResponseCode(err))
		return
	}

	publishChange(s.feed, user.Id, realtime.KindSchedule)

	utils.WriteSuccess(w)
}
