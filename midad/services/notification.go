package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"midad_platform/midad/auth"
	"midad_platform/midad/realtime"
	"midad_platform/midad/schema"
	"midad_platform/utils"
	"midad_platform/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	feed     realtime.Feed
}

func (s *NotificationService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/", s.List)
		r.Get("/stream", s.Stream)

		r.Post("/{notification_id}/read", s.MarkRead)
		r.Post("/read-all", s.MarkAllRead)

		r.Delete("/{notification_id}", s.Delete)
		r.Delete("/", s.Clear)
	})

	return r
}

type NotificationInfo struct {
	Id        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func convertToNotificationInfo(notification *schema.Notification) NotificationInfo {
	return NotificationInfo{
		Id:        notification.Id,
		Kind:      notification.Kind,
		Title:     notification.Title,
		Message:   notification.Message,
		Link:      notification.Link,
		Read:      notification.Read,
		CreatedAt: notification.CreatedAt,
	}
}

func (s *NotificationService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db.Where("user_id = ?", user.Id)
	if r.URL.Query().Get("unread") == "true" {
		query = query.Where("read = ?", false)
	}

	var notifications []schema.Notification
	result := query.Order("created_at desc").Find(&notifications)
	if result.Error != nil {
		slog.Error("sql error listing notifications", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing notifications: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]NotificationInfo, 0, len(notifications))
	for _, notification := range notifications {
		infos = append(infos, convertToNotificationInfo(&notification))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *NotificationService) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	notificationId, err := utils.URLParamUUID(r, "notification_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := s.db.Model(&schema.Notification{}).
		Where("id = ? AND user_id = ?", notificationId, user.Id).
		Update("read", true)
	if result.Error != nil {
		slog.Error("sql error marking notification read", "notification_id", notificationId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error updating notification: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}

	publishChange(s.feed, user.Id, realtime.KindNotifications)

	utils.WriteSuccess(w)
}

func (s *NotificationService) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result := s.db.Model(&schema.Notification{}).
		Where("user_id = ? AND read = ?", user.Id, false).
		Update("read", true)
	if result.Error != nil {
		slog.Error("sql error marking all notifications read", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error updating notifications: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	publishChange(s.feed, user.Id, realtime.KindNotifications)

	utils.WriteSuccess(w)
}

func (s *NotificationService) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	notificationId, err := utils.URLParamUUID(r, "notification_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := s.db.Where("id = ? AND user_id = ?", notificationId, user.Id).Delete(&schema.Notification{})
	if result.Error != nil {
		slog.Error("sql error deleting notification", "notification_id", notificationId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error deleting notification: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}

	publishChange(s.feed, user.Id, realtime.KindNotifications)

	utils.WriteSuccess(w)
}

func (s *NotificationService) Clear(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result := s.db.Where("user_id = ?", user.Id).Delete(&schema.Notification{})
	if result.Error != nil {
		slog.Error("sql error clearing notifications", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error clearing notifications: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	publishChange(s.feed, user.Id, realtime.KindNotifications)

	utils.WriteSuccess(w)
}

// Stream pushes change events for the authenticated user over SSE. Events
// carry only the change kind: the client reloads the affected data rather
// than patching it. The subscription is torn down when the client
// disconnects, so a closed tab or an identity switch cannot keep receiving
// someone's events.
func (s *NotificationService) Stream(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events := make(chan realtime.Event, 16)
	sub, err := s.feed.Subscribe(user.Id, func(event realtime.Event) {
		select {
		case events <- event:
		default:
			// Slow consumer: drop the event, the client reloads on the next
			// one anyway.
		}
	})
	if err != nil {
		slog.Error("error subscribing to change events", "code", logging.REALTIME_SUBSCRIBE, "user_id", user.Id, "error", err)
		http.Error(w, "error subscribing to change events", http.StatusInternalServerError)
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case event := <-events:
			payload, err := json.Marshal(event)
			if err != nil {
				slog.Error("error serializing change event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", payload)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
