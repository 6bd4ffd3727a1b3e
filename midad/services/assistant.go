package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"midad_platform/midad/assistant"
	"midad_platform/midad/auth"
	"midad_platform/midad/metrics"
	"midad_platform/midad/schema"
	"midad_platform/utils"
	"midad_platform/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AssistantService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider

	generator assistant.TextGenerator
	prompts   *assistant.Prompts
}

func (s *AssistantService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Post("/generate", s.Generate)
		r.Get("/history", s.History)
		r.Delete("/history", s.ClearHistory)
	})

	return r
}

type generateRequest struct {
	Action assistant.Action `json:"action"`
	Text   string           `json:"text"`
}

type generateResponse struct {
	Result string `json:"result"`
}

// Generate runs one editing action over the user's text. A failed generation
// is returned to the caller immediately, there are no retries.
func (s *AssistantService) Generate(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if s.generator == nil {
		http.Error(w, "assistant is not configured", http.StatusServiceUnavailable)
		return
	}

	var params generateRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if !assistant.ValidAction(params.Action) {
		http.Error(w, fmt.Sprintf("invalid action '%v'", params.Action), http.StatusUnprocessableEntity)
		return
	}

	prompt, err := s.prompts.For(params.Action, params.Text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	start := time.Now()
	result, err := s.generator.GenerateText(r.Context(), s.prompts.System(), prompt)
	outcome := assistant.ErrorOutcome(err)
	metrics.AssistantRequests.WithLabelValues(string(params.Action), outcome).Inc()

	if err != nil {
		slog.Error("assistant generation failed", "code", logging.ASSISTANT_REQUEST,
			"user_id", user.Id, "action", params.Action, "outcome", outcome, "error", err)
		switch {
		case errors.Is(err, assistant.ErrAuthFailed):
			http.Error(w, "assistant credentials rejected", http.StatusUnauthorized)
		case errors.Is(err, assistant.ErrQuotaExceeded):
			http.Error(w, "assistant quota exceeded, try again later", http.StatusTooManyRequests)
		default:
			http.Error(w, "assistant request failed", http.StatusInternalServerError)
		}
		return
	}

	slog.Info("assistant generation complete", "code", logging.ASSISTANT_REQUEST,
		"user_id", user.Id, "action", params.Action, "duration", time.Since(start))

	conversation := schema.Conversation{
		Id:       uuid.New(),
		UserId:   user.Id,
		Message:  params.Text,
		Response: result,
	}
	if dbResult := s.db.Create(&conversation); dbResult.Error != nil {
		// The generation already succeeded, losing the history row should not
		// fail the request.
		slog.Error("sql error saving conversation", "user_id", user.Id, "error", dbResult.Error)
	}

	utils.WriteJsonResponse(w, generateResponse{Result: result})
}

type ConversationInfo struct {
	Id        uuid.UUID `json:"id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *AssistantService) History(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var conversations []schema.Conversation
	result := s.db.Order("created_at desc").Limit(50).Find(&conversations, "user_id = ?", user.Id)
	if result.Error != nil {
		slog.Error("sql error listing conversations", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing conversations: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]ConversationInfo, 0, len(conversations))
	for _, conversation := range conversations {
		infos = append(infos, ConversationInfo{
			Id:        conversation.Id,
			Message:   conversation.Message,
			Response:  conversation.Response,
			CreatedAt: conversation.CreatedAt,
		})
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *AssistantService) ClearHistory(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result := s.db.Where("user_id = ?", user.Id).Delete(&schema.Conversation{})
	if result.Error != nil {
		slog.Error("sql error clearing conversations", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error clearing conversations: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}
