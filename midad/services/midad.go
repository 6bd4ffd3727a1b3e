package services

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"midad_platform/midad/assistant"
	"midad_platform/midad/auth"
	"midad_platform/midad/realtime"
	"midad_platform/midad/schema"
	"midad_platform/midad/session"
	"midad_platform/midad/userdata"
	"midad_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type Platform struct {
	user         UserService
	workspace    WorkspaceService
	research     ResearchService
	source       SourceService
	schedule     ScheduleService
	notification NotificationService
	assignment   AssignmentService
	review       ReviewService
	assistantSvc AssistantService

	db   *gorm.DB
	feed realtime.Feed
	stop chan bool
}

func NewPlatform(
	db *gorm.DB,
	userAuth auth.IdentityProvider,
	data *userdata.Manager,
	feed realtime.Feed,
	resolver *session.Resolver,
	generator assistant.TextGenerator,
	prompts *assistant.Prompts,
) Platform {
	return Platform{
		user:         UserService{db: db, userAuth: userAuth, resolver: resolver, data: data},
		workspace:    WorkspaceService{db: db, userAuth: userAuth, data: data, feed: feed},
		research:     ResearchService{db: db, userAuth: userAuth, feed: feed},
		source:       SourceService{db: db, userAuth: userAuth, feed: feed},
		schedule:     ScheduleService{db: db, userAuth: userAuth, feed: feed},
		notification: NotificationService{db: db, userAuth: userAuth, feed: feed},
		assignment:   AssignmentService{db: db, userAuth: userAuth, feed: feed},
		review:       ReviewService{db: db, userAuth: userAuth, feed: feed},
		assistantSvc: AssistantService{db: db, userAuth: userAuth, generator: generator, prompts: prompts},
		db:           db,
		feed:         feed,
		stop:         make(chan bool, 1),
	}
}

func (p *Platform) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", p.user.Routes())
	r.Mount("/workspace", p.workspace.Routes())
	r.Mount("/research", p.research.Routes())
	r.Mount("/sources", p.source.Routes())
	r.Mount("/schedule", p.schedule.Routes())
	r.Mount("/notifications", p.notification.Routes())
	r.Mount("/assignments", p.assignment.Routes())
	r.Mount("/review", p.review.Routes())
	r.Mount("/assistant", p.assistantSvc.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}

// SweepDeadlines alerts owners of tasks due within the next day. A task is
// announced at most once, moving its due date re-arms it.
func (p *Platform) SweepDeadlines() {
	cutoff := time.Now().UTC().Add(24 * time.Hour)

	var tasks []schema.ScheduleTask
	result := p.db.
		Where("due_date IS NOT NULL AND due_date <= ?", cutoff).
		Where("deadline_notified = ?", false).
		Where("status != ?", schema.TaskCompleted).
		Find(&tasks)
	if result.Error != nil {
		slog.Error("deadline sweep: sql error querying due tasks", "error", result.Error)
		return
	}

	for _, task := range tasks {
		err := p.db.Transaction(func(txn *gorm.DB) error {
			update := txn.Model(&schema.ScheduleTask{}).
				Where("id = ? AND deadline_notified = ?", task.Id, false).
				Update("deadline_notified", true)
			if update.Error != nil {
				return update.Error
			}
			if update.RowsAffected == 0 {
				// Another sweep got here first.
				return nil
			}

			return notifyUser(txn, p.feed, task.UserId, schema.NotificationDeadline,
				"⏰ موعد تسليم قريب",
				fmt.Sprintf("المهمة '%v' يحل موعدها خلال 24 ساعة", task.Title),
				"/schedule")
		})
		if err != nil {
			slog.Error("deadline sweep: error notifying task owner", "task_id", task.Id, "error", err)
			continue
		}

		publishChange(p.feed, task.UserId, realtime.KindSchedule)
	}
}

func (p *Platform) DeadlineSweep(interval time.Duration) {
	slog.Info("deadline sweep: starting")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.SweepDeadlines()
		case <-p.stop:
			slog.Info("deadline sweep: process stopped")
			return
		}
	}
}

func (p *Platform) StopDeadlineSweep() {
	close(p.stop)
}
