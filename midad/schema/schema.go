package schema

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleStudent   = "student"
	RoleProfessor = "professor"
	RoleAdmin     = "admin"
)

func ValidRole(role string) bool {
	return role == RoleStudent || role == RoleProfessor || role == RoleAdmin
}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name     string `gorm:"size:100;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	Role       string `gorm:"size:20;not null;default:'student'"`
	Department string `gorm:"size:100"`

	Research      []ResearchProject `gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`
	Sources       []Source          `gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`
	Tasks         []ScheduleTask    `gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`
	Notifications []Notification    `gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

const (
	ResearchPlanning   = "planning"
	ResearchInProgress = "in_progress"
	ResearchCompleted  = "completed"
)

type ResearchProject struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId uuid.UUID `gorm:"type:uuid;not null;index"`

	Title       string `gorm:"size:300;not null"`
	Description string
	Content     string `gorm:"type:text"`
	WordCount   int    `gorm:"not null;default:0"`
	Status      string `gorm:"size:20;not null;default:'planning'"`

	IsPublished    bool `gorm:"not null;default:false"`
	IsFeatured     bool `gorm:"not null;default:false"`
	Summary        string
	SupervisorName string `gorm:"size:100"`
	GraduationYear int
	PublishedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	User *User
}

const (
	SourceBook    = "book"
	SourceArticle = "article"
	SourceWebsite = "website"
	SourceOther   = "other"
)

type Source struct {
	Id         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserId     uuid.UUID  `gorm:"type:uuid;not null;index"`
	ResearchId *uuid.UUID `gorm:"type:uuid"`

	Title  string `gorm:"size:300;not null"`
	Author string `gorm:"size:200"`
	Url    string `gorm:"size:500"`
	Type   string `gorm:"size:20;not null;default:'article'"`
	Notes  string

	CreatedAt time.Time
}

const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

type ScheduleTask struct {
	Id         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserId     uuid.UUID  `gorm:"type:uuid;not null;index"`
	ResearchId *uuid.UUID `gorm:"type:uuid"`

	Title       string `gorm:"size:300;not null"`
	Description string
	DueDate     *time.Time
	Status      string `gorm:"size:20;not null;default:'pending'"`
	Priority    string `gorm:"size:10;not null;default:'medium'"`

	// Set once the deadline sweep has alerted the owner, so a task is only
	// announced once.
	DeadlineNotified bool `gorm:"not null;default:false"`

	CreatedAt time.Time
}

const (
	NotificationMessage  = "message"
	NotificationDeadline = "deadline"
	NotificationResearch = "research"
	NotificationSystem   = "system"
	NotificationInfo     = "info"
	NotificationWarning  = "warning"
	NotificationSuccess  = "success"
	NotificationError    = "error"
)

type Notification struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId uuid.UUID `gorm:"type:uuid;not null;index"`

	Kind    string `gorm:"size:20;not null;default:'info'"`
	Title   string `gorm:"size:300;not null"`
	Message string
	Link    string `gorm:"size:500"`
	Read    bool   `gorm:"not null;default:false"`

	CreatedAt time.Time
}

type Conversation struct {
	Id         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserId     uuid.UUID  `gorm:"type:uuid;not null;index"`
	ResearchId *uuid.UUID `gorm:"type:uuid"`

	Message  string `gorm:"type:text;not null"`
	Response string `gorm:"type:text"`

	CreatedAt time.Time
}

type SupervisorAssignment struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	StudentId    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	SupervisorId uuid.UUID `gorm:"type:uuid;not null;index"`

	ResearchId *uuid.UUID `gorm:"type:uuid"`
	AssignedBy uuid.UUID  `gorm:"type:uuid;not null"`

	CreatedAt time.Time

	Student    *User `gorm:"foreignKey:StudentId;constraint:OnDelete:CASCADE"`
	Supervisor *User `gorm:"foreignKey:SupervisorId;constraint:OnDelete:CASCADE"`
}

const (
	SubmissionPending       = "pending"
	SubmissionUnderReview   = "under_review"
	SubmissionApproved      = "approved"
	SubmissionNeedsRevision = "needs_revision"
)

type ChapterSubmission struct {
	Id         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	StudentId  uuid.UUID  `gorm:"type:uuid;not null;index"`
	ResearchId *uuid.UUID `gorm:"type:uuid"`

	ChapterNumber int    `gorm:"not null"`
	Title         string `gorm:"size:300;not null"`
	Content       string `gorm:"type:text"`
	Status        string `gorm:"size:20;not null;default:'pending'"`

	SubmittedAt time.Time
	ReviewedAt  *time.Time

	Comments []ReviewComment `gorm:"foreignKey:SubmissionId;constraint:OnDelete:CASCADE"`

	Student *User `gorm:"foreignKey:StudentId;constraint:OnDelete:CASCADE"`
}

const (
	CommentGeneral    = "comment"
	CommentSuggestion = "suggestion"
	CommentCorrection = "correction"
)

type ReviewComment struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubmissionId uuid.UUID `gorm:"type:uuid;not null;index"`
	AuthorId     uuid.UUID `gorm:"type:uuid;not null"`

	Comment  string `gorm:"type:text;not null"`
	Kind     string `gorm:"size:20;not null;default:'comment'"`
	Resolved bool   `gorm:"not null;default:false"`

	CreatedAt time.Time
}

// AllTables is the migration list used by both the server and the migration
// command.
func AllTables() []interface{} {
	return []interface{}{
		&User{}, &ResearchProject{}, &Source{}, &ScheduleTask{},
		&Notification{}, &Conversation{}, &SupervisorAssignment{},
		&ChapterSubmission{}, &ReviewComment{},
	}
}
