package taskman

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MinPasswordLength applies to registration and login payloads
const MinPasswordLength = 6

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "New"
	TaskStatusInProgress TaskStatus = "In progress"
	TaskStatusCompleted  TaskStatus = "Completed"
)

// TaskStatuses lists every accepted status
var TaskStatuses = []TaskStatus{
	TaskStatusNew,
	TaskStatusInProgress,
	TaskStatusCompleted,
}

// IsValid reports whether s is one of the known statuses
func (s TaskStatus) IsValid() bool {
	for _, st := range TaskStatuses {
		if s == st {
			return true
		}
	}
	return false
}

var taskStatusRule = validation.In(
	TaskStatusNew,
	TaskStatusInProgress,
	TaskStatusCompleted,
).Error("must be one of: New, In progress, Completed")

// notBlank rejects strings made only of whitespace
var notBlank = validation.By(func(value any) error {
	v, _ := validation.Indirect(value)
	s, _ := v.(string)
	if s != "" && strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
})

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	FirstName     string    `bun:"first_name,notnull" json:"first_name"`
	LastName      *string   `bun:"last_name" json:"last_name"`
	Username      string    `bun:"username,notnull,unique" json:"username"`
	PasswordHash  string    `bun:"password_hash,notnull" json:"-"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

var _ Identity = (*User)(nil)

// GetID returns the user id as string
func (u *User) GetID() string {
	return u.ID.String()
}

// GetUsername returns the username
func (u *User) GetUsername() string {
	return u.Username
}

// Task is owned by exactly one user. UserID never changes after creation.
type Task struct {
	bun.BaseModel `bun:"table:tasks,alias:tsk"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Title         string     `bun:"title,notnull" json:"title"`
	Description   *string    `bun:"description" json:"description"`
	Status        TaskStatus `bun:"status,notnull" json:"status"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// UserCreate is the storage level create shape, the password is
// already hashed at this point
type UserCreate struct {
	FirstName    string
	LastName     *string
	Username     string
	PasswordHash string
}

// UserUpdate holds the user fields that may change, nil means untouched
type UserUpdate struct {
	FirstName    *string
	LastName     *string
	PasswordHash *string
}

// RegisterRequest is the payload for user registration
type RegisterRequest struct {
	FirstName string  `json:"first_name"`
	LastName  *string `json:"last_name"`
	Username  string  `json:"username"`
	Password  string  `json:"password"`
}

// Normalize trims the name fields. Passwords are kept as sent.
func (r *RegisterRequest) Normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.Username = strings.TrimSpace(r.Username)
	if r.LastName != nil {
		last := strings.TrimSpace(*r.LastName)
		r.LastName = &last
	}
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, notBlank, validation.Length(1, 100)),
		validation.Field(&r.LastName, validation.NilOrNotEmpty, notBlank, validation.Length(1, 100)),
		validation.Field(&r.Username, validation.Required, notBlank, validation.Length(1, 64), is.PrintableASCII),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, 72)),
	)
}

// LoginRequest is the payload for login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Normalize trims the username
func (r *LoginRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, notBlank),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, 0)),
	)
}

// TaskCreate is the payload to create a task. Empty status means New.
// UserID is filled in from the session, never from the payload.
type TaskCreate struct {
	UserID      uuid.UUID  `json:"-"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      TaskStatus `json:"status"`
}

// Validate will run validation rules
func (t TaskCreate) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&t.Status, taskStatusRule),
	)
}

// TaskUpdate is a partial task update, nil fields are left untouched
type TaskUpdate struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	Status      *TaskStatus `json:"status"`
}

// Validate will run validation rules
func (t TaskUpdate) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Title, validation.NilOrNotEmpty, validation.Length(1, 255)),
		validation.Field(&t.Status, validation.NilOrNotEmpty, taskStatusRule),
	)
}

// IsEmpty reports whether the update would not change anything
func (t TaskUpdate) IsEmpty() bool {
	return t.Title == nil && t.Description == nil && t.Status == nil
}

func newUserRecord(data UserCreate) *User {
	return &User{
		FirstName:    data.FirstName,
		LastName:     data.LastName,
		Username:     data.Username,
		PasswordHash: data.PasswordHash,
	}
}

func applyUserUpdate(u *User, data UserUpdate) []string {
	var cols []string
	if data.FirstName != nil {
		u.FirstName = *data.FirstName
		cols = append(cols, "first_name")
	}
	if data.LastName != nil {
		u.LastName = data.LastName
		cols = append(cols, "last_name")
	}
	if data.PasswordHash != nil {
		u.PasswordHash = *data.PasswordHash
		cols = append(cols, "password_hash")
	}
	return cols
}

func newTaskRecord(data TaskCreate) *Task {
	status := data.Status
	if status == "" {
		status = TaskStatusNew
	}
	return &Task{
		UserID:      data.UserID,
		Title:       data.Title,
		Description: data.Description,
		Status:      status,
	}
}

func applyTaskUpdate(t *Task, data TaskUpdate) []string {
	var cols []string
	if data.Title != nil {
		t.Title = *data.Title
		cols = append(cols, "title")
	}
	if data.Description != nil {
		t.Description = data.Description
		cols = append(cols, "description")
	}
	if data.Status != nil {
		t.Status = *data.Status
		cols = append(cols, "status")
	}
	return cols
}
