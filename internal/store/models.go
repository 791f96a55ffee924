package store

import (
	"crypto/rand"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// User represents an operator account
type User struct {
	ID               string     `gorm:"primaryKey" json:"id"`
	Username         string     `gorm:"uniqueIndex" json:"username"`
	Email            string     `gorm:"uniqueIndex" json:"email"`
	PasswordHash     string     `json:"-"`
	Role             string     `json:"role"` // admin, annotator
	FullName         string     `json:"full_name"`
	IsActive         bool       `json:"is_active"`
	AnnotationMode   string     `json:"annotation_mode"`
	VerificationMode string     `json:"verification_mode"`
	LastLogin        *time.Time `json:"last_login"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Document statuses
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusSaved      = "saved"
)

// Document represents one uploaded image and its extraction lifecycle.
// The ID is the stored filename (<timestamp>_<original name>), which is
// also what clients poll with.
type Document struct {
	ID           string          `gorm:"primaryKey" json:"id"`
	OwnerEmail   string          `gorm:"index" json:"owner_email"`
	Type         string          `json:"type"` // passport, check, invoice
	OriginalName string          `json:"original_name"`
	StoredPath   string          `json:"stored_path"`
	SizeBytes    int64           `json:"size_bytes"`
	Inline       bool            `json:"inline"` // raw bytes live in the blob cache
	Status       string          `gorm:"index" json:"status"`
	Fields       json.RawMessage `json:"fields,omitempty" gorm:"type:text"`
	Corrections  json.RawMessage `json:"corrections,omitempty" gorm:"type:text"`
	Report       string          `json:"report,omitempty" gorm:"type:text"`
	Error        string          `json:"error,omitempty"`
	Verified     bool            `json:"verified"`
	StartedAt    *time.Time      `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
	SavedAt      *time.Time      `json:"saved_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// LoginEvent is the local audit trail behind the Login_Logs worksheet
type LoginEvent struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Email       string    `gorm:"index" json:"email"`
	RemoteIP    string    `json:"remote_ip"`
	UserAgent   string    `json:"user_agent"`
	SheetLogged bool      `json:"sheet_logged"`
	CreatedAt   time.Time `json:"created_at"`
}

// BeforeCreate hook for User
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = generateID("user")
	}
	if u.Role == "" {
		u.Role = "annotator"
	}
	if u.AnnotationMode == "" {
		u.AnnotationMode = "manual"
	}
	if u.VerificationMode == "" {
		u.VerificationMode = "verified"
	}
	return nil
}

// BeforeCreate hook for LoginEvent
func (e *LoginEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = generateID("login")
	}
	return nil
}

// BeforeCreate hook for Document
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = generateID("doc")
	}
	if d.Status == "" {
		d.Status = StatusQueued
	}
	return nil
}

// generateID creates a unique ID with nanosecond precision
func generateID(prefix string) string {
	return prefix + "_" + time.Now().Format("20060102150405") + "_" + randomString(8)
}

// randomString generates a cryptographically secure random string
func randomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	rand.Read(b)
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}

// ToJSON converts struct to JSON bytes
func ToJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// FromJSON parses JSON bytes into struct
func FromJSON(data json.RawMessage, v interface{}) error {
	return json.Unmarshal(data, v)
}
