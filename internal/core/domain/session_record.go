package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRecord is the persisted form of a Project Session snapshot
type SessionRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Phase         string    `gorm:"type:varchar(50);not null;default:'idle'" json:"phase"`
	Pending       string    `gorm:"type:varchar(50)" json:"pending,omitempty"`
	Revision      uint64    `gorm:"not null;default:0" json:"revision"`
	ImageModel    string    `gorm:"type:varchar(50);not null" json:"image_model"`
	AspectRatio   string    `gorm:"type:varchar(20);not null" json:"aspect_ratio"`
	MaxIterations int       `gorm:"not null" json:"max_iterations"`

	// Configuration restored by Reset
	InitialImageModel    string `gorm:"type:varchar(50)" json:"initial_image_model,omitempty"`
	InitialAspectRatio   string `gorm:"type:varchar(20)" json:"initial_aspect_ratio,omitempty"`
	InitialMaxIterations int    `json:"initial_max_iterations,omitempty"`

	Idea            string  `gorm:"type:text" json:"idea,omitempty"`
	PromptText      string  `gorm:"type:text" json:"prompt_text,omitempty"`
	PromptVersion   int     `gorm:"default:0" json:"prompt_version"`
	PromptOrigin    string  `gorm:"type:varchar(20)" json:"prompt_origin,omitempty"`
	CurrentFeedback *string `gorm:"type:text" json:"current_feedback,omitempty"`
	IterationCount  int     `gorm:"not null;default:0" json:"iteration_count"`
	LoopState       string  `gorm:"type:varchar(30)" json:"loop_state,omitempty"`
	FinalSequence   *int    `json:"final_sequence,omitempty"`
	FinalTag        string  `gorm:"type:varchar(30)" json:"final_tag,omitempty"`
	FinalApproved   bool    `gorm:"default:false" json:"final_approved"`

	// Last judge verdict
	LastApproved *bool  `json:"last_approved,omitempty"`
	LastClause   string `gorm:"type:text" json:"last_clause,omitempty"`
	LastScore    *int   `json:"last_score,omitempty"`
	LastNotes    string `gorm:"type:text" json:"last_notes,omitempty"`

	LastErrorCode    string     `gorm:"type:varchar(50)" json:"last_error_code,omitempty"`
	LastErrorMessage string     `gorm:"type:text" json:"last_error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ExpiresAt        *time.Time `gorm:"index:idx_session_records_expires" json:"expires_at,omitempty"`

	// Relations
	Artifacts []ArtifactRecord `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"artifacts,omitempty"`
}

// TableName specifies the table name for GORM
func (SessionRecord) TableName() string {
	return "session_snapshots"
}

// BeforeCreate GORM hook
func (s *SessionRecord) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	// Set default expiration to 24 hours if not set
	if s.ExpiresAt == nil {
		expiresAt := time.Now().Add(24 * time.Hour)
		s.ExpiresAt = &expiresAt
	}
	return nil
}

// IsExpired checks if the record has expired
func (s *SessionRecord) IsExpired(now time.Time) bool {
	if s.ExpiresAt == nil {
		return false
	}
	return now.After(*s.ExpiresAt)
}

// ArtifactRecord is one persisted history entry. (session_id, sequence) is unique.
type ArtifactRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	SessionID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_artifact_records_session_seq,priority:1" json:"session_id"`
	Sequence      int       `gorm:"not null;uniqueIndex:idx_artifact_records_session_seq,priority:2" json:"sequence"`
	PromptText    string    `gorm:"type:text;not null" json:"prompt_text"`
	PromptVersion int       `gorm:"not null" json:"prompt_version"`
	PromptOrigin  string    `gorm:"type:varchar(20)" json:"prompt_origin"`
	ImageRef      string    `gorm:"type:text;not null" json:"image_ref"`
	Tag           string    `gorm:"type:varchar(30);not null" json:"tag"`
	PromptDiff    string    `gorm:"type:text" json:"prompt_diff,omitempty"`
	UserFeedback  string    `gorm:"type:text" json:"user_feedback,omitempty"`

	// Verdict that led to this artifact (refinements only)
	Approved         *bool  `json:"approved,omitempty"`
	RefinementClause string `gorm:"type:text" json:"refinement_clause,omitempty"`
	Score            *int   `json:"score,omitempty"`
	Notes            string `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (ArtifactRecord) TableName() string {
	return "artifact_records"
}

// BeforeCreate GORM hook
func (a *ArtifactRecord) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
