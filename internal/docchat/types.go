package docchat

import (
	"fmt"
	"strings"
	"time"
)

// Language is the response language hint sent with each question.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageMalay   Language = "ms"
)

// DefaultLanguage is used on first run and whenever a persisted value is unusable.
const DefaultLanguage = LanguageEnglish

// ParseLanguage converts user input ("en", "MS", " ms ") into a Language.
func ParseLanguage(s string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case LanguageEnglish:
		return LanguageEnglish, nil
	case LanguageMalay:
		return LanguageMalay, nil
	default:
		return "", &ValidationError{Field: "language", Reason: fmt.Sprintf("unsupported language %q (want en or ms)", s)}
	}
}

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FileRecord describes a document known to the remote service.
// SessionID is assigned by the server and never changes.
type FileRecord struct {
	SessionID string    `json:"session_id" yaml:"session_id" msgpack:"session_id"`
	Filename  string    `json:"filename" yaml:"filename" msgpack:"filename"`
	FileType  string    `json:"file_type" yaml:"file_type" msgpack:"file_type"`
	FileSize  int64     `json:"file_size" yaml:"file_size" msgpack:"file_size"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at" msgpack:"created_at"`
}

// ChatMessage is one entry of the transcript.
// An empty SessionID means the question was asked in general-knowledge mode.
type ChatMessage struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	SessionID string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
}

// NewMessage is the caller-supplied part of a ChatMessage; the Store fills in ID and Timestamp.
type NewMessage struct {
	Role      Role
	Content   string
	SessionID string
}

// CurrentStateVersion is the schema version written with every PersistedState.
const CurrentStateVersion = 1

// PersistedState is the subset of the Store that survives a restart.
// Transcript, selection and upload progress are deliberately absent.
type PersistedState struct {
	Version  int          `json:"version" msgpack:"version"`
	Language Language     `json:"language" msgpack:"language"`
	Files    []FileRecord `json:"files" msgpack:"files"`
}

// NewPersistedState returns the state of a first run.
func NewPersistedState() *PersistedState {
	return &PersistedState{
		Version:  CurrentStateVersion,
		Language: DefaultLanguage,
		Files:    []FileRecord{},
	}
}

// Upgrade normalizes a decoded state to the current version.
// Version 0 predates the version field and has the same layout as version 1.
func (ps *PersistedState) Upgrade() error {
	switch {
	case ps.Version > CurrentStateVersion:
		return fmt.Errorf("persisted state version %d is newer than supported version %d", ps.Version, CurrentStateVersion)
	case ps.Version == 0:
		ps.Version = CurrentStateVersion
	}
	if ps.Files == nil {
		ps.Files = []FileRecord{}
	}
	return nil
}
