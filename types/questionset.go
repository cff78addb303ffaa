package types

import (
	"strings"
	"time"
)

// Difficulty is the difficulty level a lecturer assigns to a question set.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Mudah"
	DifficultyMedium Difficulty = "Sedang"
	DifficultyHard   Difficulty = "Sulit"
)

// Valid reports whether d is one of the known levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuestionSet represents one uploadable exam or assignment package.
// It carries the descriptive metadata shown in listings and the files
// attached to it.
type QuestionSet struct {
	// ID is the unique identifier of the question set.
	ID int64 `json:"id" db:"id"`

	// Title is the human-readable name of the exam or assignment.
	Title string `json:"title" db:"title"`

	// Description is a free-form summary written by the uploader.
	Description string `json:"description" db:"description"`

	// Subject references the course the set belongs to. It arrives either as
	// a course id or as an already denormalized course name.
	Subject SubjectRef `json:"subject" db:"subject"`

	// Difficulty is one of Mudah, Sedang or Sulit.
	Difficulty Difficulty `json:"difficulty" db:"difficulty"`

	// Lecturer is the display name of the lecturer who owns the set.
	Lecturer string `json:"lecturer" db:"lecturer"`

	// Year is the academic year the exam was given.
	Year int `json:"year" db:"year"`

	// Topics are free-form labels. They are persisted comma-joined.
	Topics []string `json:"topics" db:"topics"`

	// Downloads counts how many times the set has been downloaded.
	Downloads int `json:"downloads" db:"downloads"`

	// IsDeleted marks the set as soft-deleted (in the recycle bin).
	IsDeleted bool `json:"isDeleted" db:"is_deleted"`

	// DeletedAt is when the set was soft-deleted, nil while active.
	DeletedAt *time.Time `json:"deletedAt" db:"deleted_at"`

	// DeletedBy is the user who soft-deleted the set, nil while active.
	DeletedBy *int64 `json:"deletedBy" db:"deleted_by"`

	// CreatedBy is the user who created the set.
	CreatedBy int64 `json:"createdBy" db:"created_by"`

	// Files holds the attached files when the set is fetched with them.
	Files []File `json:"files,omitempty" db:"-"`

	// CreatedAt is the timestamp at which the set was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent change to the set.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ActiveFiles returns the files that are not soft-deleted.
func (q QuestionSet) ActiveFiles() []File {
	out := make([]File, 0, len(q.Files))
	for _, f := range q.Files {
		if !f.IsDeleted {
			out = append(out, f)
		}
	}
	return out
}

// JoinTopics renders topics the way they are persisted.
func JoinTopics(topics []string) string {
	return strings.Join(topics, ",")
}

// SplitTopics parses a comma-joined topic list, dropping blanks.
func SplitTopics(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	topics := make([]string, 0, len(parts))
	for _, part := range parts {
		topic := strings.TrimSpace(part)
		if topic != "" {
			topics = append(topics, topic)
		}
	}
	return topics
}

// QuestionSetFilter narrows listings.
type QuestionSetFilter struct {
	Query      string
	SubjectID  int64
	Difficulty Difficulty
	Year       int
	Topic      string
}

// QuestionSetPatch is a partial update. Nil fields are left unchanged.
type QuestionSetPatch struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Subject     *SubjectRef `json:"subject,omitempty"`
	Difficulty  *Difficulty `json:"difficulty,omitempty"`
	Lecturer    *string     `json:"lecturer,omitempty"`
	Year        *int        `json:"year,omitempty"`
	Topics      *[]string   `json:"topics,omitempty"`
	IsDeleted   *bool       `json:"isDeleted,omitempty"`
	DeletedAt   *time.Time  `json:"deletedAt,omitempty"`
}
