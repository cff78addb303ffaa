package types

import "time"

// Category is one of the three buckets files are organized into.
type Category string

const (
	CategoryQuestions Category = "questions"
	CategoryAnswers   Category = "answers"
	CategoryTestCases Category = "testCases"
)

// Categories lists the canonical buckets in archive order.
var Categories = []Category{CategoryQuestions, CategoryAnswers, CategoryTestCases}

// File represents one uploaded artifact attached to a question set.
type File struct {
	// ID is the unique identifier of the file.
	ID int64 `json:"id" db:"id"`

	// QuestionSetID references the owning question set.
	QuestionSetID int64 `json:"questionSetId" db:"question_set_id"`

	// Category is the canonical bucket the file belongs to.
	Category Category `json:"category" db:"category"`

	// OriginalName is the filename as uploaded by the user.
	OriginalName string `json:"originalname" db:"original_name"`

	// StoredName is the object key the bytes are stored under.
	StoredName string `json:"filename" db:"stored_name"`

	// FileType is the declared content-type of the upload.
	FileType string `json:"filetype" db:"file_type"`

	// Size is the content length in bytes.
	Size int64 `json:"size" db:"size"`

	// ReplacesID links a replacement upload to the file it superseded.
	ReplacesID *int64 `json:"replacesId,omitempty" db:"replaces_id"`

	IsDeleted bool       `json:"isDeleted" db:"is_deleted"`
	DeletedAt *time.Time `json:"deletedAt" db:"deleted_at"`
	DeletedBy *int64     `json:"deletedBy" db:"deleted_by"`

	UploadedAt time.Time `json:"uploadedAt" db:"uploaded_at"`
	UploadedBy int64     `json:"uploadedBy" db:"uploaded_by"`
}

// PurgeEvent announces that rows were permanently deleted and their stored
// objects can be removed.
type PurgeEvent struct {
	Kind       string    `json:"kind"`
	ID         int64     `json:"id"`
	ObjectKeys []string  `json:"objectKeys"`
	PurgedBy   int64     `json:"purgedBy"`
	PurgedAt   time.Time `json:"purgedAt"`
}
