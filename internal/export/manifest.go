package export

import (
	"regexp"
	"strings"
	"time"

	"github.com/banksoal/apiserver/types"
)

// Manifest is written to summary.json at the archive root.
type Manifest struct {
	QuestionSet ManifestQuestionSet `json:"questionSet"`
	Download    ManifestDownload    `json:"download"`
	Generator   string              `json:"generator"`
}

// ManifestQuestionSet describes the exported question set.
type ManifestQuestionSet struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"`
	Lecturer    string   `json:"lecturer,omitempty"`
	Year        int      `json:"year,omitempty"`
	Topics      []string `json:"topics"`
}

// ManifestDownload describes the export itself.
type ManifestDownload struct {
	DownloadedAt    time.Time      `json:"downloadedAt"`
	DownloadedBy    string         `json:"downloadedBy"`
	FilesDownloaded Tally          `json:"filesDownloaded"`
	TotalFiles      int            `json:"totalFiles"`
	Skipped         int            `json:"skipped"`
	Failed          int            `json:"failed"`
	Files           []ManifestFile `json:"files"`
}

// ManifestFile is one archived file.
type ManifestFile struct {
	ID           int64  `json:"id"`
	Path         string `json:"path"`
	OriginalName string `json:"originalname"`
	Size         int64  `json:"size"`
}

// Tally counts archived files per category.
type Tally struct {
	Soal     int `json:"soal"`
	Jawaban  int `json:"jawaban"`
	Testcase int `json:"testcase"`
}

func (t *Tally) add(c types.Category) {
	switch c {
	case types.CategoryQuestions:
		t.Soal++
	case types.CategoryAnswers:
		t.Jawaban++
	case types.CategoryTestCases:
		t.Testcase++
	}
}

// Total is the number of archived files.
func (t Tally) Total() int {
	return t.Soal + t.Jawaban + t.Testcase
}

const (
	maxTitleLen  = 50
	defaultTitle = "Bank_Soal"
)

var (
	titleUnsafe     = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	titleUnderscore = regexp.MustCompile(`_+`)
)

// SanitizeTitle turns a question set title into a filename stem.
func SanitizeTitle(title string) string {
	s := titleUnsafe.ReplaceAllString(strings.TrimSpace(title), "_")
	s = titleUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > maxTitleLen {
		s = strings.TrimRight(s[:maxTitleLen], "_")
	}
	if s == "" {
		return defaultTitle
	}
	return s
}

// ArchiveFilename is {SanitizedTitle}_{YYYY-MM-DD}.zip.
func ArchiveFilename(title string, at time.Time) string {
	return SanitizeTitle(title) + "_" + at.Format("2006-01-02") + ".zip"
}
