// Package filemeta classifies uploaded files into archive buckets and decides
// the filename each one gets inside an export.
package filemeta

import (
	"strings"

	"github.com/banksoal/apiserver/types"
)

var categoryLabels = map[string]types.Category{
	"soal":  types.CategoryQuestions,
	"kunci": types.CategoryAnswers,
	"test":  types.CategoryTestCases,
}

// ClassifyCategory maps an upload category label onto a canonical bucket.
// The Indonesian labels (soal, kunci, test) are matched case-insensitively;
// the canonical English names pass through unchanged.
func ClassifyCategory(raw string) (types.Category, bool) {
	label := strings.TrimSpace(raw)
	switch types.Category(label) {
	case types.CategoryQuestions, types.CategoryAnswers, types.CategoryTestCases:
		return types.Category(label), true
	}
	if c, ok := categoryLabels[strings.ToLower(label)]; ok {
		return c, true
	}
	return "", false
}

// Folder is the top-level archive directory for a category.
func Folder(c types.Category) string {
	switch c {
	case types.CategoryQuestions:
		return "01_Soal"
	case types.CategoryAnswers:
		return "02_Kunci_Jawaban"
	case types.CategoryTestCases:
		return "03_Test_Cases"
	default:
		return ""
	}
}

// TallyKey is the manifest key counting files of a category.
func TallyKey(c types.Category) string {
	switch c {
	case types.CategoryQuestions:
		return "soal"
	case types.CategoryAnswers:
		return "jawaban"
	case types.CategoryTestCases:
		return "testcase"
	default:
		return ""
	}
}
