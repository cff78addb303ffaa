package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/banksoal/apiserver/internal/export"
	"github.com/banksoal/apiserver/types"
)

// ExportService builds question set archives from the local store.
type ExportService struct {
	sets        *QuestionSetService
	files       *FileService
	concurrency int
}

func NewExportService(sets *QuestionSetService, files *FileService, concurrency int) *ExportService {
	return &ExportService{sets: sets, files: files, concurrency: concurrency}
}

// Export packages an active question set and counts it as a download.
func (s *ExportService) Export(ctx context.Context, actor types.Actor, id int64) (*export.Archive, error) {
	packager := export.NewPackager(
		s,
		export.WithConcurrency(s.concurrency),
		export.WithCourses(s.sets.CourseIndex(ctx)),
	)
	return packager.Export(ctx, id, requesterName(actor))
}

func (s *ExportService) QuestionSetForExport(ctx context.Context, id int64) (types.QuestionSet, error) {
	return s.sets.Get(ctx, id, false)
}

// RecordDownload counts a finished export.
func (s *ExportService) RecordDownload(ctx context.Context, id int64) error {
	return s.sets.RecordDownload(ctx, id)
}

func (s *ExportService) FileContent(ctx context.Context, file types.File) (export.Blob, error) {
	content, err := s.files.read(ctx, file)
	if err != nil {
		return export.Blob{}, err
	}
	return export.Blob{Data: content.Data, ContentType: content.ContentType}, nil
}

func requesterName(actor types.Actor) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	if actor.ID > 0 {
		return fmt.Sprintf("user #%d", actor.ID)
	}
	return "unknown"
}
