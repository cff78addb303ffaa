// Package export bundles the active files of a question set into a foldered
// ZIP archive with a JSON manifest.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"golang.org/x/sync/errgroup"

	"github.com/banksoal/apiserver/internal/filemeta"
	"github.com/banksoal/apiserver/internal/logger"
	"github.com/banksoal/apiserver/types"
)

const (
	// DefaultConcurrency bounds the number of file fetches in flight.
	DefaultConcurrency = 4

	// compressionLevel favors speed over ratio.
	compressionLevel = 6

	manifestName = "summary.json"
	generator    = "Bank Soal"
)

var (
	// ErrNothingToExport is returned when the question set has no active files.
	ErrNothingToExport = errors.New("question set has no files to download")
	// ErrAllFilesFailed is returned when not a single file could be fetched.
	ErrAllFilesFailed = errors.New("no file could be downloaded")
)

// Blob is the content of one file.
type Blob struct {
	Data        []byte
	ContentType string
}

// Source provides the question set and file contents to package.
type Source interface {
	QuestionSetForExport(ctx context.Context, id int64) (types.QuestionSet, error)
	FileContent(ctx context.Context, file types.File) (Blob, error)
}

// DownloadRecorder is implemented by sources that count finished exports.
// The packager calls it only after the archive has been built.
type DownloadRecorder interface {
	RecordDownload(ctx context.Context, questionSetID int64) error
}

// Archive is a finished export.
type Archive struct {
	Filename string
	Data     []byte
	Manifest Manifest
}

// Packager builds export archives.
type Packager struct {
	source      Source
	courses     types.CourseLookup
	concurrency int
	now         func() time.Time
}

// Option configures a Packager.
type Option func(*Packager)

// WithConcurrency sets how many files are fetched at once. Values below one
// fall back to DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(p *Packager) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithCourses resolves subject ids in the manifest.
func WithCourses(courses types.CourseLookup) Option {
	return func(p *Packager) { p.courses = courses }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Packager) { p.now = now }
}

// NewPackager creates a packager reading from source.
func NewPackager(source Source, opts ...Option) *Packager {
	p := &Packager{
		source:      source,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type fetched struct {
	file     types.File
	category types.Category
	blob     Blob
	err      error
}

// Export fetches every active file of the question set and packages them.
// Individual fetch failures only reduce the tally; the call fails when the
// set cannot be loaded, has no files, or none of its files could be fetched.
func (p *Packager) Export(ctx context.Context, questionSetID int64, requestedBy string) (*Archive, error) {
	qs, err := p.source.QuestionSetForExport(ctx, questionSetID)
	if err != nil {
		return nil, fmt.Errorf("load question set %d: %w", questionSetID, err)
	}

	files := qs.ActiveFiles()
	if len(files) == 0 {
		return nil, ErrNothingToExport
	}

	var (
		jobs    []*fetched
		skipped int
	)
	for _, f := range files {
		category, ok := filemeta.ClassifyCategory(string(f.Category))
		if !ok {
			skipped++
			logger.Warn().
				Int64("question_set_id", qs.ID).
				Int64("file_id", f.ID).
				Str("category", string(f.Category)).
				Msg("skipping file with unknown category")
			continue
		}
		jobs = append(jobs, &fetched{file: f, category: category})
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			job.blob, job.err = p.source.FileContent(ctx, job.file)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].category != jobs[j].category {
			return categoryRank(jobs[i].category) < categoryRank(jobs[j].category)
		}
		return jobs[i].file.ID < jobs[j].file.ID
	})

	now := p.now()
	manifest := Manifest{
		QuestionSet: ManifestQuestionSet{
			ID:          qs.ID,
			Title:       qs.Title,
			Description: qs.Description,
			Subject:     types.ResolveSubjectName(qs.Subject, p.courses),
			Difficulty:  string(qs.Difficulty),
			Lecturer:    qs.Lecturer,
			Year:        qs.Year,
			Topics:      qs.Topics,
		},
		Download: ManifestDownload{
			DownloadedAt: now,
			DownloadedBy: requestedBy,
			TotalFiles:   len(files),
			Skipped:      skipped,
			Files:        []ManifestFile{},
		},
		Generator: generator,
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, compressionLevel)
	})

	for _, c := range types.Categories {
		if err := writeDir(zw, filemeta.Folder(c), now); err != nil {
			return nil, fmt.Errorf("write folder %s: %w", filemeta.Folder(c), err)
		}
	}

	names := make(map[string]map[string]int)
	for _, job := range jobs {
		if job.err != nil {
			manifest.Download.Failed++
			logger.Warn().
				Err(job.err).
				Int64("question_set_id", qs.ID).
				Int64("file_id", job.file.ID).
				Str("originalname", job.file.OriginalName).
				Msg("file download failed, leaving it out of the archive")
			continue
		}

		meta := filemeta.FileMeta{
			ID:           job.file.ID,
			OriginalName: job.file.OriginalName,
			StoredName:   job.file.StoredName,
			ContentType:  job.blob.ContentType,
			FileType:     job.file.FileType,
		}
		folder := filemeta.Folder(job.category)
		name := uniqueName(names, folder, filemeta.ArchiveName(meta, filemeta.ResolveExtension(meta)))
		entry := path.Join(folder, name)

		if err := writeEntry(zw, entry, job.blob.Data, now); err != nil {
			return nil, fmt.Errorf("write %s: %w", entry, err)
		}
		manifest.Download.FilesDownloaded.add(job.category)
		manifest.Download.Files = append(manifest.Download.Files, ManifestFile{
			ID:           job.file.ID,
			Path:         entry,
			OriginalName: job.file.OriginalName,
			Size:         int64(len(job.blob.Data)),
		})
	}

	if manifest.Download.FilesDownloaded.Total() == 0 {
		return nil, ErrAllFilesFailed
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeEntry(zw, manifestName, data, now); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	if recorder, ok := p.source.(DownloadRecorder); ok {
		if err := recorder.RecordDownload(ctx, qs.ID); err != nil {
			logger.Warn().Err(err).Int64("question_set_id", qs.ID).Msg("download count not updated")
		}
	}

	logger.Info().
		Int64("question_set_id", qs.ID).
		Int("files", manifest.Download.FilesDownloaded.Total()).
		Int("failed", manifest.Download.Failed).
		Int("skipped", skipped).
		Msg("export archive built")

	return &Archive{
		Filename: ArchiveFilename(qs.Title, now),
		Data:     buf.Bytes(),
		Manifest: manifest,
	}, nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// writeDir adds an empty folder entry so every category folder exists even
// when it holds no files.
func writeDir(zw *zip.Writer, name string, modified time.Time) error {
	_, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name + "/",
		Method:   zip.Store,
		Modified: modified,
	})
	return err
}

func categoryRank(c types.Category) int {
	for i, known := range types.Categories {
		if known == c {
			return i
		}
	}
	return len(types.Categories)
}

// uniqueName suffixes repeated names inside one folder with _2, _3, ...
func uniqueName(seen map[string]map[string]int, folder, name string) string {
	used, ok := seen[folder]
	if !ok {
		used = make(map[string]int)
		seen[folder] = used
	}

	key := strings.ToLower(name)
	used[key]++
	if used[key] == 1 {
		return name
	}

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := used[key]; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		ckey := strings.ToLower(candidate)
		if used[ckey] == 0 {
			used[ckey] = 1
			used[key] = n
			return candidate
		}
	}
}
