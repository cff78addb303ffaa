package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/banksoal/apiserver/internal/export"
	"github.com/banksoal/apiserver/internal/mq"
	"github.com/banksoal/apiserver/internal/storage"
	"github.com/banksoal/apiserver/internal/store"
	"github.com/banksoal/apiserver/types"
)

type fakePublisher struct {
	publishJSONFn func(ctx context.Context, channel string, v any) (string, error)
}

func (f *fakePublisher) PublishJSON(ctx context.Context, channel string, v any) (string, error) {
	if f.publishJSONFn == nil {
		return "", errors.New("not implemented")
	}
	return f.publishJSONFn(ctx, channel, v)
}

// failingFiles wraps a FileRepository and lets tests override writes.
type failingFiles struct {
	FileRepository
	createFn     func(ctx context.Context, file types.File) (types.File, error)
	setDeletedFn func(ctx context.Context, id int64, deleted bool, at *time.Time, by *int64) error
}

func (r *failingFiles) Create(ctx context.Context, file types.File) (types.File, error) {
	if r.createFn != nil {
		return r.createFn(ctx, file)
	}
	return r.FileRepository.Create(ctx, file)
}

func (r *failingFiles) SetDeleted(ctx context.Context, id int64, deleted bool, at *time.Time, by *int64) error {
	if r.setDeletedFn != nil {
		return r.setDeletedFn(ctx, id, deleted, at, by)
	}
	return r.FileRepository.SetDeleted(ctx, id, deleted, at, by)
}

type fixture struct {
	mem     *store.Memory
	objects *storage.MemoryStorage
	sets    *QuestionSetService
	files   *FileService
	export  *ExportService
}

var (
	lecturer = types.Actor{ID: 3, Name: "Bu Rina", Role: "dosen"}
	admin    = types.Actor{ID: 1, Name: "Admin", Role: types.RoleAdmin}
)

func newFixture(t *testing.T, publisher Publisher) *fixture {
	t.Helper()
	mem := store.NewMemory()
	mem.SeedCourses(types.Course{ID: 1, Code: "IF101", Name: "Algoritma dan Pemrograman"})
	objects := storage.NewMemory("test")
	objectStore := storage.NewStorage(objects)
	purger := NewPurger(objectStore, publisher, "banksoal.objects.purge")

	sets := NewQuestionSetService(mem.QuestionSets(), mem.Files(), mem.Courses(), purger)
	files := NewFileService(mem.QuestionSets(), mem.Files(), objectStore, purger)
	return &fixture{
		mem:     mem,
		objects: objects,
		sets:    sets,
		files:   files,
		export:  NewExportService(sets, files, 2),
	}
}

func (f *fixture) createSet(t *testing.T, title string) types.QuestionSet {
	t.Helper()
	qs, err := f.sets.Create(context.Background(), lecturer, types.QuestionSet{
		Title:   title,
		Subject: types.SubjectID(1),
		Year:    2024,
	})
	if err != nil {
		t.Fatalf("create set: %v", err)
	}
	return qs
}

func (f *fixture) upload(t *testing.T, setID int64, category, name, body string, replace bool) types.File {
	t.Helper()
	file, err := f.files.Upload(context.Background(), lecturer, Upload{
		QuestionSetID: setID,
		Category:      category,
		Filename:      name,
		Content:       strings.NewReader(body),
		Replace:       replace,
	})
	if err != nil {
		t.Fatalf("upload %s: %v", name, err)
	}
	return file
}

func TestCreateValidatesAndDefaults(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.sets.Create(ctx, lecturer, types.QuestionSet{Title: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank title, got %v", err)
	}
	if _, err := f.sets.Create(ctx, lecturer, types.QuestionSet{Title: "X", Difficulty: "Ekstrem"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for difficulty, got %v", err)
	}

	qs := f.createSet(t, " UTS Algoritma ")
	if qs.Title != "UTS Algoritma" || qs.Difficulty != types.DifficultyMedium || qs.CreatedBy != lecturer.ID {
		t.Fatalf("unexpected created set %+v", qs)
	}
}

func TestGetHidesDeletedAndCountsDownloads(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	qs := f.createSet(t, "UTS")
	f.upload(t, qs.ID, "soal", "soal.pdf", "%PDF-1.4", false)

	got, err := f.sets.Get(ctx, qs.ID, true)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Downloads != 1 || len(got.Files) != 1 {
		t.Fatalf("expected one download and one file, got %+v", got)
	}

	if _, err := f.sets.SoftDelete(ctx, lecturer, qs.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := f.sets.Get(ctx, qs.ID, false); !IsNotFound(err) {
		t.Fatalf("deleted set should be not found, got %v", err)
	}
}

func TestSoftDeleteAndRestoreAreIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	qs := f.createSet(t, "Kuis")

	deleted, err := f.sets.SoftDelete(ctx, lecturer, qs.ID)
	if err != nil || !deleted.IsDeleted || deleted.DeletedAt == nil || *deleted.DeletedBy != lecturer.ID {
		t.Fatalf("unexpected soft delete result %+v (%v)", deleted, err)
	}
	again, err := f.sets.SoftDelete(ctx, lecturer, qs.ID)
	if err != nil || !again.DeletedAt.Equal(*deleted.DeletedAt) {
		t.Fatalf("second soft delete should be a no-op, got %+v (%v)", again, err)
	}

	bin, _ := f.sets.RecycleBin(ctx)
	if len(bin) != 1 {
		t.Fatalf("expected one set in recycle bin, got %d", len(bin))
	}

	restored, err := f.sets.Restore(ctx, lecturer, qs.ID)
	if err != nil || restored.IsDeleted || restored.DeletedAt != nil {
		t.Fatalf("unexpected restore result %+v (%v)", restored, err)
	}
	if _, err := f.sets.Restore(ctx, lecturer, qs.ID); err != nil {
		t.Fatalf("restoring an active set should succeed, got %v", err)
	}
	if _, err := f.sets.Restore(ctx, lecturer, 404); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdatePatchTogglesDeletion(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	qs := f.createSet(t, "UAS")
	_, _ = f.sets.SoftDelete(ctx, lecturer, qs.ID)

	title := "UAS Revisi"
	restore := false
	updated, err := f.sets.Update(ctx, lecturer, qs.ID, types.QuestionSetPatch{Title: &title, IsDeleted: &restore})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || updated.IsDeleted || updated.DeletedBy != nil {
		t.Fatalf("unexpected updated set %+v", updated)
	}

	bad := types.Difficulty("Ekstrem")
	if _, err := f.sets.Update(ctx, lecturer, qs.ID, types.QuestionSetPatch{Difficulty: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestPurgeRequiresAdminAndRecycleBin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	qs := f.createSet(t, "Purge me")
	file := f.upload(t, qs.ID, "kunci", "kunci.docx", "PK\x03\x04", false)

	if err := f.sets.Purge(ctx, lecturer, qs.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := f.sets.Purge(ctx, admin, qs.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for active set, got %v", err)
	}

	_, _ = f.sets.SoftDelete(ctx, lecturer, qs.ID)
	if err := f.sets.Purge(ctx, admin, qs.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := f.mem.Files().Get(ctx, file.ID); !IsNotFound(err) {
		t.Fatalf("file row should be gone, got %v", err)
	}
	if keys := f.objects.Keys(); len(keys) != 0 {
		t.Fatalf("objects should be deleted inline without a broker, got %v", keys)
	}
	if err := f.sets.Purge(ctx, admin, qs.ID); !IsNotFound(err) {
		t.Fatalf("second purge should be not found, got %v", err)
	}
}

func TestPurgePublishesEvent(t *testing.T) {
	var published types.PurgeEvent
	pub := &fakePublisher{publishJSONFn: func(_ context.Context, channel string, v any) (string, error) {
		if channel != "banksoal.objects.purge" {
			t.Errorf("unexpected channel %q", channel)
		}
		published = v.(types.PurgeEvent)
		return "msg-1", nil
	}}
	f := newFixture(t, pub)
	ctx := context.Background()
	qs := f.createSet(t, "Evented")
	file := f.upload(t, qs.ID, "soal", "soal.pdf", "%PDF", false)
	_, _ = f.files.SoftDelete(ctx, lecturer, file.ID)

	if err := f.files.Purge(ctx, admin, file.ID); err != nil {
		t.Fatalf("purge file: %v", err)
	}
	if published.Kind != "file" || published.ID != file.ID || len(published.ObjectKeys) != 1 || published.ObjectKeys[0] != file.StoredName {
		t.Fatalf("unexpected event %+v", published)
	}
	if keys := f.objects.Keys(); len(keys) != 1 {
		t.Fatalf("object should stay until the worker runs, got %v", keys)
	}

	data, _ := json.Marshal(published)
	if err := f.files.purger.Handle(ctx, mq.Message{ID: "msg-1", Data: data}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if keys := f.objects.Keys(); len(keys) != 0 {
		t.Fatalf("worker should delete the object, got %v", keys)
	}
}

func TestPurgeFallsBackWhenPublishFails(t *testing.T) {
	pub := &fakePublisher{publishJSONFn: func(context.Context, string, any) (string, error) {
		return "", errors.New("broker down")
	}}
	f := newFixture(t, pub)
	ctx := context.Background()
	qs := f.createSet(t, "Fallback")
	file := f.upload(t, qs.ID, "soal", "a.pdf", "%PDF", false)
	_, _ = f.files.SoftDelete(ctx, lecturer, file.ID)

	if err := f.files.Purge(ctx, admin, file.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if keys := f.objects.Keys(); len(keys) != 0 {
		t.Fatalf("expected inline deletion, got %v", keys)
	}
}

func TestUploadSniffsAndReplaces(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	qs := f.createSet(t, "Replace")

	first := f.upload(t, qs.ID, "soal", "soal-v1.pdf", "%PDF-1.4 first", false)
	if first.FileType != "application/pdf" {
		t.Fatalf("expected sniffed pdf content type, got %q", first.FileType)
	}
	if !strings.HasPrefix(first.StoredName, "questionsets/") || !strings.HasSuffix(first.StoredName, ".pdf") {
		t.Fatalf("unexpected object key %q", first.StoredName)
	}

	other := f.upload(t, qs.ID, "kunci", "kunci.txt", "jawaban", false)
	second := f.upload(t, qs.ID, "soal", "soal-v2.pdf", "%PDF-1.4 second", true)
	if second.ReplacesID == nil || *second.ReplacesID != first.ID {
		t.Fatalf("expected replacement link to %d, got %+v", first.ID, second.ReplacesID)
	}

	active, _ := f.mem.Files().ListByQuestionSet(ctx, qs.ID, false)
	if len(active) != 2 {
		t.Fatalf("expected 2 active files, got %+v", active)
	}
	for _, file := range active {
		if file.ID == first.ID {
			t.Fatalf("replaced file should be soft-deleted")
		}
	}
	if _, err := f.mem.Files().Get(ctx, other.ID); err != nil {
		t.Fatalf("other category must be untouched: %v", err)
	}

	history, err := f.files.History(ctx, qs.ID, "soal")
	if err != nil || len(history) != 2 {
		t.Fatalf("expected two entries in history, got %d (%v)", len(history), err)
	}
}

func TestReplaceKeepsOldFileWhenCreateFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	qs := f.createSet(t, "Replace failure")
	old := f.upload(t, qs.ID, "soal", "soal.pdf", "%PDF-1.4 old", false)

	repo := &failingFiles{
		FileRepository: f.mem.Files(),
		createFn: func(context.Context, types.File) (types.File, error) {
			return types.File{}, errors.New("db down")
		},
	}
	objects := storage.NewStorage(f.objects)
	files := NewFileService(f.mem.QuestionSets(), repo, objects, NewPurger(objects, nil, "banksoal.objects.purge"))

	_, err := files.Upload(ctx, lecturer, Upload{
		QuestionSetID: qs.ID,
		Category:      "soal",
		Filename:      "soal2.pdf",
		Content:       strings.NewReader("%PDF-1.4 new"),
		Replace:       true,
	})
	if err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("expected create error, got %v", err)
	}

	active, _ := f.mem.Files().ListByQuestionSet(ctx, qs.ID, false)
	if len(active) != 1 || active[0].ID != old.ID {
		t.Fatalf("old file should stay active, got %+v", active)
	}
	if keys := f.objects.Keys(); len(keys) != 1 || keys[0] != old.StoredName {
		t.Fatalf("new object should be cleaned up, got %v", keys)
	}
}

func TestReplaceRollsBackWhenRetireFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	qs := f.createSet(t, "Retire failure")
	first := f.upload(t, qs.ID, "kunci", "kunci-a.pdf", "%PDF-1.4 a", false)
	second := f.upload(t, qs.ID, "kunci", "kunci-b.pdf", "%PDF-1.4 b", false)

	mem := f.mem.Files()
	repo := &failingFiles{
		FileRepository: mem,
		setDeletedFn: func(ctx context.Context, id int64, deleted bool, at *time.Time, by *int64) error {
			if deleted && id == second.ID {
				return errors.New("db down")
			}
			return mem.SetDeleted(ctx, id, deleted, at, by)
		},
	}
	objects := storage.NewStorage(f.objects)
	files := NewFileService(f.mem.QuestionSets(), repo, objects, NewPurger(objects, nil, "banksoal.objects.purge"))

	if _, err := files.Upload(ctx, lecturer, Upload{
		QuestionSetID: qs.ID,
		Category:      "kunci",
		Filename:      "kunci-c.pdf",
		Content:       strings.NewReader("%PDF-1.4 c"),
		Replace:       true,
	}); err == nil {
		t.Fatalf("expected retire error")
	}

	active, _ := mem.ListByQuestionSet(ctx, qs.ID, false)
	if len(active) != 2 || active[0].ID != first.ID || active[1].ID != second.ID {
		t.Fatalf("both previous files should be active again, got %+v", active)
	}
	all, _ := mem.ListByQuestionSet(ctx, qs.ID, true)
	if len(all) != 2 {
		t.Fatalf("replacement row should be removed, got %+v", all)
	}
	if keys := f.objects.Keys(); len(keys) != 2 {
		t.Fatalf("replacement object should be removed, got %v", keys)
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	qs := f.createSet(t, "Bad")

	_, err := f.files.Upload(ctx, lecturer, Upload{QuestionSetID: qs.ID, Category: "lainnya", Filename: "a.pdf", Content: strings.NewReader("x")})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid category error, got %v", err)
	}
	_, err = f.files.Upload(ctx, lecturer, Upload{QuestionSetID: qs.ID, Category: "soal", Content: strings.NewReader("x")})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected missing filename error, got %v", err)
	}

	_, _ = f.sets.SoftDelete(ctx, lecturer, qs.ID)
	_, err = f.files.Upload(ctx, lecturer, Upload{QuestionSetID: qs.ID, Category: "soal", Filename: "a.pdf", Content: strings.NewReader("x")})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for deleted set, got %v", err)
	}
	if keys := f.objects.Keys(); len(keys) != 0 {
		t.Fatalf("rejected uploads must not store objects, got %v", keys)
	}
}

func TestFileRestoreNeedsActiveSet(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	qs := f.createSet(t, "Restore")
	file := f.upload(t, qs.ID, "test", "case1.in", "1 2", false)

	if _, err := f.files.SoftDelete(ctx, lecturer, file.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := f.files.Download(ctx, file.ID); !IsNotFound(err) {
		t.Fatalf("deleted file should not download, got %v", err)
	}

	_, _ = f.sets.SoftDelete(ctx, lecturer, qs.ID)
	if _, err := f.files.Restore(ctx, lecturer, file.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict while set is deleted, got %v", err)
	}

	_, _ = f.sets.Restore(ctx, lecturer, qs.ID)
	restored, err := f.files.Restore(ctx, lecturer, file.ID)
	if err != nil || restored.IsDeleted {
		t.Fatalf("unexpected restore %+v (%v)", restored, err)
	}
	content, err := f.files.Download(ctx, file.ID)
	if err != nil || string(content.Data) != "1 2" {
		t.Fatalf("unexpected download %+v (%v)", content, err)
	}
}

func TestCombinePreviewPicksNewest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	qs := f.createSet(t, "Preview")

	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	f.files.now = func() time.Time { return clock }
	f.upload(t, qs.ID, "soal", "old.pdf", "%PDF old", false)
	clock = clock.Add(time.Minute)
	f.upload(t, qs.ID, "soal", "new.pdf", "%PDF new", false)

	content, err := f.files.CombinePreview(ctx, qs.ID, "questions")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if content.File.OriginalName != "new.pdf" || content.ContentType != "application/pdf" {
		t.Fatalf("unexpected preview %+v", content.File)
	}

	if _, err := f.files.CombinePreview(ctx, qs.ID, "answers"); !IsNotFound(err) {
		t.Fatalf("expected not found without answers, got %v", err)
	}
	if _, err := f.files.CombinePreview(ctx, qs.ID, "testCases"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for test cases, got %v", err)
	}
}

func TestExportBuildsArchiveAndCountsDownload(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	qs := f.createSet(t, "UTS Algoritma 2024")
	f.upload(t, qs.ID, "soal", "soal.pdf", "%PDF-1.4", false)
	f.upload(t, qs.ID, "test", "solver.py", "print(1)", false)

	archive, err := f.export.Export(ctx, lecturer, qs.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(archive.Filename, "UTS_Algoritma_2024_") {
		t.Fatalf("unexpected filename %q", archive.Filename)
	}
	m := archive.Manifest
	if m.QuestionSet.Subject != "Algoritma dan Pemrograman" || m.Download.DownloadedBy != "Bu Rina" {
		t.Fatalf("unexpected manifest header %+v %+v", m.QuestionSet, m.Download)
	}
	if m.Download.FilesDownloaded.Soal != 1 || m.Download.FilesDownloaded.Testcase != 1 {
		t.Fatalf("unexpected tally %+v", m.Download.FilesDownloaded)
	}

	got, _ := f.mem.QuestionSets().Get(ctx, qs.ID)
	if got.Downloads != 1 {
		t.Fatalf("export should count as a download, got %d", got.Downloads)
	}
}

func TestExportWithoutFilesDoesNotCountDownload(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	qs := f.createSet(t, "Kuis Kosong")

	if _, err := f.export.Export(ctx, lecturer, qs.ID); !errors.Is(err, export.ErrNothingToExport) {
		t.Fatalf("expected ErrNothingToExport, got %v", err)
	}
	got, _ := f.mem.QuestionSets().Get(ctx, qs.ID)
	if got.Downloads != 0 {
		t.Fatalf("failed export must not count, got %d", got.Downloads)
	}
}
