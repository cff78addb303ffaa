package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/banksoal/apiserver/types"
)

// Memory is an in-process store used by the memory driver and tests.
// Its repositories share one lock so cascades stay consistent.
type Memory struct {
	mu         sync.RWMutex
	sets       map[int64]types.QuestionSet
	files      map[int64]types.File
	courses    map[int64]types.Course
	nextSetID  int64
	nextFileID int64
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		sets:    make(map[int64]types.QuestionSet),
		files:   make(map[int64]types.File),
		courses: make(map[int64]types.Course),
		now:     time.Now,
	}
}

// SeedCourses replaces the course catalog.
func (m *Memory) SeedCourses(courses ...types.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses = make(map[int64]types.Course, len(courses))
	for _, c := range courses {
		m.courses[c.ID] = c
	}
}

func (m *Memory) QuestionSets() *MemoryQuestionSets { return &MemoryQuestionSets{m: m} }
func (m *Memory) Files() *MemoryFiles               { return &MemoryFiles{m: m} }
func (m *Memory) Courses() *MemoryCourses           { return &MemoryCourses{m: m} }

// MemoryQuestionSets mirrors QuestionSetRepository.
type MemoryQuestionSets struct {
	m *Memory
}

func matchesFilter(qs types.QuestionSet, filter types.QuestionSetFilter) bool {
	if qs.IsDeleted {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		haystack := strings.ToLower(qs.Title + "\n" + qs.Description + "\n" + qs.Lecturer)
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	if filter.SubjectID > 0 {
		if id, ok := qs.Subject.ID(); !ok || id != filter.SubjectID {
			return false
		}
	}
	if filter.Difficulty != "" && qs.Difficulty != filter.Difficulty {
		return false
	}
	if filter.Year > 0 && qs.Year != filter.Year {
		return false
	}
	if topic := strings.ToLower(strings.TrimSpace(filter.Topic)); topic != "" {
		if !strings.Contains(strings.ToLower(types.JoinTopics(qs.Topics)), topic) {
			return false
		}
	}
	return true
}

func (r *MemoryQuestionSets) List(_ context.Context, filter types.QuestionSetFilter, offset, limit int) ([]types.QuestionSet, int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	matched := make([]types.QuestionSet, 0)
	for _, qs := range r.m.sets {
		if matchesFilter(qs, filter) {
			matched = append(matched, qs)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if offset >= total {
		return []types.QuestionSet{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *MemoryQuestionSets) Get(_ context.Context, id int64) (types.QuestionSet, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	qs, ok := r.m.sets[id]
	if !ok {
		return types.QuestionSet{}, ErrNotFound
	}
	return qs, nil
}

func (r *MemoryQuestionSets) Create(_ context.Context, qs types.QuestionSet) (types.QuestionSet, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.nextSetID++
	now := r.m.now()
	qs.ID = r.m.nextSetID
	qs.CreatedAt = now
	qs.UpdatedAt = now
	qs.Files = nil
	r.m.sets[qs.ID] = qs
	return qs, nil
}

func (r *MemoryQuestionSets) Update(_ context.Context, qs types.QuestionSet) (types.QuestionSet, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	existing, ok := r.m.sets[qs.ID]
	if !ok {
		return types.QuestionSet{}, ErrNotFound
	}
	qs.Downloads = existing.Downloads
	qs.CreatedAt = existing.CreatedAt
	qs.CreatedBy = existing.CreatedBy
	qs.UpdatedAt = r.m.now()
	qs.Files = nil
	r.m.sets[qs.ID] = qs
	return qs, nil
}

func (r *MemoryQuestionSets) IncrementDownloads(_ context.Context, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	qs, ok := r.m.sets[id]
	if !ok || qs.IsDeleted {
		return ErrNotFound
	}
	qs.Downloads++
	r.m.sets[id] = qs
	return nil
}

// Delete removes the set and every file attached to it.
func (r *MemoryQuestionSets) Delete(_ context.Context, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.sets[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.sets, id)
	for fid, f := range r.m.files {
		if f.QuestionSetID == id {
			delete(r.m.files, fid)
		}
	}
	return nil
}

func (r *MemoryQuestionSets) ListDeleted(_ context.Context) ([]types.QuestionSet, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]types.QuestionSet, 0)
	for _, qs := range r.m.sets {
		if qs.IsDeleted {
			out = append(out, qs)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return deletedAfter(out[i].DeletedAt, out[j].DeletedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

// MemoryFiles mirrors FileRepository.
type MemoryFiles struct {
	m *Memory
}

func (r *MemoryFiles) collect(keep func(types.File) bool) []types.File {
	out := make([]types.File, 0)
	for _, f := range r.m.files {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

func (r *MemoryFiles) ListByQuestionSet(_ context.Context, questionSetID int64, includeDeleted bool) ([]types.File, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := r.collect(func(f types.File) bool {
		return f.QuestionSetID == questionSetID && (includeDeleted || !f.IsDeleted)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryFiles) History(_ context.Context, questionSetID int64, category types.Category) ([]types.File, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := r.collect(func(f types.File) bool {
		return f.QuestionSetID == questionSetID && (category == "" || f.Category == category)
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemoryFiles) ListDeleted(_ context.Context) ([]types.File, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := r.collect(func(f types.File) bool { return f.IsDeleted })
	sort.Slice(out, func(i, j int) bool {
		return deletedAfter(out[i].DeletedAt, out[j].DeletedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (r *MemoryFiles) Get(_ context.Context, id int64) (types.File, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	f, ok := r.m.files[id]
	if !ok {
		return types.File{}, ErrNotFound
	}
	return f, nil
}

func (r *MemoryFiles) Create(_ context.Context, f types.File) (types.File, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.sets[f.QuestionSetID]; !ok {
		return types.File{}, ErrNotFound
	}
	r.m.nextFileID++
	f.ID = r.m.nextFileID
	if f.UploadedAt.IsZero() {
		f.UploadedAt = r.m.now()
	}
	r.m.files[f.ID] = f
	return f, nil
}

func (r *MemoryFiles) SetDeleted(_ context.Context, id int64, deleted bool, at *time.Time, by *int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f, ok := r.m.files[id]
	if !ok {
		return ErrNotFound
	}
	f.IsDeleted = deleted
	f.DeletedAt = at
	f.DeletedBy = by
	r.m.files[id] = f
	return nil
}

func (r *MemoryFiles) Delete(_ context.Context, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.files[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.files, id)
	return nil
}

// MemoryCourses mirrors CourseRepository.
type MemoryCourses struct {
	m *Memory
}

func (r *MemoryCourses) List(_ context.Context) ([]types.Course, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]types.Course, 0, len(r.m.courses))
	for _, c := range r.m.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryCourses) Get(_ context.Context, id int64) (types.Course, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	c, ok := r.m.courses[id]
	if !ok {
		return types.Course{}, ErrNotFound
	}
	return c, nil
}

func deletedAfter(a, b *time.Time, aID, bID int64) bool {
	switch {
	case a != nil && b != nil && !a.Equal(*b):
		return a.After(*b)
	case a != nil && b == nil:
		return true
	case a == nil && b != nil:
		return false
	}
	return aID > bID
}
