package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Course is catalog reference data used to resolve a subject id to a name.
type Course struct {
	ID   int64  `json:"id" db:"id"`
	Code string `json:"code" db:"code"`
	Name string `json:"name" db:"name"`
}

// SubjectRef is either a course id or a denormalized course name.
// Exactly one of the two forms is set; the zero value is an empty reference.
type SubjectRef struct {
	id   int64
	name string
}

// SubjectID builds a reference to a catalog course.
func SubjectID(id int64) SubjectRef {
	return SubjectRef{id: id}
}

// SubjectName builds a reference that already carries the display name.
func SubjectName(name string) SubjectRef {
	return SubjectRef{name: strings.TrimSpace(name)}
}

// ID returns the course id when the reference is an id.
func (s SubjectRef) ID() (int64, bool) {
	return s.id, s.id > 0
}

// Name returns the display name when the reference is a name.
func (s SubjectRef) Name() (string, bool) {
	return s.name, s.id == 0 && s.name != ""
}

// IsZero reports whether no subject is set.
func (s SubjectRef) IsZero() bool {
	return s.id == 0 && s.name == ""
}

type subjectJSON struct {
	ID   *int64  `json:"id,omitempty"`
	Name *string `json:"name,omitempty"`
}

// MarshalJSON always emits the object form.
func (s SubjectRef) MarshalJSON() ([]byte, error) {
	switch {
	case s.id > 0:
		return json.Marshal(subjectJSON{ID: &s.id})
	case s.name != "":
		return json.Marshal(subjectJSON{Name: &s.name})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a number (id), a string (name) or the object form.
func (s *SubjectRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = SubjectRef{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*s = SubjectName(name)
		return nil
	case '{':
		var obj subjectJSON
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.ID != nil && *obj.ID > 0 {
			*s = SubjectID(*obj.ID)
			return nil
		}
		if obj.Name != nil {
			*s = SubjectName(*obj.Name)
		}
		return nil
	default:
		var id int64
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("invalid subject reference: %w", err)
		}
		if id < 1 {
			return errors.New("invalid subject reference: id must be positive")
		}
		*s = SubjectID(id)
		return nil
	}
}

// CourseLookup resolves catalog course ids.
type CourseLookup interface {
	CourseName(id int64) (string, bool)
}

// ResolveSubjectName produces the display name for a subject reference.
func ResolveSubjectName(ref SubjectRef, courses CourseLookup) string {
	if name, ok := ref.Name(); ok {
		return name
	}
	id, ok := ref.ID()
	if !ok {
		return ""
	}
	if courses != nil {
		if name, found := courses.CourseName(id); found && strings.TrimSpace(name) != "" {
			return name
		}
	}
	return fmt.Sprintf("Mata kuliah #%d", id)
}

// CourseIndex is a CourseLookup over an in-memory slice.
type CourseIndex map[int64]string

// NewCourseIndex indexes courses by id.
func NewCourseIndex(courses []Course) CourseIndex {
	idx := make(CourseIndex, len(courses))
	for _, c := range courses {
		idx[c.ID] = c.Name
	}
	return idx
}

// CourseName implements CourseLookup.
func (c CourseIndex) CourseName(id int64) (string, bool) {
	name, ok := c[id]
	return name, ok
}
