package types

import (
	"encoding/json"
	"testing"
)

func TestSubjectRefUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantID   int64
		wantName string
		wantZero bool
		wantErr  bool
	}{
		{name: "number is id", raw: `12`, wantID: 12},
		{name: "string is name", raw: `"Algoritma Pemrograman"`, wantName: "Algoritma Pemrograman"},
		{name: "numeric string stays a name", raw: `"12"`, wantName: "12"},
		{name: "object id", raw: `{"id":7}`, wantID: 7},
		{name: "object name", raw: `{"name":"Basis Data"}`, wantName: "Basis Data"},
		{name: "null", raw: `null`, wantZero: true},
		{name: "negative id", raw: `-3`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var ref SubjectRef
			err := json.Unmarshal([]byte(tc.raw), &ref)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantZero {
				if !ref.IsZero() {
					t.Fatalf("expected zero reference, got %+v", ref)
				}
				return
			}
			if tc.wantID != 0 {
				id, ok := ref.ID()
				if !ok || id != tc.wantID {
					t.Fatalf("expected id %d, got %d (ok=%v)", tc.wantID, id, ok)
				}
				return
			}
			name, ok := ref.Name()
			if !ok || name != tc.wantName {
				t.Fatalf("expected name %q, got %q (ok=%v)", tc.wantName, name, ok)
			}
		})
	}
}

func TestSubjectRefRoundTripObjectForm(t *testing.T) {
	data, err := json.Marshal(SubjectID(5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"id":5}` {
		t.Fatalf("unexpected encoding: %s", data)
	}
}

func TestResolveSubjectName(t *testing.T) {
	courses := NewCourseIndex([]Course{{ID: 1, Name: "Struktur Data"}})

	if got := ResolveSubjectName(SubjectID(1), courses); got != "Struktur Data" {
		t.Fatalf("expected catalog name, got %q", got)
	}
	if got := ResolveSubjectName(SubjectID(99), courses); got != "Mata kuliah #99" {
		t.Fatalf("expected placeholder for unknown id, got %q", got)
	}
	if got := ResolveSubjectName(SubjectName("Kalkulus"), courses); got != "Kalkulus" {
		t.Fatalf("expected name passthrough, got %q", got)
	}
	if got := ResolveSubjectName(SubjectRef{}, courses); got != "" {
		t.Fatalf("expected empty name, got %q", got)
	}
}

func TestSplitTopics(t *testing.T) {
	got := SplitTopics(" graf, , rekursi ,dp")
	want := []string{"graf", "rekursi", "dp"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if JoinTopics(got) != "graf,rekursi,dp" {
		t.Fatalf("unexpected join: %q", JoinTopics(got))
	}
}
