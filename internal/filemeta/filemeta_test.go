package filemeta

import (
	"testing"

	"github.com/banksoal/apiserver/types"
)

func TestClassifyCategory(t *testing.T) {
	tests := []struct {
		raw    string
		want   types.Category
		wantOK bool
	}{
		{raw: "soal", want: types.CategoryQuestions, wantOK: true},
		{raw: "kunci", want: types.CategoryAnswers, wantOK: true},
		{raw: "test", want: types.CategoryTestCases, wantOK: true},
		{raw: "questions", want: types.CategoryQuestions, wantOK: true},
		{raw: "answers", want: types.CategoryAnswers, wantOK: true},
		{raw: "testCases", want: types.CategoryTestCases, wantOK: true},
		{raw: "  Kunci ", want: types.CategoryAnswers, wantOK: true},
		{raw: "SOAL", want: types.CategoryQuestions, wantOK: true},
		{raw: "testcases"},
		{raw: "jawaban"},
		{raw: ""},
	}

	for _, tc := range tests {
		got, ok := ClassifyCategory(tc.raw)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("ClassifyCategory(%q) = (%q, %v), want (%q, %v)", tc.raw, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestFolderAndTallyKey(t *testing.T) {
	for _, c := range types.Categories {
		if Folder(c) == "" || TallyKey(c) == "" {
			t.Fatalf("category %q has no folder or tally key", c)
		}
	}
	if Folder(types.CategoryAnswers) != "02_Kunci_Jawaban" {
		t.Fatalf("unexpected answers folder %q", Folder(types.CategoryAnswers))
	}
	if TallyKey(types.CategoryTestCases) != "testcase" {
		t.Fatalf("unexpected test case key %q", TallyKey(types.CategoryTestCases))
	}
	if Folder("misc") != "" {
		t.Fatalf("unknown category should have no folder")
	}
}

func TestResolveExtension(t *testing.T) {
	tests := []struct {
		name       string
		meta       FileMeta
		wantExt    string
		wantProg   bool
		wantSource ResolutionSource
	}{
		{
			name:       "source file ignores content type",
			meta:       FileMeta{OriginalName: "Solution.py", ContentType: "application/pdf"},
			wantExt:    ".py",
			wantProg:   true,
			wantSource: SourceOriginalName,
		},
		{
			name:       "upper-case extension is lowered",
			meta:       FileMeta{OriginalName: "Main.JAVA"},
			wantExt:    ".java",
			wantProg:   true,
			wantSource: SourceOriginalName,
		},
		{
			name:       "document from original name",
			meta:       FileMeta{OriginalName: "answer.pdf"},
			wantExt:    ".pdf",
			wantSource: SourceOriginalName,
		},
		{
			name:       "stored name when original has none",
			meta:       FileMeta{OriginalName: "jawaban", StoredName: "questionsets/4/abc.docx"},
			wantExt:    ".docx",
			wantSource: SourceStoredName,
		},
		{
			name:       "pdf content type",
			meta:       FileMeta{OriginalName: "soal", ContentType: "application/pdf"},
			wantExt:    ".pdf",
			wantSource: SourceContentType,
		},
		{
			name:       "javascript is not java",
			meta:       FileMeta{ContentType: "application/javascript"},
			wantExt:    ".js",
			wantProg:   true,
			wantSource: SourceContentType,
		},
		{
			name:       "python content type",
			meta:       FileMeta{ContentType: "text/x-python"},
			wantExt:    ".py",
			wantProg:   true,
			wantSource: SourceContentType,
		},
		{
			name:       "docx content type",
			meta:       FileMeta{ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
			wantExt:    ".docx",
			wantSource: SourceContentType,
		},
		{
			name:       "docx content type with a name",
			meta:       FileMeta{OriginalName: "jawaban", ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
			wantExt:    ".docx",
			wantSource: SourceContentType,
		},
		{
			name:       "xml content type",
			meta:       FileMeta{ContentType: "text/xml; charset=utf-8"},
			wantExt:    ".xml",
			wantProg:   true,
			wantSource: SourceContentType,
		},
		{
			name:       "svg is xml",
			meta:       FileMeta{ContentType: "image/svg+xml"},
			wantExt:    ".xml",
			wantProg:   true,
			wantSource: SourceContentType,
		},
		{
			name:       "other openxml documents are not source",
			meta:       FileMeta{ID: 4, ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
			wantExt:    ".bin",
			wantSource: SourceFallback,
		},
		{
			name:       "filetype fallback",
			meta:       FileMeta{ContentType: "application/octet-stream", FileType: "Word document"},
			wantExt:    ".docx",
			wantSource: SourceFileType,
		},
		{
			name:       "filetype msword",
			meta:       FileMeta{FileType: "application/msword"},
			wantExt:    ".doc",
			wantSource: SourceFileType,
		},
		{
			name:       "nothing known falls back to bin",
			meta:       FileMeta{ID: 9, OriginalName: "blob"},
			wantExt:    ".bin",
			wantSource: SourceFallback,
		},
		{
			name:       "trailing dot is no extension",
			meta:       FileMeta{OriginalName: "notes.", ContentType: "text/plain"},
			wantExt:    ".txt",
			wantSource: SourceContentType,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveExtension(tc.meta)
			if got.Ext != tc.wantExt || got.Programming != tc.wantProg || got.Source != tc.wantSource {
				t.Fatalf("got %+v, want ext=%s programming=%v source=%s", got, tc.wantExt, tc.wantProg, tc.wantSource)
			}
		})
	}
}

func TestResolveExtensionNeverDefaultsToPDF(t *testing.T) {
	got := ResolveExtension(FileMeta{ContentType: "application/x-unknown"})
	if got.Ext == ".pdf" {
		t.Fatalf("unknown content should not resolve to .pdf")
	}
	if got.Ext != FallbackExt {
		t.Fatalf("expected %s, got %s", FallbackExt, got.Ext)
	}
}

func TestArchiveName(t *testing.T) {
	tests := []struct {
		name string
		meta FileMeta
		want string
	}{
		{name: "document keeps its name", meta: FileMeta{OriginalName: "answer.pdf"}, want: "answer.pdf"},
		{name: "source keeps its extension", meta: FileMeta{OriginalName: "checker.py", ContentType: "application/pdf"}, want: "checker.py"},
		{name: "source extension is forced", meta: FileMeta{OriginalName: "checker", ContentType: "text/x-python"}, want: "checker.py"},
		{name: "document extension appended", meta: FileMeta{OriginalName: "Soal UTS", ContentType: "application/pdf"}, want: "Soal_UTS.pdf"},
		{name: "docx is not exported as xml", meta: FileMeta{OriginalName: "jawaban", ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"}, want: "jawaban.docx"},
		{name: "stored name used as base", meta: FileMeta{StoredName: "questionsets/1/abc.pdf"}, want: "abc.pdf"},
		{name: "id used as last resort", meta: FileMeta{ID: 17}, want: "file_17.bin"},
		{name: "unsafe characters", meta: FileMeta{OriginalName: `a<b>:c"d|e?f*.txt`}, want: "a_b_c_d_e_f_.txt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ArchiveName(tc.meta, ResolveExtension(tc.meta))
			if got != tc.want {
				t.Fatalf("ArchiveName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Soal   UTS  2024.pdf": "Soal_UTS_2024.pdf",
		"a/b\\c.txt":           "a_b_c.txt",
		"__x___y__":            "_x_y_",
		"plain.docx":           "plain.docx",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsProgrammingExt(t *testing.T) {
	for _, ext := range []string{".js", "py", ".SQL", "html", ".json"} {
		if !IsProgrammingExt(ext) {
			t.Errorf("%s should be a programming extension", ext)
		}
	}
	for _, ext := range []string{".pdf", "docx", ".doc", "txt", ".bin"} {
		if IsProgrammingExt(ext) {
			t.Errorf("%s should not be a programming extension", ext)
		}
	}
	if len(programmingExts) < 60 {
		t.Fatalf("programming extension set is unexpectedly small: %d", len(programmingExts))
	}
}
