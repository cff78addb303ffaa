package filemeta

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/banksoal/apiserver/internal/logger"
)

// FileMeta is the subset of a file record the resolver looks at.
type FileMeta struct {
	ID           int64
	OriginalName string
	StoredName   string
	ContentType  string
	FileType     string
}

// ResolutionSource tells which field decided the extension.
type ResolutionSource string

const (
	SourceOriginalName ResolutionSource = "originalname"
	SourceStoredName   ResolutionSource = "filename"
	SourceContentType  ResolutionSource = "content-type"
	SourceFileType     ResolutionSource = "filetype"
	SourceFallback     ResolutionSource = "fallback"
)

// FallbackExt is used when nothing identifies the file. It is never .pdf.
const FallbackExt = ".bin"

// Resolution is the outcome of ResolveExtension.
type Resolution struct {
	// Ext has a leading dot and is lower-case.
	Ext string
	// Programming marks source, config and markup files whose extension must
	// survive packaging unchanged.
	Programming bool
	Source      ResolutionSource
}

var programmingExts = map[string]struct{}{}

func init() {
	for _, ext := range []string{
		"js", "jsx", "mjs", "cjs", "ts", "tsx", "py", "pyw", "ipynb", "java", "kt", "kts",
		"scala", "groovy", "c", "h", "cpp", "cc", "cxx", "hpp", "hh", "cs", "go", "rs",
		"swift", "m", "mm", "rb", "php", "pl", "pm", "lua", "r", "jl", "dart", "hs", "ml",
		"fs", "ex", "exs", "erl", "clj", "lisp", "scm", "pas", "vb", "asm", "s", "sh",
		"bash", "zsh", "ps1", "bat", "cmd", "sql", "html", "htm", "css", "scss", "sass",
		"less", "vue", "svelte", "json", "xml", "yaml", "yml", "toml", "ini", "cfg", "conf",
		"env", "md", "tex", "csv", "tsv", "gradle", "makefile", "dockerfile", "proto",
		"graphql", "sol", "v", "vhd", "vhdl",
	} {
		programmingExts[ext] = struct{}{}
	}
}

// IsProgrammingExt reports whether ext (with or without the leading dot)
// names a source, config or markup file.
func IsProgrammingExt(ext string) bool {
	_, ok := programmingExts[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ok
}

type contentTypeRule struct {
	needle      string
	ext         string
	programming bool
}

// Order matters: office documents are checked first because their vendor
// types contain "xml" (openxmlformats), and "javascript" contains "java".
var contentTypeRules = []contentTypeRule{
	{needle: "wordprocessingml", ext: ".docx"},
	{needle: "msword", ext: ".doc"},
	{needle: "pdf", ext: ".pdf"},
	{needle: "javascript", ext: ".js", programming: true},
	{needle: "json", ext: ".json", programming: true},
	{needle: "python", ext: ".py", programming: true},
	{needle: "java", ext: ".java", programming: true},
	{needle: "text/plain", ext: ".txt"},
}

// isXMLType matches application/xml, text/xml and +xml suffixed types.
func isXMLType(ct string) bool {
	mediaType, _, _ := strings.Cut(ct, ";")
	mediaType = strings.TrimSpace(mediaType)
	return mediaType == "application/xml" || mediaType == "text/xml" || strings.HasSuffix(mediaType, "+xml")
}

var fileTypeRules = []contentTypeRule{
	{needle: "pdf", ext: ".pdf"},
	{needle: "docx", ext: ".docx"},
	{needle: "msword", ext: ".doc"},
	{needle: "word", ext: ".docx"},
	{needle: "doc", ext: ".doc"},
	{needle: "text", ext: ".txt"},
}

// ResolveExtension picks the best-effort extension for a file. The first
// matching rule wins: original name, stored name, content-type, declared file
// type. It never inspects file contents.
func ResolveExtension(meta FileMeta) Resolution {
	if ext := extOf(meta.OriginalName); ext != "" {
		return Resolution{Ext: "." + ext, Programming: IsProgrammingExt(ext), Source: SourceOriginalName}
	}
	if ext := extOf(path.Base(meta.StoredName)); ext != "" {
		return Resolution{Ext: "." + ext, Programming: IsProgrammingExt(ext), Source: SourceStoredName}
	}

	ct := strings.ToLower(strings.TrimSpace(meta.ContentType))
	if ct != "" {
		for _, rule := range contentTypeRules {
			if strings.Contains(ct, rule.needle) {
				return Resolution{Ext: rule.ext, Programming: rule.programming, Source: SourceContentType}
			}
		}
		if isXMLType(ct) {
			return Resolution{Ext: ".xml", Programming: true, Source: SourceContentType}
		}
	}

	ft := strings.ToLower(strings.TrimSpace(meta.FileType))
	if ft != "" {
		for _, rule := range fileTypeRules {
			if strings.Contains(ft, rule.needle) {
				return Resolution{Ext: rule.ext, Source: SourceFileType}
			}
		}
	}

	logger.Warn().
		Int64("file_id", meta.ID).
		Str("originalname", meta.OriginalName).
		Str("content_type", meta.ContentType).
		Str("filetype", meta.FileType).
		Msg("could not determine file extension, using .bin")
	return Resolution{Ext: FallbackExt, Source: SourceFallback}
}

// ArchiveName is the sanitized name a file gets inside an export.
func ArchiveName(meta FileMeta, res Resolution) string {
	base := strings.TrimSpace(meta.OriginalName)
	if base == "" && strings.TrimSpace(meta.StoredName) != "" {
		base = path.Base(strings.TrimSpace(meta.StoredName))
	}
	if base == "" {
		base = fmt.Sprintf("file_%d", meta.ID)
	}

	switch {
	case res.Programming:
		base = stripExt(base) + res.Ext
	case extOf(base) == "":
		base = strings.TrimSuffix(base, ".") + res.Ext
	}
	return SanitizeFilename(base)
}

var (
	unsafeChars   = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	underscoreRun = regexp.MustCompile(`_+`)
)

// SanitizeFilename replaces characters that are invalid in archive entry
// names and collapses whitespace and underscores.
func SanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = whitespaceRun.ReplaceAllString(name, "_")
	return underscoreRun.ReplaceAllString(name, "_")
}

// extOf returns the lower-cased text after the last dot, or "".
func extOf(name string) string {
	name = strings.TrimSpace(name)
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

func stripExt(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name
	}
	return name[:idx]
}
