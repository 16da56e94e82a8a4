package execution

import (
	"fmt"
	"strings"
)

// Language identifies the source language of a buffer.
type Language string

const (
	LanguageC   Language = "c"
	LanguageCPP Language = "cpp"
)

// ParseLanguage maps user input to a Language. Empty input selects C++.
func ParseLanguage(raw string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "cpp", "c++", "cxx", "cc":
		return LanguageCPP, nil
	case "c":
		return LanguageC, nil
	default:
		return "", fmt.Errorf("unsupported language %q", raw)
	}
}

// LanguageForPath guesses the language from a file extension.
func LanguageForPath(path string) Language {
	if strings.HasSuffix(strings.ToLower(path), ".c") {
		return LanguageC
	}
	return LanguageCPP
}

// SourceSuffix is the file suffix compilers expect for the language.
func (l Language) SourceSuffix() string {
	if l == LanguageC {
		return ".c"
	}
	return ".cpp"
}

// BuildRequest is one compile invocation. It is never mutated after creation.
type BuildRequest struct {
	ID       string
	Language Language
	Source   string
	// Config overrides the receiver's default configuration when set.
	Config *BuildConfig
	// Stdin lines are fed to the program by headless runs.
	Stdin []string
}

// IsBlank reports whether the request has no code to compile.
func (r BuildRequest) IsBlank() bool {
	return strings.TrimSpace(r.Source) == ""
}

// MaterializedSource is a source buffer persisted for the compiler together
// with the path the compiled artifact will be written to.
type MaterializedSource struct {
	SourcePath   string
	ArtifactPath string
}
