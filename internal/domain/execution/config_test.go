package execution

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestArgsKeepsOutputPairLast(t *testing.T) {
	t.Parallel()

	cfg := BuildConfig{Compiler: "g++", Standard: "c++20", Flags: []string{"-O2", "-o", "elsewhere"}}
	src := MaterializedSource{SourcePath: "/tmp/a.cpp", ArtifactPath: "/tmp/a"}

	got := strings.Join(cfg.Args(src), " ")
	want := "g++ -std=c++20 -O2 -o elsewhere /tmp/a.cpp -o /tmp/a"
	if got != want {
		t.Fatalf("unexpected args\n got: %s\nwant: %s", got, want)
	}
}

func TestStandardFlag(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":           "",
		"  ":         "",
		"c++17":      "-std=c++17",
		"gnu11":      "-std=gnu11",
		"-std=c++2b": "-std=c++2b",
		"-ansi":      "-ansi",
	}
	for in, want := range cases {
		if got := (BuildConfig{Standard: in}).StandardFlag(); got != want {
			t.Fatalf("StandardFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArgsWithoutStandard(t *testing.T) {
	t.Parallel()

	args := BuildConfig{Compiler: "cc"}.Args(MaterializedSource{SourcePath: "m.c", ArtifactPath: "m"})
	if strings.Join(args, " ") != "cc m.c -o m" {
		t.Fatalf("unexpected args %q", args)
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	if got := ParseFlags("  -O2   -Wall\t-g "); strings.Join(got, ",") != "-O2,-Wall,-g" {
		t.Fatalf("unexpected flags %q", got)
	}
	got := ParseFlags("   ")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestWithOverrides(t *testing.T) {
	t.Parallel()

	base := DefaultBuildConfig(LanguageCPP)

	merged := base.WithOverrides(BuildConfig{Standard: "c++20"})
	if merged.Compiler != "g++" || merged.Standard != "c++20" || len(merged.Flags) != 2 {
		t.Fatalf("unexpected merge %+v", merged)
	}

	cleared := base.WithOverrides(BuildConfig{Flags: []string{}})
	if len(cleared.Flags) != 0 {
		t.Fatalf("expected explicit empty flags to clear defaults, got %v", cleared.Flags)
	}

	if base.Standard != "c++17" {
		t.Fatalf("base config mutated: %+v", base)
	}
}

func TestParseLanguage(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "cpp", "C++", " cxx "} {
		if lang, err := ParseLanguage(in); err != nil || lang != LanguageCPP {
			t.Fatalf("ParseLanguage(%q) = %q, %v", in, lang, err)
		}
	}
	if lang, err := ParseLanguage("C"); err != nil || lang != LanguageC {
		t.Fatalf("ParseLanguage(C) = %q, %v", lang, err)
	}
	if _, err := ParseLanguage("fortran"); err == nil {
		t.Fatalf("expected error for unsupported language")
	}
	if LanguageForPath("x/main.C") != LanguageC || LanguageForPath("main.cc") != LanguageCPP {
		t.Fatalf("unexpected language detection")
	}
}

func TestBuildRequestIsBlank(t *testing.T) {
	t.Parallel()

	if !(BuildRequest{Source: " \n\t"}).IsBlank() {
		t.Fatalf("expected whitespace to be blank")
	}
	if (BuildRequest{Source: "x"}).IsBlank() {
		t.Fatalf("expected code not to be blank")
	}
}

func TestMessages(t *testing.T) {
	t.Parallel()

	if got := BuildTimeoutMessage(DefaultBuildTimeout); got != "Compilation exceeded the time limit (30 seconds)" {
		t.Fatalf("unexpected timeout message %q", got)
	}
	if got := BuildTimeoutMessage(1500 * time.Millisecond); got != "Compilation exceeded the time limit (1.5s)" {
		t.Fatalf("unexpected timeout message %q", got)
	}
	if got := CompilerNotFoundMessage("clang++"); got != "Compiler clang++ Not found!" {
		t.Fatalf("unexpected not found message %q", got)
	}
}

func TestLimitsNormalize(t *testing.T) {
	t.Parallel()

	l := Limits{BuildTimeout: -1, RunTimeout: -1}.Normalize()
	if l.BuildTimeout != DefaultBuildTimeout || l.RunTimeout != 0 || l.CommandTimeout != DefaultCommandTimeout {
		t.Fatalf("unexpected normalized limits %+v", l)
	}
}

func TestBuildResultErr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		result BuildResult
		want   error
	}{
		{Failure(FailureSetup, NoCodeMessage), ErrNoCode},
		{Failure(FailureSetup, NoCodeMessage), ErrSetup},
		{Failure(FailureSetup, "disk full"), ErrSetup},
		{Failure(FailureCompilerNotFound, CompilerNotFoundMessage("g++")), ErrCompilerNotFound},
		{Failure(FailureTimeout, BuildTimeoutMessage(time.Second)), ErrTimeout},
		{Failure(FailureCanceled, ""), context.Canceled},
	}

	for _, tc := range cases {
		if err := tc.result.Err(); !errors.Is(err, tc.want) {
			t.Fatalf("%s %q: expected %v, got %v", tc.result.FailureKind, tc.result.Message, tc.want, err)
		}
	}

	if err := Success("", "", nil, 0).Err(); err != nil {
		t.Fatalf("expected nil for success, got %v", err)
	}
	if err := (BuildResult{FailureKind: FailureNonZeroExit, ExitCode: 1}).Err(); err == nil || !strings.Contains(err.Error(), "code 1") {
		t.Fatalf("unexpected non-zero exit error %v", err)
	}
}
