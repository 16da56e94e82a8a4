package execution

import "strings"

// BuildConfig describes how the compiler driver is invoked. It is supplied by
// the settings panel and treated as immutable for the duration of one build.
type BuildConfig struct {
	// Compiler is the executable name or path, e.g. "g++" or "clang++".
	Compiler string
	// Standard is the language standard, e.g. "c++17". A value starting with
	// "-" is passed through verbatim.
	Standard string
	// Flags are extra arguments placed between the standard flag and the
	// source path.
	Flags []string
}

// DefaultBuildConfig returns the configuration a fresh editor starts with.
func DefaultBuildConfig(lang Language) BuildConfig {
	if lang == LanguageC {
		return BuildConfig{
			Compiler: "gcc",
			Standard: "c11",
			Flags:    []string{"-O2", "-Wall"},
		}
	}
	return BuildConfig{
		Compiler: "g++",
		Standard: "c++17",
		Flags:    []string{"-O2", "-Wall"},
	}
}

// StandardFlag renders the standard selection as a compiler argument.
func (c BuildConfig) StandardFlag() string {
	std := strings.TrimSpace(c.Standard)
	if std == "" {
		return ""
	}
	if strings.HasPrefix(std, "-") {
		return std
	}
	return "-std=" + std
}

// Args builds the full compiler argument vector. The output designator is
// always the final pair so user flags cannot shadow it.
func (c BuildConfig) Args(src MaterializedSource) []string {
	args := make([]string, 0, len(c.Flags)+5)
	args = append(args, c.Compiler)
	if std := c.StandardFlag(); std != "" {
		args = append(args, std)
	}
	args = append(args, c.Flags...)
	args = append(args, src.SourcePath, "-o", src.ArtifactPath)
	return args
}

// WithOverrides returns a copy of c with the non-empty fields of o applied.
func (c BuildConfig) WithOverrides(o BuildConfig) BuildConfig {
	if o.Compiler != "" {
		c.Compiler = o.Compiler
	}
	if o.Standard != "" {
		c.Standard = o.Standard
	}
	if o.Flags != nil {
		c.Flags = append([]string(nil), o.Flags...)
	}
	return c
}

// ParseFlags splits the free-form flags string from the settings panel.
func ParseFlags(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return []string{}
	}
	return fields
}
