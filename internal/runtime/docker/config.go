package docker

import "cppide/internal/domain/execution"

// DefaultImage ships gcc and g++.
const DefaultImage = "gcc:13"

// Config describes how to create a Docker-backed toolchain.
type Config struct {
	// Languages maps each language to its compiler image. Empty selects
	// DefaultImage for C and C++.
	Languages map[execution.Language]LanguageConfig
	Limits    execution.Limits
	// NanoCPUs and MemoryBytes bound the compiler container. Zero means no
	// limit.
	NanoCPUs    int64
	MemoryBytes int64
}

// LanguageConfig specifies container settings for a single language.
type LanguageConfig struct {
	Image   string
	Workdir string
}

func (c Config) languages() map[execution.Language]LanguageConfig {
	if len(c.Languages) > 0 {
		return c.Languages
	}
	return map[execution.Language]LanguageConfig{
		execution.LanguageCPP: {Image: DefaultImage},
		execution.LanguageC:   {Image: DefaultImage},
	}
}
