package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"cppide/internal/domain/execution"
	"cppide/internal/runtime/docker"
)

const (
	backendLocal  = "local"
	backendDocker = "docker"

	defaultKafkaBrokers       = "kafka:9092"
	defaultKafkaRequestsTopic = "build-requests"
	defaultKafkaResultsTopic  = "build-results"
	defaultKafkaGroupID       = "cppide-worker"
	defaultLogLevel           = "info"
)

// Settings is the merged configuration: defaults, then the settings file,
// then the environment, then command line flags.
type Settings struct {
	Backend  string `toml:"backend" yaml:"backend"`
	Language string `toml:"language" yaml:"language"`
	Compiler string `toml:"compiler" yaml:"compiler"`
	Standard string `toml:"standard" yaml:"standard"`
	// Flags is the whitespace separated flag string of the settings panel.
	// Empty keeps the language defaults.
	Flags    string `toml:"flags" yaml:"flags"`
	TempDir  string `toml:"temp_dir" yaml:"temp_dir"`
	WorkDir  string `toml:"work_dir" yaml:"work_dir"`
	LogLevel string `toml:"log_level" yaml:"log_level"`

	Timeouts TimeoutSettings `toml:"timeouts" yaml:"timeouts"`
	Docker   DockerSettings  `toml:"docker" yaml:"docker"`
	Kafka    KafkaSettings   `toml:"kafka" yaml:"kafka"`
	Worker   WorkerSettings  `toml:"worker" yaml:"worker"`
}

// TimeoutSettings holds durations in time.ParseDuration syntax.
type TimeoutSettings struct {
	Build   string `toml:"build" yaml:"build"`
	Run     string `toml:"run" yaml:"run"`
	Command string `toml:"command" yaml:"command"`
}

type DockerSettings struct {
	Image       string `toml:"image" yaml:"image"`
	MemoryBytes int64  `toml:"memory_bytes" yaml:"memory_bytes"`
	NanoCPUs    int64  `toml:"nano_cpus" yaml:"nano_cpus"`
}

type KafkaSettings struct {
	Brokers       []string `toml:"brokers" yaml:"brokers"`
	RequestsTopic string   `toml:"requests_topic" yaml:"requests_topic"`
	ResultsTopic  string   `toml:"results_topic" yaml:"results_topic"`
	GroupID       string   `toml:"group_id" yaml:"group_id"`

	// PublishReports sends the reports of interactive sessions to
	// ResultsTopic as well.
	PublishReports bool `toml:"publish_reports" yaml:"publish_reports"`
}

type WorkerSettings struct {
	MaxRequests int `toml:"max_requests" yaml:"max_requests"`
	MaxParallel int `toml:"max_parallel" yaml:"max_parallel"`
}

func defaultSettings() Settings {
	return Settings{
		Backend:  backendLocal,
		LogLevel: defaultLogLevel,
		Kafka: KafkaSettings{
			RequestsTopic: defaultKafkaRequestsTopic,
			ResultsTopic:  defaultKafkaResultsTopic,
			GroupID:       defaultKafkaGroupID,
		},
		Worker: WorkerSettings{MaxParallel: 1},
	}
}

// loadSettings reads path (TOML or YAML, chosen by extension) over the
// defaults and applies environment overrides. An empty path skips the file.
func loadSettings(path string) (Settings, error) {
	s := defaultSettings()
	if path != "" {
		if err := s.readFile(path); err != nil {
			return Settings{}, err
		}
	}
	s.applyEnv()
	return s, nil
}

func (s *Settings) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, s)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, s)
	default:
		return fmt.Errorf("settings file %s: unsupported format", path)
	}
	if err != nil {
		return fmt.Errorf("parse settings %s: %w", path, err)
	}
	return nil
}

func (s *Settings) applyEnv() {
	s.Backend = envOrDefault("CPPIDE_BACKEND", s.Backend)
	s.Language = envOrDefault("CPPIDE_LANGUAGE", s.Language)
	s.Compiler = envOrDefault("CPPIDE_COMPILER", s.Compiler)
	s.Standard = envOrDefault("CPPIDE_STD", s.Standard)
	s.Flags = envOrDefault("CPPIDE_FLAGS", s.Flags)
	s.TempDir = envOrDefault("CPPIDE_TEMP_DIR", s.TempDir)
	s.WorkDir = envOrDefault("CPPIDE_WORK_DIR", s.WorkDir)
	s.LogLevel = envOrDefault("CPPIDE_LOG_LEVEL", s.LogLevel)

	s.Timeouts.Build = envOrDefault("CPPIDE_BUILD_TIMEOUT", s.Timeouts.Build)
	s.Timeouts.Run = envOrDefault("CPPIDE_RUN_TIMEOUT", s.Timeouts.Run)
	s.Timeouts.Command = envOrDefault("CPPIDE_COMMAND_TIMEOUT", s.Timeouts.Command)

	s.Docker.Image = envOrDefault("CPPIDE_DOCKER_IMAGE", s.Docker.Image)
	if raw := os.Getenv("CPPIDE_DOCKER_MEMORY"); raw != "" {
		s.Docker.MemoryBytes = parseBytes(raw)
	}

	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		s.Kafka.Brokers = parseBrokerList(raw)
	}
	s.Kafka.RequestsTopic = envOrDefault("KAFKA_TOPIC", s.Kafka.RequestsTopic)
	s.Kafka.ResultsTopic = envOrDefault("KAFKA_RESULTS_TOPIC", s.Kafka.ResultsTopic)
	s.Kafka.GroupID = envOrDefault("KAFKA_GROUP_ID", s.Kafka.GroupID)

	if raw := os.Getenv("REQUESTS_EXPECTED"); raw != "" {
		s.Worker.MaxRequests = parseMaxRequests(raw)
	}
	if raw := os.Getenv("RUNNER_MAX_PARALLEL"); raw != "" {
		s.Worker.MaxParallel = parseMaxParallel(raw)
	}
}

func (s Settings) language() (execution.Language, error) {
	return execution.ParseLanguage(s.Language)
}

// languageFor pins the configured language or falls back to the file
// extension of path.
func (s Settings) languageFor(path string) (execution.Language, error) {
	if strings.TrimSpace(s.Language) == "" && path != "" {
		return execution.LanguageForPath(path), nil
	}
	return s.language()
}

// overrides returns the compiler fields the user set explicitly.
func (s Settings) overrides() execution.BuildConfig {
	cfg := execution.BuildConfig{
		Compiler: strings.TrimSpace(s.Compiler),
		Standard: strings.TrimSpace(s.Standard),
	}
	if s.Flags != "" {
		cfg.Flags = execution.ParseFlags(s.Flags)
	}
	return cfg
}

func (s Settings) hasOverrides() bool {
	o := s.overrides()
	return o.Compiler != "" || o.Standard != "" || o.Flags != nil
}

func (s Settings) buildConfig(lang execution.Language) execution.BuildConfig {
	return execution.DefaultBuildConfig(lang).WithOverrides(s.overrides())
}

func (s Settings) limits() execution.Limits {
	return execution.Limits{
		BuildTimeout:   parseDuration(s.Timeouts.Build, 0),
		RunTimeout:     parseDuration(s.Timeouts.Run, 0),
		CommandTimeout: parseDuration(s.Timeouts.Command, 0),
	}
}

func (s Settings) dockerConfig() docker.Config {
	cfg := docker.Config{
		Limits:      s.limits(),
		NanoCPUs:    s.Docker.NanoCPUs,
		MemoryBytes: s.Docker.MemoryBytes,
	}
	if s.Docker.Image != "" {
		cfg.Languages = map[execution.Language]docker.LanguageConfig{
			execution.LanguageCPP: {Image: s.Docker.Image},
			execution.LanguageC:   {Image: s.Docker.Image},
		}
	}
	return cfg
}

func (s Settings) brokers() []string {
	if len(s.Kafka.Brokers) > 0 {
		return s.Kafka.Brokers
	}
	return parseBrokerList(defaultKafkaBrokers)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseBrokerList(raw string) []string {
	fields := strings.Split(raw, ",")
	brokers := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

func parseMaxRequests(raw string) int {
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	if value < 0 {
		return 0
	}
	return value
}

func parseMaxParallel(raw string) int {
	if raw == "" {
		return 1
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 1
	}
	return value
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func parseBytes(raw string) int64 {
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
