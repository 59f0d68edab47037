package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/daikw/banter/internal/voice/provider"
	"github.com/rs/zerolog/log"
)

const (
	ConfigDirName  = ".banter"
	ConfigFileName = "config.json"

	DefaultCacheSize  = 10
	DefaultBatchSize  = 5
	DefaultBatchPause = 100 * time.Millisecond
)

// Duration is a time.Duration written as "5s" in config files. Plain
// numbers are read as seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var secs float64
		if err := json.Unmarshal(b, &secs); err != nil {
			return fmt.Errorf("invalid duration %s", string(b))
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ConfigFile is the banter configuration file.
type ConfigFile struct {
	DefaultProvider   string          `json:"default_provider,omitempty"`
	Providers         ProvidersConfig `json:"providers"`
	Text              TextConfig      `json:"text"`
	VoiceProfilesPath string          `json:"voice_profiles_path,omitempty"`
	PersonasDir       string          `json:"personas_dir,omitempty"`
	CacheSize         int             `json:"cache_size,omitempty"`
	HTTPTimeout       Duration        `json:"http_timeout,omitempty"`
	Fanout            FanoutConfig    `json:"fanout"`
	Playback          PlaybackConfig  `json:"playback"`
}

// ProvidersConfig holds per-vendor settings. Polly and GCP are only set up
// when their section is present.
type ProvidersConfig struct {
	ElevenLabs ElevenLabsConfig `json:"elevenlabs"`
	Gemini     GeminiConfig     `json:"gemini"`
	Fal        FalConfig        `json:"fal"`
	OpenAI     OpenAIConfig     `json:"openai"`
	Polly      *PollyConfig     `json:"polly,omitempty"`
	GCP        *GCPConfig       `json:"gcp,omitempty"`
}

type ElevenLabsConfig struct {
	APIKey          string  `json:"api_key,omitempty"`
	Model           string  `json:"model,omitempty"`
	Mode            string  `json:"mode,omitempty"`
	BaseURL         string  `json:"base_url,omitempty"`
	Stability       float64 `json:"stability,omitempty"`
	SimilarityBoost float64 `json:"similarity_boost,omitempty"`
}

type GeminiConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
	Voice   string `json:"voice,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

type FalConfig struct {
	APIKey          string   `json:"api_key,omitempty"`
	Model           string   `json:"model,omitempty"`
	Voice           string   `json:"voice,omitempty"`
	BaseURL         string   `json:"base_url,omitempty"`
	PollInterval    Duration `json:"poll_interval,omitempty"`
	MaxPollAttempts int      `json:"max_poll_attempts,omitempty"`
}

type OpenAIConfig struct {
	APIKey  string  `json:"api_key,omitempty"`
	Model   string  `json:"model,omitempty"`
	Voice   string  `json:"voice,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
	BaseURL string  `json:"base_url,omitempty"`
}

type PollyConfig struct {
	Region string `json:"region,omitempty"`
	Voice  string `json:"voice,omitempty"`
	Engine string `json:"engine,omitempty"`
}

type GCPConfig struct {
	CredentialsFile string `json:"credentials_file,omitempty"`
	LanguageCode    string `json:"language_code,omitempty"`
	Voice           string `json:"voice,omitempty"`
}

// TextConfig selects the LLM that writes dialogues.
type TextConfig struct {
	Provider string            `json:"provider,omitempty"`
	Model    string            `json:"model,omitempty"`
	BaseURL  string            `json:"base_url,omitempty"`
	APIKeys  map[string]string `json:"api_keys,omitempty"`
}

type FanoutConfig struct {
	BatchSize  int      `json:"batch_size,omitempty"`
	BatchPause Duration `json:"batch_pause,omitempty"`
}

type PlaybackConfig struct {
	Player string `json:"player,omitempty"`
}

// envKeys lists the environment variables consulted when a key is not set
// in the file.
var envKeys = map[string]string{
	"elevenlabs": "ELEVENLABS_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"fal":        "FAL_KEY",
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"google":     "GEMINI_API_KEY",
	"xai":        "XAI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
}

// ConfigLoader reads the project and global config files.
type ConfigLoader struct {
	projectPath string
	globalPath  string
}

// NewConfigLoader creates a loader for .banter/config.json in the working
// directory and in the home directory.
func NewConfigLoader() *ConfigLoader {
	homeDir, _ := os.UserHomeDir()
	return &ConfigLoader{
		projectPath: filepath.Join(ConfigDirName, ConfigFileName),
		globalPath:  filepath.Join(homeDir, ConfigDirName, ConfigFileName),
	}
}

// LoadConfig reads the global config and overlays the project config on
// it. Missing files are skipped; with neither present the defaults are
// returned. Environment keys are applied last.
func (l *ConfigLoader) LoadConfig(workDir string) (*ConfigFile, error) {
	cfg := &ConfigFile{}
	for _, path := range []string{l.globalPath, filepath.Join(workDir, l.projectPath)} {
		if err := l.overlay(cfg, path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		log.Debug().Str("path", path).Msg("Loaded config")
	}
	cfg.ApplyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFromPath loads a single config file.
func (l *ConfigLoader) LoadFromPath(path string) (*ConfigFile, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}
	cfg := &ConfigFile{}
	if err := l.overlay(cfg, path); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// validateConfigPath checks that the config path is safe to use
func validateConfigPath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("invalid config path: path traversal not allowed")
	}
	if !strings.HasSuffix(filepath.Clean(path), ".json") {
		return fmt.Errorf("invalid config path: must be a .json file")
	}
	return nil
}

// overlay decodes path on top of cfg, so fields absent from the file keep
// their current value.
func (l *ConfigLoader) overlay(cfg *ConfigFile, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	checkFilePermissions(path)
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		log.Debug().Msg("Referenced environment variable not set in config")
		return ""
	})
}

func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		log.Warn().
			Str("permissions", fmt.Sprintf("%04o", mode)).
			Msg("Config file may contain secrets but has permissive permissions. Consider: chmod 600")
	}
}

func envOr(value, name string) string {
	if value != "" {
		return value
	}
	return os.Getenv(envKeys[name])
}

// ApplyEnv fills unset API keys from the environment.
func (c *ConfigFile) ApplyEnv() {
	p := &c.Providers
	p.ElevenLabs.APIKey = envOr(p.ElevenLabs.APIKey, "elevenlabs")
	p.Gemini.APIKey = envOr(p.Gemini.APIKey, "gemini")
	p.Fal.APIKey = envOr(p.Fal.APIKey, "fal")
	p.OpenAI.APIKey = envOr(p.OpenAI.APIKey, "openai")

	if c.Text.APIKeys == nil {
		c.Text.APIKeys = make(map[string]string)
	}
	for _, name := range []string{"openai", "anthropic", "google", "xai", "deepseek"} {
		if key := envOr(c.Text.APIKeys[name], name); key != "" {
			c.Text.APIKeys[name] = key
		}
	}
}

func (c *ConfigFile) applyDefaults() {
	if c.DefaultProvider == "" {
		c.DefaultProvider = provider.ElevenLabsName
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = Duration(provider.DefaultHTTPTimeout)
	}
	if c.Fanout.BatchSize <= 0 {
		c.Fanout.BatchSize = DefaultBatchSize
	}
	if c.Fanout.BatchPause <= 0 {
		c.Fanout.BatchPause = Duration(DefaultBatchPause)
	}
	if c.Text.Provider == "" {
		c.Text.Provider = "openai"
	}
}

// EffectiveProvider returns the provider to use (explicit or default)
func (c *ConfigFile) EffectiveProvider(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if c != nil {
		return c.DefaultProvider
	}
	return ""
}

var knownProviders = []string{
	provider.ElevenLabsName,
	provider.GeminiName,
	provider.FalName,
	provider.OpenAIName,
	provider.PollyName,
	provider.GCPName,
}

// Validate returns human-readable problems with the configuration.
func (c *ConfigFile) Validate() []string {
	var problems []string
	if c == nil {
		return problems
	}

	if c.DefaultProvider != "" && !slices.Contains(knownProviders, c.DefaultProvider) {
		problems = append(problems, fmt.Sprintf("default_provider: unknown provider '%s'", c.DefaultProvider))
	}

	el := c.Providers.ElevenLabs
	if el.Mode != "" && el.Mode != provider.ElevenLabsModeIndividual && el.Mode != provider.ElevenLabsModeDialogue {
		problems = append(problems, fmt.Sprintf("elevenlabs: mode must be '%s' or '%s'", provider.ElevenLabsModeIndividual, provider.ElevenLabsModeDialogue))
	}
	if el.Model != "" && !slices.Contains(provider.ElevenLabsModels, el.Model) {
		problems = append(problems, fmt.Sprintf("elevenlabs: unknown model '%s'", el.Model))
	}
	if el.Stability < 0 || el.Stability > 1 {
		problems = append(problems, "elevenlabs: stability must be between 0.0 and 1.0")
	}
	if el.SimilarityBoost < 0 || el.SimilarityBoost > 1 {
		problems = append(problems, "elevenlabs: similarity_boost must be between 0.0 and 1.0")
	}

	if m := c.Providers.Fal.Model; m != "" {
		if _, ok := provider.LookupFalModel(m); !ok {
			problems = append(problems, fmt.Sprintf("fal: unknown model '%s'", m))
		}
	}
	if c.Providers.Fal.MaxPollAttempts < 0 {
		problems = append(problems, "fal: max_poll_attempts must not be negative")
	}

	if s := c.Providers.OpenAI.Speed; s != 0 && (s < 0.25 || s > 4.0) {
		problems = append(problems, "openai: speed must be between 0.25 and 4.0")
	}

	if p := c.Providers.Polly; p != nil {
		validRegions := []string{"us-east-1", "us-west-2", "eu-west-1", "eu-central-1", "ap-northeast-1", "ap-southeast-1", "ap-southeast-2"}
		if p.Region != "" && !slices.Contains(validRegions, p.Region) {
			problems = append(problems, fmt.Sprintf("polly: region '%s' may not be valid", p.Region))
		}
	}

	if g := c.Providers.GCP; g != nil && g.CredentialsFile != "" {
		if _, err := os.Stat(g.CredentialsFile); err != nil {
			problems = append(problems, fmt.Sprintf("gcp: credentials_file not readable: %s", g.CredentialsFile))
		}
	}

	if c.Fanout.BatchSize < 0 {
		problems = append(problems, "fanout: batch_size must not be negative")
	}
	return problems
}

// MaskSecrets returns a copy safe to print: keys only show their length.
func (c *ConfigFile) MaskSecrets() *ConfigFile {
	if c == nil {
		return nil
	}
	masked := *c
	mask := func(key string) string {
		if key == "" {
			return ""
		}
		return fmt.Sprintf("[set, %d chars]", len(key))
	}
	masked.Providers.ElevenLabs.APIKey = mask(c.Providers.ElevenLabs.APIKey)
	masked.Providers.Gemini.APIKey = mask(c.Providers.Gemini.APIKey)
	masked.Providers.Fal.APIKey = mask(c.Providers.Fal.APIKey)
	masked.Providers.OpenAI.APIKey = mask(c.Providers.OpenAI.APIKey)

	masked.Text.APIKeys = make(map[string]string, len(c.Text.APIKeys))
	for name, key := range c.Text.APIKeys {
		masked.Text.APIKeys[name] = mask(key)
	}
	return &masked
}

// GenerateExampleConfig generates an example configuration
func GenerateExampleConfig() string {
	example := ConfigFile{
		DefaultProvider: provider.ElevenLabsName,
		Providers: ProvidersConfig{
			ElevenLabs: ElevenLabsConfig{
				APIKey:          "${ELEVENLABS_API_KEY}",
				Model:           provider.ElevenLabsDefaultModel,
				Mode:            provider.ElevenLabsModeIndividual,
				Stability:       0.5,
				SimilarityBoost: 0.75,
			},
			Gemini: GeminiConfig{
				APIKey: "${GEMINI_API_KEY}",
				Model:  provider.GeminiFlashModel,
				Voice:  provider.GeminiDefaultVoice,
			},
			Fal: FalConfig{
				APIKey:          "${FAL_KEY}",
				Model:           provider.FalDefaultModel,
				PollInterval:    Duration(provider.FalDefaultPollInterval),
				MaxPollAttempts: provider.FalDefaultMaxPollAttempts,
			},
			OpenAI: OpenAIConfig{
				APIKey: "${OPENAI_API_KEY}",
				Model:  provider.OpenAIDefaultModel,
				Voice:  provider.OpenAIDefaultVoice,
			},
			Polly: &PollyConfig{Region: "us-east-1", Voice: "Joanna", Engine: "neural"},
		},
		Text: TextConfig{
			Provider: "openai",
			Model:    "gpt-4.1-nano",
			APIKeys:  map[string]string{"openai": "${OPENAI_API_KEY}"},
		},
		CacheSize:   DefaultCacheSize,
		HTTPTimeout: Duration(provider.DefaultHTTPTimeout),
		Fanout:      FanoutConfig{BatchSize: DefaultBatchSize, BatchPause: Duration(DefaultBatchPause)},
	}

	data, _ := json.MarshalIndent(example, "", "  ")
	return string(data)
}
