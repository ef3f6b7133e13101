package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"

	TextProviderOpenAI = "openai"
	TextProviderGemini = "gemini"
	TextProviderStatic = "static"

	ImageProviderFal       = "fal"
	ImageProviderSynthetic = "synthetic"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	StoreDriver string
	DBMaxConns  int32

	TextProvider  string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAIOrg     string
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	ImageProvider  string
	FalKey         string
	FalBaseURL     string
	FalModel       string
	SyntheticDelay time.Duration
	StorageBaseURL string

	Personas     []string
	PersonasFile string

	EnhanceMaxAttempts     int
	PersonaMaxAttempts     int
	RetryBaseDelay         time.Duration
	EnhanceMaxOutputTokens int
	PersonaMaxOutputTokens int
	MaxParallelBranches    int
	MaxRejectCycles        int
	SuspendTTL             time.Duration
	RunLease               time.Duration
	ClarifyOnQuestions     bool
	DefaultAspectRatioHint string
	PipelineAsync          bool

	WorkerPollInterval  time.Duration
	ExpirySweepSchedule string
	ArchivePath         string

	GeoIPDBPath        string
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int

	textProviderPinned  bool
	imageProviderPinned bool
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getEnvInt("DB_MAX_CONNS", 10)),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-5-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:     os.Getenv("OPENAI_ORG"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL: os.Getenv("GEMINI_BASE_URL"),

		FalKey:         os.Getenv("FAL_KEY"),
		FalBaseURL:     getEnv("FAL_BASE_URL", "https://fal.run"),
		FalModel:       getEnv("FAL_MODEL", "fal-ai/nano-banana-pro"),
		SyntheticDelay: getEnvDuration("SYNTHETIC_IMAGE_DELAY", 1500*time.Millisecond),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),

		Personas:     getEnvList("PERSONAS", nil),
		PersonasFile: os.Getenv("PERSONAS_FILE"),

		EnhanceMaxAttempts:     getEnvInt("ENHANCE_MAX_ATTEMPTS", 3),
		PersonaMaxAttempts:     getEnvInt("PERSONA_MAX_ATTEMPTS", 2),
		RetryBaseDelay:         time.Millisecond * time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 1000)),
		EnhanceMaxOutputTokens: getEnvInt("ENHANCE_MAX_OUTPUT_TOKENS", 4000),
		PersonaMaxOutputTokens: getEnvInt("PERSONA_MAX_OUTPUT_TOKENS", 3000),
		MaxParallelBranches:    getEnvInt("MAX_PARALLEL_BRANCHES", 0),
		MaxRejectCycles:        getEnvInt("MAX_REJECT_CYCLES", 0),
		SuspendTTL:             getEnvDuration("SUSPEND_TTL", 0),
		RunLease:               getEnvDuration("RUN_LEASE", 30*time.Minute),
		ClarifyOnQuestions:     getEnvBool("CLARIFY_ON_QUESTIONS", false),
		DefaultAspectRatioHint: os.Getenv("DEFAULT_ASPECT_RATIO_HINT"),
		PipelineAsync:          getEnvBool("PIPELINE_ASYNC", false),

		WorkerPollInterval:  getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		ExpirySweepSchedule: getEnv("EXPIRY_SWEEP_SCHEDULE", "@every 5m"),
		ArchivePath:         os.Getenv("ARCHIVE_PATH"),

		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", ""))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverMemory
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = StoreDriverPostgres
		}
	}

	cfg.TextProvider = strings.ToLower(getEnv("TEXTGEN_PROVIDER", ""))
	cfg.textProviderPinned = cfg.TextProvider != ""
	cfg.ImageProvider = strings.ToLower(getEnv("IMAGE_PROVIDER", ""))
	cfg.imageProviderPinned = cfg.ImageProvider != ""
	cfg.selectProviders()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// selectProviders picks backends from the available keys unless the
// environment pinned them.
func (c *Config) selectProviders() {
	if !c.textProviderPinned {
		switch {
		case c.OpenAIAPIKey != "":
			c.TextProvider = TextProviderOpenAI
		case c.GeminiAPIKey != "":
			c.TextProvider = TextProviderGemini
		default:
			c.TextProvider = TextProviderStatic
		}
	}
	if !c.imageProviderPinned {
		c.ImageProvider = ImageProviderSynthetic
		if c.FalKey != "" {
			c.ImageProvider = ImageProviderFal
		}
	}
}

// ApplyStoredKeys fills provider keys the environment left empty, keyed by
// provider name, then re-selects unpinned providers. It reports whether any
// key was taken from keys.
func (c *Config) ApplyStoredKeys(keys map[string]string) (bool, error) {
	applied := false
	fill := func(dst *string, provider string) {
		if *dst == "" && strings.TrimSpace(keys[provider]) != "" {
			*dst = strings.TrimSpace(keys[provider])
			applied = true
		}
	}
	fill(&c.OpenAIAPIKey, TextProviderOpenAI)
	fill(&c.GeminiAPIKey, TextProviderGemini)
	fill(&c.FalKey, ImageProviderFal)
	if !applied {
		return false, nil
	}
	c.selectProviders()
	return true, c.validate()
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.TextProvider {
	case TextProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when TEXTGEN_PROVIDER=%s", TextProviderOpenAI)
		}
	case TextProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when TEXTGEN_PROVIDER=%s", TextProviderGemini)
		}
	case TextProviderStatic:
	default:
		return fmt.Errorf("unsupported TEXTGEN_PROVIDER %q", c.TextProvider)
	}

	switch c.ImageProvider {
	case ImageProviderFal:
		if c.FalKey == "" {
			return fmt.Errorf("FAL_KEY is required when IMAGE_PROVIDER=%s", ImageProviderFal)
		}
	case ImageProviderSynthetic:
	default:
		return fmt.Errorf("unsupported IMAGE_PROVIDER %q", c.ImageProvider)
	}

	if c.EnhanceMaxAttempts < 1 || c.PersonaMaxAttempts < 1 {
		return fmt.Errorf("ENHANCE_MAX_ATTEMPTS and PERSONA_MAX_ATTEMPTS must be at least 1")
	}
	if c.MaxRejectCycles < 0 || c.MaxParallelBranches < 0 {
		return fmt.Errorf("MAX_REJECT_CYCLES and MAX_PARALLEL_BRANCHES must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "2h") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
