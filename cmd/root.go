package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/tener-recruiter/internal/scheduler"
)

const (
	app = "tener"
)

type Config struct {
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Provider    ProviderConfig   `mapstructure:"provider"`
	Interview   InterviewConfig  `mapstructure:"interview"`
	Policy      PolicyConfig     `mapstructure:"policy"`
	AI          *AIConfig        `mapstructure:"ai"`
	Schedule    scheduler.Config `mapstructure:"schedule"`
	RateLimit   RateLimitConfig  `mapstructure:"ratelimit"`
	ExcludeFile string           `mapstructure:"exclude-file"`
	// TemplatesFile overrides the built-in message templates.
	TemplatesFile string `mapstructure:"templates-file"`
}

// DatabaseConfig selects Postgres. State is kept in memory without a URL.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL           string `mapstructure:"url"`
	EventsChannel string `mapstructure:"events-channel"`
	Prefix        string `mapstructure:"prefix"`
}

type ProviderConfig struct {
	Kind       string        `mapstructure:"kind" validate:"required,oneof=unipile mock manual"`
	BaseURL    string        `mapstructure:"base-url" validate:"omitempty,url"`
	AccountID  string        `mapstructure:"account-id"`
	APIKeyFile string        `mapstructure:"api-key-file"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// Dataset is the profiles file of the mock provider.
	Dataset string `mapstructure:"dataset"`
}

type InterviewConfig struct {
	BaseURL        string          `mapstructure:"base-url" validate:"omitempty,url"`
	TokenFile      string          `mapstructure:"token-file"`
	Timeout        time.Duration   `mapstructure:"timeout"`
	TTLHours       int             `mapstructure:"ttl-hours" validate:"gte=0"`
	MaxFollowups   int             `mapstructure:"max-followups" validate:"gte=0"`
	FollowupDelays []time.Duration `mapstructure:"followup-delays"`
}

type PolicyConfig struct {
	ContactAll    bool             `mapstructure:"contact-all"`
	RequireResume bool             `mapstructure:"require-resume"`
	ForcedTest    ForcedTestConfig `mapstructure:"forced-test"`
	ForcedScore   float64          `mapstructure:"forced-score" validate:"gte=0,lte=100"`
	SearchLimit   int              `mapstructure:"search-limit" validate:"gte=0"`
	// MinYears feeds the rule verifier.
	MinYears    float64         `mapstructure:"min-years" validate:"gte=0"`
	PreResume   PreResumeConfig `mapstructure:"pre-resume"`
	SkipFilters []string        `mapstructure:"skip-filters" validate:"dive,oneof=forced_test exclude_file"`
}

type ForcedTestConfig struct {
	JobIDs      []int64  `mapstructure:"job-ids"`
	Identifiers []string `mapstructure:"identifiers"`
}

type PreResumeConfig struct {
	MaxFollowups   int             `mapstructure:"max-followups" validate:"gte=0"`
	FollowupDelays []time.Duration `mapstructure:"followup-delays"`
}

type AIConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Provider        string        `mapstructure:"provider" validate:"omitempty,oneof=gemini"`
	MinimumFitScore float64       `mapstructure:"minimum-fit-score" validate:"gte=0,lte=1"`
	Gemini          *GeminiConfig `mapstructure:"gemini" validate:"required_if=Enabled true"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type RateLimitConfig struct {
	SendsPerHour int `mapstructure:"sends-per-hour" validate:"gte=0"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "tener sources candidates, talks to them and keeps their interview progress in sync",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

var envBindings = map[string]string{
	"database.url":           "TENER_DATABASE_URL",
	"redis.url":              "TENER_REDIS_URL",
	"provider.account-id":    "UNIPILE_ACCOUNT_ID",
	"provider.api-key-file":  "UNIPILE_API_KEY_FILE",
	"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
	"interview.base-url":     "INTERVIEW_API_BASE",
}

func init() {
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("redis.events-channel", "tener.events")
	viper.SetDefault("redis.prefix", app)
	schedule := scheduler.DefaultConfig()
	viper.SetDefault("schedule.connections", schedule.Connections)
	viper.SetDefault("schedule.inbound", schedule.Inbound)
	viper.SetDefault("schedule.pre-resume", schedule.PreResume)
	viper.SetDefault("schedule.interview", schedule.Interview)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is tener.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Only version works without a config.
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// Without an explicit file the environment alone may be enough.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

var validate = validator.New()

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}
