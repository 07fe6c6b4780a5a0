package cmd

import (
	"log"
	"time"

	"autoapply/internal/board"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "autoapply"
)

type Config struct {
	Search      *board.SearchParams `mapstructure:"search"`
	ProfileFile string              `mapstructure:"profile-file"`
	TokenFile   string              `mapstructure:"token-file"`
	UserAgent   string              `mapstructure:"user-agent"`
	LedgerPath  string              `mapstructure:"ledger-path"`
	Pacing      *PacingConfig       `mapstructure:"pacing"`
	Apply       *ApplyConfig        `mapstructure:"apply"`
	LLM         *LLMConfig          `mapstructure:"llm"`
}

type PacingConfig struct {
	Delay  time.Duration `mapstructure:"delay"`
	Jitter time.Duration `mapstructure:"jitter"`
}

type ApplyConfig struct {
	MaxFormPasses       int           `mapstructure:"max-form-passes"`
	MaxAnswerChars      int           `mapstructure:"max-answer-chars"`
	MaxCoverLetterChars int           `mapstructure:"max-cover-letter-chars"`
	SubmitTimeout       time.Duration `mapstructure:"submit-timeout"`
}

type LLMConfig struct {
	Provider        string        `mapstructure:"provider"`
	Model           string        `mapstructure:"model"`
	BaseURL         string        `mapstructure:"base-url"`
	TokenFile       string        `mapstructure:"token-file"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxAttempts     int           `mapstructure:"max-attempts"`
	MinimumFitScore float64       `mapstructure:"minimum-fit-score"`
	MaxPromptChars  int           `mapstructure:"max-prompt-chars"`
	Gemini          *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "autoapply is a cli for discovering job postings and applying to the ones that fit",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("token-file", "AUTOAPPLY_TOKEN_FILE"); err != nil {
		log.Fatalf("binding AUTOAPPLY_TOKEN_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("llm.token-file", "LLM_TOKEN_FILE"); err != nil {
		log.Fatalf("binding LLM_TOKEN_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("llm.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is autoapply.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for run command now. If there is no config, we can skip initialization
	if runCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
