package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"autoapply/internal/board"
	"autoapply/internal/engine"
	"autoapply/internal/formfill"
	"autoapply/internal/generator"
	"autoapply/internal/ledger"
	"autoapply/internal/llm"
	"autoapply/internal/logger"
	"autoapply/internal/matcher"
	"autoapply/internal/profile"
	"autoapply/internal/secrets"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"

	defaultLedgerPath = "autoapply.db"
)

var prompt = promptui.Select{
	Label: "Proceed?",
	Items: []string{PromptYes, PromptNo},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the autoapply main command",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before applying")
	runCmd.Flags().StringP("ledger-path", "l", "", "path to the application ledger database. Default is autoapply.db in current directory.")

	viper.BindPFlag("ledger-path", runCmd.Flags().Lookup("ledger-path"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the autoapply", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil {
		logger.Fatal("config is required")
	}

	if config.Search == nil {
		logger.Fatal("search parameters are required under the search key")
	}

	if config.ProfileFile == "" {
		logger.Fatal("candidate profile is required under profile-file to evaluate and apply to postings")
	}

	candidate, err := profile.Load(config.ProfileFile)
	if err != nil {
		logger.Fatal("loading the candidate profile", zap.Error(err))
	}

	token, err := resolveToken(config)
	if err != nil {
		logger.Fatal(
			"loading platform token",
			zap.Error(err),
			zap.String("hint", "set AUTOAPPLY_TOKEN_FILE environment variable or the 'token-file' key in the configuration file"),
		)
	}

	client := board.New(logger, token)

	if config.UserAgent != "" {
		client.UserAgent = config.UserAgent
	}

	ledgerPath := config.LedgerPath
	if viper.GetString("ledger-path") != "" {
		ledgerPath = viper.GetString("ledger-path")
	}
	if ledgerPath == "" {
		ledgerPath = defaultLedgerPath
	}

	led, err := ledger.Open(ledgerPath)
	if err != nil {
		logger.Fatal("opening the ledger", zap.Error(err))
	}
	defer led.Close()

	eng, err := buildEngine(ctx, config, client, led, candidate, logger)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}

	if cmd.Flag("auto-approve").Value.String() == "false" {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if action == PromptNo {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	logger.Info("starting the search", zap.String("search", config.Search.Text))

	summary, err := eng.Run(ctx, config.Search)
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}

	reportSummary(logger, summary, led)
}

func buildEngine(ctx context.Context, config *Config, client *board.Client, led *ledger.Ledger, candidate *profile.Candidate, logger *zap.Logger) (*engine.Engine, error) {
	if config.LLM == nil {
		return nil, errors.New("llm configuration is required")
	}

	backend, err := newBackend(ctx, config.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("building llm backend: %w", err)
	}

	llmClient := llm.NewClient(backend, config.LLM.MaxAttempts, config.LLM.Timeout, logger.With(
		zap.String("provider", config.LLM.Provider),
		zap.String("model", backend.Model()),
	))

	minScore := config.LLM.MinimumFitScore
	if minScore < 0 {
		minScore = 0
	}

	match := matcher.New(llmClient, minScore, config.LLM.MaxPromptChars, logger.With(
		zap.Float64("minimum_fit_score", minScore),
	))

	apply := config.Apply
	if apply == nil {
		apply = &ApplyConfig{}
	}

	gen := generator.New(llmClient, apply.MaxAnswerChars, apply.MaxCoverLetterChars, logger)
	filler := formfill.New(client, gen, apply.MaxFormPasses, logger)

	engineCfg := engine.Config{SubmitTimeout: apply.SubmitTimeout}
	if config.Pacing != nil {
		engineCfg.PacingDelay = config.Pacing.Delay
		engineCfg.PacingJitter = config.Pacing.Jitter
	}

	return engine.New(engineCfg, engine.Deps{
		Source:    client,
		Opener:    client,
		Ledger:    led,
		Matcher:   match,
		Filler:    filler,
		Candidate: candidate,
		Logger:    logger,
	}), nil
}

func newBackend(ctx context.Context, cfg *LLMConfig, logger *zap.Logger) (llm.Backend, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))

	switch provider {
	case "", "gateway":
		token, err := secrets.Load(secrets.Source{
			Name: "llm gateway token",
			File: cfg.TokenFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set llm.token-file or LLM_TOKEN_FILE)", err)
		}

		return llm.NewGateway(cfg.BaseURL, token, cfg.Model, logger)
	case "gemini":
		if cfg.Gemini == nil {
			return nil, errors.New("gemini configuration is required when the gemini provider is selected")
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name: "gemini api key",
			File: cfg.Gemini.APIKeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set llm.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
		}

		return llm.NewGemini(ctx, apiKey, cfg.Gemini.Model, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

func resolveToken(config *Config) (string, error) {
	if config == nil {
		return "", errors.New("config is required")
	}

	tokenFile := strings.TrimSpace(config.TokenFile)
	if tokenFile == "" {
		tokenFile = strings.TrimSpace(viper.GetString("token-file"))
	}

	if tokenFile == "" {
		return "", errors.New("platform token file is not configured")
	}

	return secrets.Load(secrets.Source{
		Name: "platform token",
		File: tokenFile,
	})
}

func reportSummary(logger *zap.Logger, summary *engine.Summary, led *ledger.Ledger) {
	logger.Info("run finished",
		zap.Int("discovered", summary.Discovered),
		zap.Int("short_circuited", summary.ShortCircuited),
		zap.Int("skipped", summary.Skipped),
		zap.Int("applied", summary.Applied),
		zap.Int("failed", summary.Failed),
		zap.Bool("stopped", summary.Stopped),
	)

	for jobID, reason := range summary.Failures {
		logger.Warn("job failed", zap.String("job_id", jobID), zap.String("reason", reason))
	}

	counts, err := led.Counts(context.Background())
	if err != nil {
		logger.Warn("reading ledger totals", zap.Error(err))
		return
	}

	fields := make([]zap.Field, 0, len(counts))
	for status, n := range counts {
		fields = append(fields, zap.Int(string(status), n))
	}
	logger.Info("ledger totals", fields...)
}
