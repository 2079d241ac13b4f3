package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quizwire/trivia-backend/internal/config"
	"github.com/quizwire/trivia-backend/internal/engine"
	"github.com/quizwire/trivia-backend/internal/httpapi"
	"github.com/quizwire/trivia-backend/internal/hub"
	"github.com/quizwire/trivia-backend/internal/question"
)

func main() {
	cfg := &config.Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}

func newCmd(cfg *config.Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults := engine.DefaultRules()

	cmd := &cobra.Command{
		Use:           "quizwire",
		Short:         "A real-time multiplayer trivia server.",
		Args:          cobra.ExactArgs(0),
		Version:       httpapi.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZWIRE_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: QUIZWIRE_PORT)")
	fs.StringVar(&cfg.Questions, "questions", "", "path to a JSON question set; empty uses the built-in sample (env: QUIZWIRE_QUESTIONS)")
	fs.IntVar(&cfg.BasePoints, "base-points", defaults.BasePoints, "points for any correct answer (env: QUIZWIRE_BASE_POINTS)")
	fs.IntVar(&cfg.MaxSpeedBonus, "speed-bonus", defaults.MaxSpeedBonus, "maximum speed bonus, decaying to zero at the deadline (env: QUIZWIRE_SPEED_BONUS)")
	fs.IntVar(&cfg.FirstCorrectBonus, "first-bonus", defaults.FirstCorrectBonus, "bonus for the first accepted correct answer (env: QUIZWIRE_FIRST_BONUS)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "enable debug logging (env: QUIZWIRE_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetVersionTemplate("quizwire v{{.Version}}\n")

	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// An invalid question set is fatal before the first connection is
	// accepted, never a runtime error.
	qs, err := loadQuestions(cfg.Questions)
	if err != nil {
		return err
	}
	logger.Info("question set loaded", zap.Int("questions", len(qs)))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, qs, cfg.Rules(), logger)
	defer func() { h.Inbox() <- hub.ShutdownHub{} }()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.SetupRoutes(h, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadQuestions(path string) ([]question.Question, error) {
	if path == "" {
		return question.Sample()
	}
	return question.LoadFile(path)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
