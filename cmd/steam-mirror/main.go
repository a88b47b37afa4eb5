package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentuity/steam-mirror/config"
	"github.com/agentuity/steam-mirror/env"
	"github.com/agentuity/steam-mirror/logger"
	"github.com/agentuity/steam-mirror/resilience"
	"github.com/agentuity/steam-mirror/steam"
	"github.com/agentuity/steam-mirror/tui"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "steam-mirror",
		Short:         "Mirror Steam catalog and review data to local storage",
		Version:       steam.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("env-file", ".env", "file with KEY=value settings, overridden by the environment")
	root.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error")
	root.AddCommand(
		newDownloadReviewsCommand(),
		newAppsCommand(),
		newAppCommand(),
		newReviewsCommand(),
		newNameMapCommand(),
		newOwnedCommand(),
		newForgetCommand(),
	)
	return root
}

// session is the state shared by every command: the settings, the open
// storage and the memoized client on top of it.
type session struct {
	cfg     *config.Config
	log     logger.Logger
	storage *config.Storage
	client  *steam.Client
}

func openSession(cmd *cobra.Command) (*session, error) {
	log := env.NewLogger(cmd, cmd.ErrOrStderr())
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	storage, err := cfg.OpenStorage(cmd.Context())
	if err != nil {
		return nil, err
	}
	client, err := steam.New(steam.Config{
		APIKey:     cfg.APIKey,
		MyID:       cfg.MyID,
		StoreURL:   cfg.StoreURL,
		APIURL:     cfg.APIURL,
		HTTPClient: steam.NewHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout),
		Retry: &resilience.RetryConfig{
			MaxAttempts: cfg.RetryAttempts,
			Backoff:     cfg.RetryBackoff,
			Retryable:   resilience.IsTimeout,
			Logger:      log,
		},
		Logger:          log,
		Backends:        storage.Backend,
		HashKeys:        cfg.KeyHash,
		NameCorrections: cfg.NameCorrections,
	})
	if err != nil {
		storage.Close()
		return nil, err
	}
	log.Debug("storing %s entries under %s", cfg.Backend, cfg.CacheDir)
	return &session{cfg: cfg, log: log, storage: storage, client: client}, nil
}

func (s *session) Close() error {
	return s.storage.Close()
}

// withSession opens a session for the duration of fn.
func withSession(fn func(cmd *cobra.Command, args []string, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd, args, s)
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		tui.ShowError(os.Stderr, "%s", err)
		cancel()
		os.Exit(1)
	}
}
