// Command xmly-dl downloads every item of a paginated audio listing into
// ./result/<listing id>/ and prints the absolute directory.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/xmly-dl/internal/config"
	"github.com/Sternrassler/xmly-dl/pkg/cache"
	"github.com/Sternrassler/xmly-dl/pkg/client"
	"github.com/Sternrassler/xmly-dl/pkg/download"
	"github.com/Sternrassler/xmly-dl/pkg/logging"
	"github.com/Sternrassler/xmly-dl/pkg/metrics"
	"github.com/Sternrassler/xmly-dl/pkg/pagination"
	"github.com/Sternrassler/xmly-dl/pkg/pipeline"
	"github.com/Sternrassler/xmly-dl/pkg/resolve"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	os.Exit(Execute(os.Args[1:], os.Stdout, os.Stderr))
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	logging.Setup(logging.Config{Level: logging.LevelInfo, Output: stderr})

	if args == nil {
		// cobra falls back to os.Args on nil
		args = []string{}
	}

	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("xmly-dl failed")
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:           "xmly-dl [flags] <listing-url>",
		Short:         "Download every item of a paginated audio listing",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, v, config.GetConfigFile(cmd), args[0], stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	config.RegisterFlags(cmd, v)
	return cmd
}

func run(ctx context.Context, v *viper.Viper, configFile, root string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	if err := cfg.ApplyListing(root); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Output = stderr
	logging.Setup(logCfg)
	logger := logging.NewLogger("main")

	siteClient, err := client.New(cfg.ClientConfig())
	if err != nil {
		return fmt.Errorf("create site client: %w", err)
	}

	resolverCfg := resolve.Config{APIBase: cfg.APIBase}
	if cfg.Cache.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Cache.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.Cache.RedisAddr).Dur("ttl", cfg.Cache.TTL).Msg("Resolution cache enabled")
		resolverCfg.Cache = cache.NewManager(redisClient, cfg.Cache.TTL)
	}

	resolver, err := resolve.New(siteClient, resolverCfg)
	if err != nil {
		return fmt.Errorf("create resolver: %w", err)
	}

	orchestrator := pipeline.New(
		pagination.NewLister(pagination.NewHTTPFetcher(siteClient), pagination.DefaultSelectors()),
		resolver,
		download.New(siteClient),
		pipeline.Config{OutputRoot: cfg.Output},
	)

	logger.Info().
		Str("listing", root).
		Str("resolver", resolver.Endpoint()).
		Msg("Starting run")

	result, runErr := orchestrator.Run(ctx, root)

	if cfg.Metrics.File != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.File); err != nil {
			logger.Warn().Err(err).Msg("Failed to write metrics")
		}
	}

	if runErr != nil {
		return runErr
	}

	fmt.Fprintln(stdout, result.Dir)
	return nil
}
