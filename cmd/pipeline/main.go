// Package main provides the pipeline command line: one-shot cycles for cron,
// backfills, NetCDF grid imports and service token minting.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/app"
	"github.com/Althuwaynee/iraqairquality/internal/auth"
	"github.com/Althuwaynee/iraqairquality/internal/config"
	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/grid"
	"github.com/Althuwaynee/iraqairquality/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const usage = `usage: pipeline <command> [flags]

commands:
  run             ingest, build, publish and alert once
  backfill        re-ingest the last -hours of grid data
  alerts          dispatch alerts from the published artifact
  health          check that the published artifact is recent
  ingest-netcdf   load a NetCDF dust file into the grid store
  token           mint a service token for the bot
`

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "iraq-dust-pipeline").
		Str("version", Version).
		Logger()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "run", "alerts", "health":
		err = runJob(ctx, cfg, log, worker.JobMessage{JobType: jobType(cmd)})
	case "backfill":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		hours := fs.Int("hours", worker.DefaultBackfillHours, "hours of history to re-ingest")
		_ = fs.Parse(args)
		err = runJob(ctx, cfg, log, worker.JobMessage{JobType: worker.JobBackfill, Hours: *hours})
	case "ingest-netcdf":
		err = ingestNetCDF(ctx, cfg, log, args)
	case "token":
		err = mintToken(cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		stop()
		log.Fatal().Err(err).Str("command", cmd).Msg("command failed")
	}
}

func jobType(cmd string) string {
	switch cmd {
	case "alerts":
		return worker.JobAlerts
	case "health":
		return worker.JobHealthCheck
	default:
		return worker.JobPipelineCycle
	}
}

func runJob(ctx context.Context, cfg *config.Config, log zerolog.Logger, msg worker.JobMessage) error {
	pipeline, err := app.NewPipeline(ctx, cfg, app.Options{Logger: log})
	if err != nil {
		return err
	}
	defer pipeline.Close()

	return pipeline.Jobs.Run(ctx, msg)
}

func ingestNetCDF(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("ingest-netcdf", flag.ExitOnError)
	file := fs.String("file", "", "NetCDF file to import (required)")
	variable := fs.String("variable", "", "dust variable name, probed when empty")
	_ = fs.Parse(args)
	if *file == "" {
		return errors.New("-file is required")
	}

	frames, err := grid.ReadNetCDF(*file, grid.NetCDFOptions{
		Variable: *variable,
		BBox:     district.IraqBBox,
		FileTime: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	stores, err := app.OpenStores(ctx, cfg.Pipeline, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	total := 0
	for _, f := range frames {
		n, err := stores.Grid.Store(ctx, f, *file)
		if err != nil {
			return fmt.Errorf("storing frame %s: %w", f.Time.Format(time.RFC3339), err)
		}
		total += n
	}

	log.Info().
		Str("file", *file).
		Int("frames", len(frames)).
		Int("cells", total).
		Msg("netcdf imported")
	return nil
}

func mintToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "telegram-bot", "client id the token is issued to")
	scopes := fs.String("scopes", auth.ScopeSubscribersRead+","+auth.ScopeSubscribersWrite, "comma separated scopes")
	ttl := fs.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	_ = fs.Parse(args)

	if cfg.Auth.JWTSigningKey == "" {
		return errors.New("JWT_SIGNING_KEY is required to mint tokens")
	}

	tokens := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.Auth.JWTSigningKey,
		Issuer:     cfg.Auth.JWTIssuer,
	})
	token, expiresAt, err := tokens.Issue(*subject, strings.Split(*scopes, ","), *ttl)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println(token)
	return nil
}
