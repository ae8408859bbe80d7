package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/console"
	"github.com/clinic/clinic/internal/domain/clinic"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/logging"
	"github.com/clinic/clinic/internal/platform/middleware"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinic",
		Short: "Patient and medical record manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenu(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "menu",
		Short: "Start the interactive console menu",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenu(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	})
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(pingCmd())
	return cmd
}

// app is what every subcommand needs once config is loaded.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	provider db.Provider
}

// bootstrap loads config, builds the logger and opens the store. Logs go to
// stderr so they never interleave with menu output.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, os.Stderr)

	provider, err := db.Open(ctx, db.Options{
		URL:      cfg.DatabaseURL,
		Mode:     cfg.DBPoolMode,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}, logger)
	if err != nil {
		logger.Error().Err(err).Str("mode", cfg.DBPoolMode).Msg("failed to connect to database")
		return nil, err
	}
	logger.Debug().Str("mode", cfg.DBPoolMode).Msg("connected to database")
	return &app{cfg: cfg, logger: logger, provider: provider}, nil
}

func services(a *app) (*clinic.PatientService, *clinic.MedicalRecordService) {
	patients := clinic.NewPatientRepo(a.provider)
	records := clinic.NewMedicalRecordRepo(a.provider)
	recordSvc := clinic.NewMedicalRecordService(records, patients)
	return clinic.NewPatientService(a.provider, patients, records, recordSvc, a.logger), recordSvc
}

func runMenu(ctx context.Context, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.provider.Close()

	patientSvc, recordSvc := services(a)
	return console.NewMenu(in, out, patientSvc, recordSvc, a.logger).Run(ctx)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// newServer wires middleware, the health check and the clinic routes.
func newServer(cfg *config.Config, provider db.Provider, h *clinic.Handler, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", db.HealthHandler(provider))
	h.RegisterRoutes(e.Group("/api/v1"))
	return e
}

func runServer() error {
	ctx := context.Background()
	env, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer env.provider.Close()
	logger := env.logger

	patientSvc, recordSvc := services(env)
	e := newServer(env.cfg, env.provider, clinic.NewHandler(patientSvc, recordSvc), logger)

	// Graceful shutdown
	go func() {
		addr := ":" + env.cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			env, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer env.provider.Close()

			migrator := db.NewMigrator(env.provider, migrationsDir(cmd, env.cfg))
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			env, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer env.provider.Close()

			migrator := db.NewMigrator(env.provider, migrationsDir(cmd, env.cfg))
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationsDir(cmd *cobra.Command, cfg *config.Config) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	return cfg.MigrationsDir
}

func printStatus(out io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the database is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			env, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer env.provider.Close()

			if err := env.provider.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database reachable (%s mode)\n", env.cfg.DBPoolMode)
			return nil
		},
	}
}
