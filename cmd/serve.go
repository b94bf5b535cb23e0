package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scanhub-io/coordinator/internal/auth"
	"github.com/scanhub-io/coordinator/internal/config"
	"github.com/scanhub-io/coordinator/internal/database"
	"github.com/scanhub-io/coordinator/internal/gateway"
	"github.com/scanhub-io/coordinator/internal/reporter"
	"github.com/scanhub-io/coordinator/internal/rules"
	"github.com/scanhub-io/coordinator/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coordinator HTTP daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down coordinator gracefully...")
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	st := store.New(db)

	rulesProvider := rules.NewProvider()
	rulesClient := rules.NewClient(cfg.Rules.RepoURL, cfg.Rules.RepoToken)
	rulesRefresher := rules.NewRefresher(rulesProvider, rulesClient, st)
	if err := rulesRefresher.Start(ctx, refreshCronSpec(cfg.Rules.RefreshInterval)); err != nil {
		return fmt.Errorf("starting ruleset refresher: %w", err)
	}
	defer rulesRefresher.Stop()

	reporterClient := reporter.New(reporter.Config{URL: cfg.Reporter.URL})

	verifier := auth.NewVerifier(
		auth.Config{Domain: cfg.Auth.Domain, Audience: cfg.Auth.Audience},
		auth.NewJWKSKeyfunc(cfg.Auth.Domain+"/.well-known/jwks.json").Keyfunc(),
	)

	srv := gateway.New(gateway.Config{
		Store:          st,
		Reporter:       reporterClient,
		RulesProvider:  rulesProvider,
		RulesRefresher: rulesRefresher,
		JobTimeout:     cfg.Dispatch.JobTimeout,
		Port:           cfg.HTTP.Port,
	})

	fmt.Printf("coordinator starting\n")
	fmt.Printf("  API        : http://0.0.0.0:%d\n", cfg.HTTP.Port)
	fmt.Printf("  Database   : %s\n", cfg.Database.Driver)
	fmt.Printf("  JobTimeout : %s\n\n", cfg.Dispatch.JobTimeout)
	fmt.Println("Press Ctrl+C to stop gracefully.")

	return srv.Start(ctx, verifier)
}

// refreshCronSpec builds a robfig/cron "@every" spec from a configured
// interval.
func refreshCronSpec(interval time.Duration) string {
	return "@every " + interval.String()
}
