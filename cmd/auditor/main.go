package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	appbaseline "github.com/finz/backend/internal/application/baseline"
	"github.com/finz/backend/internal/infrastructure/config"
	"github.com/finz/backend/internal/infrastructure/logger"
	"github.com/finz/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

// The auditor is the offline repair job for accepted baselines that lack
// their BASELINE_ACCEPTED audit entry. Run it in a maintenance window;
// it assumes no concurrent writers to the baselines it reverts.
func main() {
	var (
		configPath string
		execute    bool
		force      bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config file (TOML)")
	flag.BoolVar(&execute, "execute", false, "Revert findings instead of only reporting them")
	flag.BoolVar(&force, "force", false, "Also revert findings caused by audit read errors")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewForEnvironment(cfg.App.Environment, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	auditor := appbaseline.NewConsistencyAuditor(
		persistence.NewGormBaselineRepository(db.DB),
		persistence.NewGormAuditLogRepository(db.DB),
		log,
	)

	report, err := auditor.Run(context.Background(), appbaseline.AuditorOptions{
		Execute: execute,
		Force:   force,
	})
	if err != nil {
		log.Fatal("Consistency audit failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatal("Failed to encode report", zap.Error(err))
	}
	fmt.Println(string(out))

	if !execute && len(report.Findings) > 0 {
		os.Exit(2)
	}
}
