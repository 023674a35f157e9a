// Responsible for storing the reports broadcast by adm300_api.
// Depends on the ADM-300 API being online.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/aggregator"
	"github.com/NotCoffee418/adm300_monitor/pkg/config"
	"github.com/NotCoffee418/adm300_monitor/pkg/listener"
	"github.com/NotCoffee418/adm300_monitor/pkg/logging"
	"github.com/NotCoffee418/adm300_monitor/pkg/pathing"
	"github.com/NotCoffee418/adm300_monitor/pkg/readingdb"
	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := config.LoadDoseCollectorConfig(); err != nil {
		logrus.Fatalf("Failed to load dose collector config: %v", err)
	}
	cfg := config.ActiveDoseCollectorConfig
	log := logging.New(cfg.Log)

	dbPath := cfg.DatabasePath
	if dbPath == "" {
		if err := pathing.EnsureDirs(); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		dbPath = pathing.GetReadingDbPath()
	}

	// Initialize database
	db, err := readingdb.Initialize(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize reading database: %v", err)
	}
	defer db.Close()
	log.Infof("Storing readings in %s", dbPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	go aggregateHourly(ctx, db, retention, log)

	// Blocks until interrupted or the API stays unreachable
	err = listener.Listen(ctx, cfg.MonitorAPIHost, listener.Options{TLS: cfg.TLSEnabled},
		func(report sentence.ParsedReport) {
			if err := readingdb.StoreReport(db, report, time.Now().UTC()); err != nil {
				log.Errorf("Failed to store report %d: %v", report.SeqNo, err)
			}
		}, log)
	if err != nil {
		log.Errorf("Listener stopped: %v", err)
	}
}

// aggregateHourly runs aggregation shortly after every full hour.
func aggregateHourly(ctx context.Context, db *sql.DB, retention time.Duration, log *logrus.Logger) {
	for {
		now := time.Now().UTC()
		next := aggregator.TimeframeHourly.Start(now).Add(time.Hour + time.Minute)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
		}
		if err := aggregator.AggregateAndCleanup(db, time.Now().UTC(), retention, log); err != nil {
			log.Errorf("Aggregation failed: %v", err)
		}
	}
}
