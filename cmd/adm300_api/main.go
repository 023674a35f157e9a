// ADM-300 API owns the serial port of the meter and serves its reports over
// HTTP, websocket and optionally redis.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/adm300_monitor/pkg/api"
	"github.com/NotCoffee418/adm300_monitor/pkg/config"
	"github.com/NotCoffee418/adm300_monitor/pkg/logging"
	"github.com/NotCoffee418/adm300_monitor/pkg/monitor"
	"github.com/NotCoffee418/adm300_monitor/pkg/port_reader"
	"github.com/NotCoffee418/adm300_monitor/pkg/publisher"
	"github.com/NotCoffee418/adm300_monitor/pkg/sentence"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	if err := config.LoadMonitorAPIConfig(); err != nil {
		logrus.Fatalf("Failed to load ADM-300 API config: %v", err)
	}
	cfg := config.ActiveMonitorAPIConfig
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := port_reader.Open(
		port_reader.SerialConfig{
			Device:      cfg.SerialDevice,
			Baudrate:    cfg.Baudrate,
			ReadTimeout: cfg.ReadTimeout(),
		},
		port_reader.Options{
			LoopInterval:  cfg.LoopInterval(),
			ErrorBackoff:  cfg.ErrorBackoff(),
			QueueCapacity: cfg.QueueCapacity,
		},
		log,
	)
	if err != nil {
		log.Fatalf("Failed to open ADM-300: %v", err)
	}

	if cfg.MetricsEnabled {
		monitor.Register()
	}
	server := api.NewServer(session, api.Options{MetricsEnabled: cfg.MetricsEnabled}, log)

	// Redis is optional; reports are handed over through a buffer so a slow
	// server never stalls the serial worker.
	var reports chan sentence.ParsedReport
	if cfg.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pub, err := publisher.NewRedisPublisher(pingCtx, publisher.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		}, log)
		cancel()
		if err != nil {
			log.Errorf("Redis publishing disabled: %v", err)
		} else {
			defer pub.Close()
			reports = make(chan sentence.ParsedReport, 64)
			go publishLoop(ctx, pub, reports, log)
		}
	}

	session.SetParsedCallback(func(report sentence.ParsedReport) {
		monitor.ObserveReport(report)
		server.Broadcast(report)
		if reports != nil && report.Valid {
			select {
			case reports <- report:
			default:
				log.Warnf("Redis publish buffer full, dropping report %d", report.SeqNo)
			}
		}
	})
	session.SetPowerOnCallback(monitor.ObservePowerOn)
	session.SetErrorCallback(monitor.ObserveError)

	if err := session.Start(); err != nil {
		log.Fatalf("Failed to start ADM-300 session: %v", err)
	}

	if cfg.AutoStartReports {
		go autoStart(ctx, session, cfg.SettleTime(), log)
	}

	listener := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	go func() {
		if err := server.ListenAndServe(listener); err != nil {
			log.Errorf("HTTP server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down ADM-300 API...")

	// Ask the meter to stop reporting before the port goes away.
	if err := session.StopMonitoring(); err != nil {
		log.Warnf("Failed to queue stop command: %v", err)
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := session.AwaitFlush(flushCtx); err != nil {
		log.Warnf("Stop command may not have been sent: %v", err)
	}
	cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP shutdown: %v", err)
	}
	if err := session.Close(); err != nil {
		log.Warnf("Closing ADM-300 session: %v", err)
	}
}

// autoStart requests reports once the meter powered on and had time to
// settle. A meter already reporting is left alone.
func autoStart(ctx context.Context, session *port_reader.Session, settle time.Duration, log *logrus.Logger) {
	log.Info("Waiting for ADM-300 to power on...")
	if err := session.AwaitActivity(ctx, 100*time.Millisecond); err != nil {
		return
	}
	if session.GotSentence() {
		log.Info("ADM-300 is already reporting")
		return
	}

	log.Infof("ADM-300 powered on, waiting %v before requesting reports", settle)
	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return
	}

	err := session.StartMonitoring()
	monitor.ObserveCommand("start", err)
	if err != nil {
		log.Errorf("Failed to request reports: %v", err)
	}
}

func publishLoop(ctx context.Context, pub *publisher.RedisPublisher, reports <-chan sentence.ParsedReport, log *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case report := <-reports:
			publishCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := pub.Publish(publishCtx, report); err != nil {
				log.Warnf("Redis publish failed: %v", err)
			}
			cancel()
		}
	}
}
