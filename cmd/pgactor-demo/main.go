package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mevdschee/pgactor/config"
	"github.com/mevdschee/pgactor/metrics"
	"github.com/mevdschee/pgactor/pgtypes"
	"github.com/mevdschee/pgactor/postgres"
)

func main() {
	configPath := flag.String("config", "config.ini", "Path to configuration file")
	profile := flag.String("profile", "", "Connection profile name (defaults to the config's default)")
	query := flag.String("query", "select 1", "Query to run against the connection")
	metricsAddr := flag.String("metrics", ":9090", "Metrics endpoint address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	name := *profile
	if name == "" {
		name = cfg.Default
	}
	conn, ok := cfg.Profiles[name]
	if !ok {
		log.Fatalf("Unknown connection profile: %s", name)
	}

	metrics.Init()

	go func() {
		http.Handle("/metrics", metrics.Handler())
		log.Printf("Metrics endpoint at http://localhost%s/metrics", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	pg, err := postgres.Connect(ctx, postgres.ConnectOptions{
		Hostname:    conn.Hostname,
		Port:        conn.Port,
		Username:    conn.Username,
		Password:    conn.Password,
		Database:    conn.Database,
		Types:       pgtypes.Types{},
		DialTimeout: conn.DialTimeout,
	})
	if err != nil {
		metrics.ConnectTotal.WithLabelValues(metrics.ErrorKind(err)).Inc()
		log.Fatalf("Failed to connect: %v", err)
	}
	metrics.ConnectTotal.WithLabelValues("ok").Inc()
	metrics.ConnectLatency.Observe(time.Since(start).Seconds())
	log.Printf("[pgactor] connected to %s:%d/%s as %s", conn.Hostname, conn.Port, conn.Database, conn.Username)

	queryStart := time.Now()
	result, err := pg.Query(ctx, *query)
	if err != nil {
		metrics.ErrorTotal.WithLabelValues(metrics.ErrorKind(err)).Inc()
		log.Fatalf("Query failed: %v", err)
	}
	metrics.QueryTotal.WithLabelValues(result.Command, "ok").Inc()
	metrics.QueryLatency.WithLabelValues(result.Command).Observe(time.Since(queryStart).Seconds())
	metrics.RowsReturned.Observe(float64(result.NumRows))

	log.Printf("[pgactor] %s -> command=%s rows=%d columns=%v", *query, result.Command, result.NumRows, result.Columns)
	for _, row := range result.Rows {
		log.Printf("[pgactor] row: %v", row)
	}

	if err := pg.Close(ctx); err != nil {
		log.Printf("Close error: %v", err)
	}

	log.Println("pgactor-demo finished. Press Ctrl+C to exit the metrics server.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
}
