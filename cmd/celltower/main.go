package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/celltower/internal/api"
	"github.com/banshee-data/celltower/internal/config"
	"github.com/banshee-data/celltower/internal/db"
	"github.com/banshee-data/celltower/internal/modem"
	"github.com/banshee-data/celltower/internal/monitoring"
	"github.com/banshee-data/celltower/internal/serialmux"
	"github.com/banshee-data/celltower/internal/tower"
	"github.com/banshee-data/celltower/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Use the built-in modem emulator instead of a serial port")
	debugMode   = flag.Bool("debug", false, "Log every modem line and scan")
	listen      = flag.String("listen", ":8080", "Listen address")
	port        = flag.String("port", "/dev/ttyUSB2", "Modem AT serial port (ignored in dev mode)")
	baud        = flag.Int("baud", 0, "Serial baud rate (0 uses the config file value)")
	dbPath      = flag.String("db-path", "celltower.db", "Path to the sqlite history database")
	configPath  = flag.String("config", "", "Path to a scanner config JSON file (empty uses built-in defaults)")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

// retentionInterval is how often old history is pruned.
const retentionInterval = time.Hour

func loadConfig(path string) (*config.ScannerConfig, error) {
	if path == "" {
		return &config.ScannerConfig{}, nil
	}
	return config.LoadScannerConfig(path)
}

func portOptions(cfg *config.ScannerConfig, baudFlag int) serialmux.PortOptions {
	rate := cfg.GetBaudRate()
	if baudFlag > 0 {
		rate = baudFlag
	}
	return serialmux.PortOptions{BaudRate: rate}
}

func scannerOptions(cfg *config.ScannerConfig, metrics *monitoring.ScanCollector) tower.Options {
	return tower.Options{
		SuccessPeriod:  cfg.GetSignalPeriod(),
		CommandTimeout: cfg.GetCommandTimeout(),
		MaxNeighbors:   cfg.GetMaxNeighbors(),
		Metrics:        metrics,
	}
}

func publisherOptions(cfg *config.ScannerConfig) tower.PublisherOptions {
	return tower.PublisherOptions{
		ScanInterval:   cfg.GetScanInterval(),
		ScanTimeout:    cfg.GetScanTimeout(),
		SignalInterval: cfg.GetSignalRecordInterval(),
		SignalMaxAge:   cfg.GetSignalMaxAge(),
	}
}

func openModemPort(cfg *config.ScannerConfig) (serialmux.SerialMuxInterface, error) {
	if *devMode {
		log.Printf("dev mode: using the modem emulator")
		return serialmux.NewSerialMux(modem.NewEmulator(modem.NewScript())), nil
	}
	mux, err := serialmux.NewRealSerialMux(*port, portOptions(cfg, *baud))
	if err != nil {
		return nil, err
	}
	return mux, nil
}

// runRetention prunes history older than retention until ctx is done.
func runRetention(ctx context.Context, store *db.DB, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		n, err := store.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Printf("history prune failed: %v", err)
		} else if n > 0 {
			log.Printf("pruned %d history rows older than %s", n, retention)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !*devMode && *port == "" {
		log.Fatal("Serial port is required")
	}
	monitoring.SetDebug(*debugMode)
	log.Printf("starting %s", version.String())

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	modemSerial, err := openModemPort(cfg)
	if err != nil {
		log.Fatalf("failed to open modem port: %v", err)
	}
	defer modemSerial.Close()

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	metrics, err := monitoring.NewScanCollector(nil)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := modemSerial.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	mdm := modem.New(modemSerial, cfg.GetATTimeout(), nil)
	if err := mdm.Init(ctx); err != nil {
		// the worker keeps retrying through Ready, so this is not fatal
		log.Printf("modem init failed: %v", err)
	}

	scanner := tower.New(mdm, scannerOptions(cfg, metrics))
	publisher := tower.NewPublisher(scanner, store, publisherOptions(cfg))

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scanner.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("tower scanner stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := publisher.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("publisher stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runRetention(ctx, store, cfg.GetHistoryRetention())
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(scanner, api.Options{
			History:      store,
			Publisher:    publisher,
			Gatherer:     metrics.Gatherer(),
			SignalMaxAge: cfg.GetSignalMaxAge(),
			ScanTimeout:  cfg.GetScanTimeout(),
		}).ServeMux()

		modemSerial.AttachAdminRoutes(mux)
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("database admin routes disabled: %v", err)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
