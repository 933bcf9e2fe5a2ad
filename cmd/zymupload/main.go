package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/falachabt/zymupload/internal/logger"
	"github.com/falachabt/zymupload/pkg/cache"
	"github.com/falachabt/zymupload/pkg/config"
	"github.com/falachabt/zymupload/pkg/journal"
	"github.com/falachabt/zymupload/pkg/loader"
	"github.com/falachabt/zymupload/pkg/metrics"
	"github.com/falachabt/zymupload/pkg/remote"
	"github.com/falachabt/zymupload/pkg/transfer"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/zymupload/config.yaml)")
	initConfig := flag.Bool("init", false, "Write a default config file and exit")
	force := flag.Bool("force", false, "Overwrite an existing config file with -init")

	uploadPath := flag.String("upload", "", "Local file or directory to upload")
	downloadID := flag.String("download", "", "Remote file or folder to download")
	dest := flag.String("dest", "", "Destination: remote folder ID for uploads, local directory for downloads")
	searchQuery := flag.String("search", "", "Search remote entries by name")
	showHistory := flag.Int("history", 0, "Print the N most recent finished transfers and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.InitConfig(*force)
		if err != nil {
			log.Fatalf("Failed to initialize config: %v", err)
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel on interrupt so in-flight remote calls unwind
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cancelling...")
		cancel()
	}()

	fmt.Println("ZymUpload - Cloud Transfer Engine")
	logger.Info("Log level set to: %s", cfg.Logging.Level)
	logger.Info("Remote store type: %s", cfg.Remote.Type)

	// History only needs the journal
	if *showHistory > 0 {
		printHistory(cfg, *showHistory)
		return
	}

	store, err := config.CreateRemoteStore(ctx, &cfg.Remote, cfg.Transfer.ChunkSizeBytes)
	if err != nil {
		log.Fatalf("Failed to create remote store: %v", err)
	}

	if *searchQuery != "" {
		runSearch(ctx, store, *searchQuery)
		return
	}

	if *uploadPath == "" && *downloadID == "" {
		flag.Usage()
		os.Exit(2)
	}

	// Metrics registry and HTTP endpoint, if enabled
	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Listing cache with background sweeper
	listingCache := cache.New(cache.Config{
		MaxAge:          time.Duration(cfg.Cache.MaxAgeMinutes) * time.Minute,
		CleanupInterval: time.Duration(cfg.Cache.CleanupIntervalMS) * time.Millisecond,
		Metrics:         metricsResult.CacheMetrics,
	})
	listingCache.StartSweeper()
	defer listingCache.StopSweeper()

	ld := loader.New(store, listingCache)

	events := transfer.NewBroadcaster()
	manager := transfer.NewManager(events)

	if recorder := metrics.NewTransferRecorder(manager); recorder != nil {
		recorder.Start()
		defer recorder.Stop()
	}

	executor := transfer.NewExecutor(manager, store, ld, transfer.ExecutorConfig{
		Workers:   cfg.Transfer.MaxConcurrentTransfers,
		QueueSize: cfg.Transfer.QueueSize,
	})
	executor.Start(ctx)
	defer executor.Stop()

	// Record finished transfers in the journal
	j, err := config.CreateJournal(&cfg.Journal)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	if j != nil {
		defer func() { _ = j.Close() }()
		recordTerminal(events, manager, j)
	}

	var item transfer.TransferItem
	switch {
	case *uploadPath != "":
		item, err = createUpload(manager, store, *uploadPath, *dest)
	default:
		item, err = createDownload(ctx, manager, store, *downloadID, *dest)
	}
	if err != nil {
		log.Fatalf("Failed to create transfer: %v", err)
	}

	if err := executor.Enqueue(item.ID); err != nil {
		log.Fatalf("Failed to enqueue transfer: %v", err)
	}
	logger.Info("Transfer %s started: %s", item.ID, item.Name)

	final := waitForTerminal(ctx, events, manager, item.ID)
	printSummary(final, manager)

	switch final.Status {
	case transfer.StatusCompleted, transfer.StatusSkipped:
	default:
		os.Exit(1)
	}
}

// createUpload builds a pending transfer item for a local path. Directories
// become folder transfers; everything else is a single file.
func createUpload(manager *transfer.Manager, store remote.Store, path, destID string) (transfer.TransferItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return transfer.TransferItem{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if destID == "" {
		destID = store.RootID()
	}

	name := filepath.Base(path)
	if info.IsDir() {
		return manager.CreateTransfer(transfer.KindFolder, transfer.DirectionUpload, path, destID, name, 0), nil
	}
	return manager.CreateTransfer(transfer.KindSingleFile, transfer.DirectionUpload, path, destID, name, info.Size()), nil
}

// createDownload builds a pending transfer item for a remote entry.
func createDownload(ctx context.Context, manager *transfer.Manager, store remote.Store, id, destDir string) (transfer.TransferItem, error) {
	entry, err := store.GetMetadata(ctx, id)
	if err != nil {
		return transfer.TransferItem{}, fmt.Errorf("looking up %s: %w", id, err)
	}
	if destDir == "" {
		destDir = "."
	}

	if entry.Kind == remote.KindFolder {
		target := filepath.Join(destDir, entry.Name)
		return manager.CreateTransfer(transfer.KindFolder, transfer.DirectionDownload, id, target, entry.Name, 0), nil
	}
	return manager.CreateTransfer(transfer.KindSingleFile, transfer.DirectionDownload, id, destDir, entry.Name, entry.Size), nil
}

// recordTerminal appends every finished transfer to the journal.
func recordTerminal(events *transfer.Broadcaster, manager *transfer.Manager, j *journal.Journal) {
	ch := events.Subscribe()
	go func() {
		for ev := range ch {
			if ev.Type != transfer.EventTransferTerminal {
				continue
			}
			item, err := manager.Get(ev.TransferID)
			if err != nil {
				continue
			}
			if err := j.Append(item); err != nil {
				logger.Warn("Failed to journal transfer %s: %v", item.ID, err)
			}
		}
	}()
}

// waitForTerminal blocks until the transfer reaches a final status or the
// context is cancelled. Cancellation forwards to the manager so workers
// stop at the next file boundary.
func waitForTerminal(ctx context.Context, events *transfer.Broadcaster, manager *transfer.Manager, transferID string) transfer.TransferItem {
	ch := events.Subscribe()
	defer events.Unsubscribe(ch)

	// The transfer may already be terminal by the time we subscribe
	if item, err := manager.Get(transferID); err == nil && item.Status.Terminal() {
		return item
	}

	done := ctx.Done()
	for {
		select {
		case <-done:
			// Forward the cancellation once, then keep draining events
			// until the terminal event lands
			done = nil
			if err := manager.CancelTransfer(transferID); err != nil && !errors.Is(err, transfer.ErrInvalidState) {
				logger.Warn("Failed to cancel transfer %s: %v", transferID, err)
			}
		case ev, ok := <-ch:
			if !ok {
				item, _ := manager.Get(transferID)
				return item
			}
			if ev.TransferID != transferID {
				continue
			}
			if ev.Type == transfer.EventProgress {
				logger.Debug("Transfer %s: %.1f%% (%.0f B/s)", transferID, ev.Progress*100, ev.BytesPerSec)
			}
			if ev.Type == transfer.EventTransferTerminal {
				item, _ := manager.Get(transferID)
				return item
			}
		}
	}
}

// printSummary reports the outcome of a finished transfer.
func printSummary(item transfer.TransferItem, manager *transfer.Manager) {
	fmt.Printf("Transfer %s (%s): %s\n", item.ID, item.Name, item.Status)
	fmt.Printf("  Files: %d completed, %d failed, %d total\n",
		item.CompletedFiles(), item.FailedFiles(), len(item.Files))
	fmt.Printf("  Bytes transferred: %d\n", item.BytesTransferred)
	if item.ErrorMessage != "" {
		fmt.Printf("  Error: %s\n", item.ErrorMessage)
	}

	for _, ef := range manager.ErrorFiles() {
		if ef.TransferID != item.ID {
			continue
		}
		fmt.Printf("  Failed: %s: %s\n", ef.File.RelativePath, ef.File.ErrorMessage)
	}
}

// runSearch prints remote entries matching the query.
func runSearch(ctx context.Context, store remote.Store, query string) {
	entries, err := store.Search(ctx, query)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, entry := range entries {
		kind := "file"
		if entry.Kind == remote.KindFolder {
			kind = "folder"
		}
		fmt.Printf("%-8s %12d  %s  (%s)\n", kind, entry.Size, entry.Name, entry.ID)
	}
}

// printHistory prints the most recent journal records.
func printHistory(cfg *config.Config, limit int) {
	if !cfg.Journal.Enabled {
		log.Fatal("Journal is disabled; enable journal.enabled in the config to record history")
	}
	j, err := config.CreateJournal(&cfg.Journal)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer func() { _ = j.Close() }()

	records, err := j.History(limit)
	if err != nil {
		log.Fatalf("Failed to read history: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("No finished transfers recorded.")
		return
	}
	for _, rec := range records {
		fmt.Printf("%s  %-8s %-22s %s (%d files, %d bytes)\n",
			rec.CompletedAt.Format("2006-01-02 15:04:05"),
			rec.Direction, rec.Status, rec.Name, rec.FileCount, rec.TotalBytes)
		if rec.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", rec.ErrorMessage)
		}
	}
}
