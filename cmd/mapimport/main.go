// Command mapimport runs one .hmap import against a running MySQL
// instance, wiring together every package in this module the same way
// the admin/HTTP layer (out of scope here) would.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"mapimport/model"
	"mapimport/orchestrator"
	"mapimport/quota"
	"mapimport/system"
	"mapimport/tileresource"
)

// noopMarkerStore is the default marker collaborator when none is
// wired in: it drops every marker, counting none as imported. A real
// deployment replaces this with the external marker service.
type noopMarkerStore struct{}

func (noopMarkerStore) SaveMarker(_, _ string, _, _ int, _, _ string) error {
	return fmt.Errorf("marker store not configured")
}

func main() {
	inputPath := flag.String("input", "", "path to the .hmap file to import")
	tenantID := flag.String("tenant", "", "tenant id the import belongs to")
	modeFlag := flag.String("mode", "create_new", "create_new | merge")
	flag.Parse()

	if *inputPath == "" || *tenantID == "" {
		fmt.Fprintln(os.Stderr, "usage: mapimport -input path/to/file.hmap -tenant <id> [-mode create_new|merge]")
		os.Exit(2)
	}

	cfg, err := system.LoadConfig()
	must(err)

	if err := system.InitDB(cfg); err != nil {
		must(fmt.Errorf("connect to database: %w", err))
	}
	must(system.AutoMigrate(&model.MapRecord{}, &model.GridRecord{}, &model.TileRecord{}, &model.TenantQuota{}))

	logger := system.NewLogger(cfg)
	importLogger := system.NewImportLogger(logger, *tenantID, fmt.Sprintf("%d", os.Getpid()))

	tileSvc, err := tileresource.New(tileresource.Options{
		DiskCacheDir: cfg.TileCacheDir,
		BaseURL:      cfg.ResourceBaseURL,
		HTTPTimeout:  cfg.HTTPTimeout,
		FetchRPS:     cfg.FetchRPS,
	})
	must(err)

	quotaSvc := quota.New(system.GetDB())

	orch := orchestrator.New(system.GetDB(), tileSvc, quotaSvc, noopMarkerStore{}, orchestrator.Config{
		StorageRoot:       cfg.StorageRoot,
		RenderParallelism: cfg.RenderParallelism,
		ChannelCapacity:   cfg.ChannelCapacity,
		BatchSize:         cfg.BatchSize,
		MaxSegments:       cfg.MaxSegments,
	}, importLogger.Entry)

	mode := model.CreateNew
	if *modeFlag == "merge" {
		mode = model.Merge
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	f, err := os.Open(*inputPath)
	must(err)
	defer f.Close()

	result := orch.Import(ctx, f, *tenantID, mode, &orchestrator.LoggingProgressSink{Logger: importLogger.Entry})

	if !result.Success {
		importLogger.Entry.WithField("error", result.ErrorMessage).Error("import failed")
		os.Exit(1)
	}
	importLogger.Entry.WithFields(logrus.Fields{
		"maps_created":     result.MapsCreated,
		"grids_imported":   result.GridsImported,
		"grids_skipped":    result.GridsSkipped,
		"markers_imported": result.MarkersImported,
		"markers_skipped":  result.MarkersSkipped,
		"duration":         result.Duration.String(),
	}).Info("import complete")
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
