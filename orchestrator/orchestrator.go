// Package orchestrator drives one full import call end to end: parse,
// prefetch, import, rezoom, and place markers, with phased progress
// reporting and cancellation propagation.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mapimport/hmap"
	"mapimport/importer"
	"mapimport/marker"
	"mapimport/model"
	"mapimport/quota"
	"mapimport/tileresource"
	"mapimport/zoom"
)

// ProgressSink receives throttled progress reports for one import
// call. The HTTP/admin layer (out of scope here) adapts this into
// whatever live transport it exposes to a caller.
type ProgressSink interface {
	Report(model.ProgressEvent)
}

// LoggingProgressSink is the package's default ProgressSink: every
// report is emitted as a structured log line.
type LoggingProgressSink struct {
	Logger *logrus.Entry
}

func (s *LoggingProgressSink) Report(e model.ProgressEvent) {
	if s.Logger == nil {
		return
	}
	s.Logger.WithFields(logrus.Fields{
		"phase":           e.Phase.String(),
		"phase_number":    e.PhaseNumber,
		"current_item":    e.CurrentItem,
		"total_items":     e.TotalItems,
		"overall_percent": e.OverallPercent,
	}).Info("import progress")
}

// Config tunes the orchestrator and the segment importers it drives.
type Config struct {
	StorageRoot       string
	RenderParallelism int
	ChannelCapacity   int
	BatchSize         int
	MaxSegments       int
}

// Orchestrator is the top-level entry point: `import(...)` from
// spec.md §6.
type Orchestrator struct {
	db        *gorm.DB
	tileSvc   *tileresource.Service
	quotaSvc  *quota.Service
	markerSvc *marker.Importer
	cfg       Config
	logger    *logrus.Entry
}

// New builds an Orchestrator. Zero-valued Config fields fall back to
// the spec's defaults.
func New(db *gorm.DB, tileSvc *tileresource.Service, quotaSvc *quota.Service, markerStore marker.Store, cfg Config, logger *logrus.Entry) *Orchestrator {
	if cfg.RenderParallelism <= 0 {
		cfg.RenderParallelism = 4
	}
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 20
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = 3
	}
	return &Orchestrator{
		db:        db,
		tileSvc:   tileSvc,
		quotaSvc:  quotaSvc,
		markerSvc: marker.New(markerStore),
		cfg:       cfg,
		logger:    logger,
	}
}

// Import runs the full five-phase pipeline against one .hmap stream.
func (o *Orchestrator) Import(ctx context.Context, stream io.Reader, tenantID string, mode model.ImportMode, sink ProgressSink) model.ImportResult {
	start := time.Now()
	if sink == nil {
		sink = &LoggingProgressSink{Logger: o.logger}
	}
	reporter := newProgressReporter(sink, start)

	container, err := o.runParsePhase(reporter, stream)
	if err != nil {
		return failedResult(err, start)
	}

	segments := o.selectSegments(container)

	resources := collectResourceNames(container, segments)
	o.runPrefetchPhase(ctx, reporter, resources)

	result, affectedMaps, touchedCoords, err := o.runImportPhase(ctx, reporter, tenantID, mode, container, segments)
	if err != nil {
		result.Duration = time.Since(start)
		result.Success = false
		result.ErrorMessage = abstractErrorMessage(err)
		return result
	}

	if err := o.runZoomPhase(reporter, tenantID, affectedMaps, touchedCoords); err != nil {
		result.Duration = time.Since(start)
		result.Success = false
		result.ErrorMessage = abstractErrorMessage(err)
		return result
	}

	o.runMarkersPhase(reporter, tenantID, container, segments, &result)

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

func (o *Orchestrator) runParsePhase(r *progressReporter, stream io.Reader) (*model.HmapContainer, error) {
	r.report(model.PhaseParse, 0, 1, true)
	container, err := hmap.NewReader(stream).Parse()
	if err != nil {
		return nil, err
	}
	r.report(model.PhaseParse, 1, 1, true)
	return container, nil
}

// selectSegments picks at most cfg.MaxSegments by descending grid
// count, stable by first-occurrence order on ties.
func (o *Orchestrator) selectSegments(container *model.HmapContainer) []int64 {
	ids := container.SegmentIDs()
	sort.SliceStable(ids, func(i, j int) bool {
		return len(container.GridsForSegment(ids[i])) > len(container.GridsForSegment(ids[j]))
	})
	if len(ids) > o.cfg.MaxSegments {
		if o.logger != nil {
			o.logger.WithField("dropped_segments", len(ids)-o.cfg.MaxSegments).Warn("segment cap reached, dropping lowest-priority segments")
		}
		ids = ids[:o.cfg.MaxSegments]
	}
	return ids
}

func collectResourceNames(container *model.HmapContainer, segments []int64) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, segID := range segments {
		for _, g := range container.GridsForSegment(segID) {
			for _, t := range g.Tilesets {
				if _, ok := seen[t.ResourceName]; ok {
					continue
				}
				seen[t.ResourceName] = struct{}{}
				names = append(names, t.ResourceName)
			}
		}
	}
	return names
}

func (o *Orchestrator) runPrefetchPhase(ctx context.Context, r *progressReporter, resources []string) {
	total := len(resources)
	if total == 0 {
		r.report(model.PhasePrefetch, 0, 0, true)
		return
	}
	o.tileSvc.Prefetch(ctx, resources, func(p tileresource.PrefetchProgress) {
		forced := p.Index == 0 || p.Index == p.Total-1
		r.report(model.PhasePrefetch, p.Index+1, p.Total, forced)
	})
}

func (o *Orchestrator) runImportPhase(ctx context.Context, r *progressReporter, tenantID string, mode model.ImportMode, container *model.HmapContainer, segments []int64) (model.ImportResult, map[uint64]bool, map[uint64][]model.Coord, error) {
	result := model.ImportResult{}
	affectedMaps := make(map[uint64]bool) // visited set, dedupes MapsCreated across segments sharing a map
	touched := make(map[uint64][]model.Coord)

	si := importer.New(o.db, o.quotaSvc, o.tileSvc, importer.Config{
		StorageRoot:       o.cfg.StorageRoot,
		RenderParallelism: o.cfg.RenderParallelism,
		ChannelCapacity:   o.cfg.ChannelCapacity,
		BatchSize:         o.cfg.BatchSize,
	})

	total := len(segments)
	for i, segID := range segments {
		if ctx.Err() != nil {
			return result, affectedMaps, touched, model.ErrCanceled
		}

		grids := container.GridsForSegment(segID)
		segResult, err := si.ImportSegment(ctx, tenantID, mode, grids)
		r.report(model.PhaseImport, i+1, total, i == 0 || i == total-1)

		if segResult.MapID != 0 {
			result.AffectedMapIDs = appendUnique(result.AffectedMapIDs, segResult.MapID)
			if segResult.IsNewMap && !affectedMaps[segResult.MapID] {
				result.CreatedMapIDs = appendUnique(result.CreatedMapIDs, segResult.MapID)
				result.MapsCreated++
			}
			affectedMaps[segResult.MapID] = true
			touched[segResult.MapID] = append(touched[segResult.MapID], segResult.ImportedCoords...)
		}

		result.GridsImported += segResult.GridsImported
		result.GridsSkipped += segResult.GridsSkipped
		result.TilesRendered += segResult.TilesRendered
		result.CreatedGridIDs = append(result.CreatedGridIDs, segResult.CreatedGridIDs...)

		if err != nil {
			return result, affectedMaps, touched, err
		}
	}

	return result, affectedMaps, touched, nil
}

func (o *Orchestrator) runZoomPhase(r *progressReporter, tenantID string, affectedMaps map[uint64]bool, touched map[uint64][]model.Coord) error {
	builder := zoom.New(o.db, o.quotaSvc, o.cfg.StorageRoot)

	total := len(affectedMaps)
	if total == 0 {
		r.report(model.PhaseZoom, 0, 0, true)
		return nil
	}

	i := 0
	for mapID := range affectedMaps {
		if err := builder.Rebuild(mapID, tenantID, touched[mapID]); err != nil {
			return err
		}
		i++
		r.report(model.PhaseZoom, i, total, i == 1 || i == total)
	}
	return nil
}

func (o *Orchestrator) runMarkersPhase(r *progressReporter, tenantID string, container *model.HmapContainer, segments []int64, result *model.ImportResult) {
	importedGridIDs := make(map[string]struct{}, len(result.CreatedGridIDs))
	for _, id := range result.CreatedGridIDs {
		importedGridIDs[id] = struct{}{}
	}

	var allMarkers []model.HmapMarker
	for _, segID := range segments {
		allMarkers = append(allMarkers, container.MarkersForSegment(segID)...)
	}

	total := len(allMarkers)
	if total == 0 {
		r.report(model.PhaseMarkers, 0, 0, true)
		return
	}

	markerResult := o.markerSvc.ImportMarkers(tenantID, importedGridIDs, allMarkers)
	result.MarkersImported = markerResult.Imported
	result.MarkersSkipped = markerResult.Skipped
	r.report(model.PhaseMarkers, total, total, true)
}

func appendUnique(ids []uint64, id uint64) []uint64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func failedResult(err error, start time.Time) model.ImportResult {
	return model.ImportResult{
		Success:      false,
		ErrorMessage: abstractErrorMessage(err),
		Duration:     time.Since(start),
	}
}

// abstractErrorMessage returns the taxonomy category, never a raw
// stack trace or driver-specific detail.
func abstractErrorMessage(err error) string {
	switch err.(type) {
	case *model.ParseError:
		return "ParseError"
	case *model.IoError:
		return "IoError"
	case *model.PersistenceError:
		return "PersistenceError"
	case *model.QuotaExceeded:
		return "QuotaExceeded"
	}
	if err == model.ErrCanceled {
		return "Canceled"
	}
	return fmt.Sprintf("%v", err)
}
