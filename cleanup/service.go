// Package cleanup removes the partial state a failed import left
// behind: grid rows, tile rows, rendered PNGs, map rows, and the
// quota bytes those PNGs consumed.
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"mapimport/model"
	"mapimport/quota"
)

// Service performs best-effort, idempotent cleanup of a failed
// import's artefacts.
type Service struct {
	db          *gorm.DB
	quotaSvc    *quota.Service
	storageRoot string
}

// New builds a cleanup Service.
func New(db *gorm.DB, quotaSvc *quota.Service, storageRoot string) *Service {
	return &Service{db: db, quotaSvc: quotaSvc, storageRoot: storageRoot}
}

// CleanupFailedImport deletes every artefact named by the given id
// lists for tenantID. It is idempotent: a row or path already absent
// is not an error.
func (s *Service) CleanupFailedImport(tenantID string, createdMapIDs []uint64, createdGridIDs []string) error {
	if err := s.deleteGridRows(createdGridIDs); err != nil {
		return err
	}
	for _, mapID := range createdMapIDs {
		if err := s.cleanupMap(tenantID, mapID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) deleteGridRows(gridIDs []string) error {
	if len(gridIDs) == 0 {
		return nil
	}
	if err := s.db.Where("id IN ?", gridIDs).Delete(&model.GridRecord{}).Error; err != nil {
		return &model.PersistenceError{Op: "cleanup.delete_grids", Err: err}
	}
	return nil
}

func (s *Service) cleanupMap(tenantID string, mapID uint64) error {
	mapDir := filepath.Join(s.storageRoot, "tenants", tenantID, fmt.Sprint(mapID))

	freedMB, err := s.sumPNGSizeMB(mapDir)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(mapDir); err != nil {
		return &model.IoError{Path: mapDir, Op: "remove_all", Err: err}
	}

	if freedMB > 0 {
		if err := s.quotaSvc.Decrement(tenantID, freedMB); err != nil {
			return err
		}
	}

	if err := s.db.Where("map_id = ?", mapID).Delete(&model.TileRecord{}).Error; err != nil {
		return &model.PersistenceError{Op: "cleanup.delete_tiles", Err: err}
	}

	if err := s.db.Where("id = ?", mapID).Delete(&model.MapRecord{}).Error; err != nil {
		return &model.PersistenceError{Op: "cleanup.delete_map", Err: err}
	}
	return nil
}

// sumPNGSizeMB recursively sums the byte size of every PNG under dir.
// A missing directory sums to zero, not an error.
func (s *Service) sumPNGSizeMB(dir string) (float64, error) {
	var totalBytes int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".png" {
			totalBytes += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, &model.IoError{Path: dir, Op: "walk", Err: err}
	}
	return float64(totalBytes) / (1024 * 1024), nil
}
