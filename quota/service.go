// Package quota tracks each tenant's running storage usage against its
// configured upper bound.
package quota

import (
	"fmt"

	"gorm.io/gorm"

	"mapimport/model"
)

// Service reads and updates TenantQuota rows.
type Service struct {
	db *gorm.DB
}

// New builds a quota Service bound to the given database handle.
func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get loads the tenant's quota row, or returns a zeroed, unsaved one
// if the row is absent.
func (s *Service) Get(tenantID string) (*model.TenantQuota, error) {
	return s.get(s.db, tenantID)
}

func (s *Service) get(tx *gorm.DB, tenantID string) (*model.TenantQuota, error) {
	var q model.TenantQuota
	err := tx.Model(&model.TenantQuota{}).Where("tenant_id = ?", tenantID).First(&q).Error
	if err == gorm.ErrRecordNotFound {
		q = model.TenantQuota{TenantID: tenantID, CurrentStorageMB: 0, QuotaMB: 0}
		return &q, nil
	}
	if err != nil {
		return nil, &model.PersistenceError{Op: "quota.get", Err: err}
	}
	return &q, nil
}

// Apply adds deltaMB to the tenant's current usage inside tx, failing
// with QuotaExceeded if the result would exceed QuotaMB. Zero-valued
// QuotaMB is treated as "unlimited" (the row has never been
// provisioned); callers that enforce tenancy do so upstream.
func (s *Service) Apply(tx *gorm.DB, tenantID string, deltaMB float64) error {
	q, err := s.get(tx, tenantID)
	if err != nil {
		return err
	}
	next := q.CurrentStorageMB + deltaMB
	if q.QuotaMB > 0 && next > q.QuotaMB {
		return &model.QuotaExceeded{
			TenantID:    tenantID,
			CurrentMB:   q.CurrentStorageMB,
			AttemptedMB: deltaMB,
			QuotaMB:     q.QuotaMB,
		}
	}
	q.CurrentStorageMB = next

	result := tx.Save(q)
	if result.Error != nil {
		return &model.PersistenceError{Op: "quota.apply", Err: result.Error}
	}
	return nil
}

// Decrement reduces the tenant's current usage by deltaMB, clamped at
// zero. Used by CleanupService; it never fails on an already-zeroed or
// missing row.
func (s *Service) Decrement(tenantID string, deltaMB float64) error {
	q, err := s.get(s.db, tenantID)
	if err != nil {
		return err
	}
	q.CurrentStorageMB -= deltaMB
	if q.CurrentStorageMB < 0 {
		q.CurrentStorageMB = 0
	}
	if result := s.db.Save(q); result.Error != nil {
		return &model.PersistenceError{Op: "quota.decrement", Err: fmt.Errorf("tenant %s: %w", tenantID, result.Error)}
	}
	return nil
}
