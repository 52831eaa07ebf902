package model

import "time"

// Grid cells are always laid out on a fixed 100x100 terrain block.
const (
	GridWidth  = 100
	GridHeight = 100
	GridCells  = GridWidth * GridHeight
)

// MapRecord is one tenant's named map. Name is unique per tenant.
type MapRecord struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(255);not null;uniqueIndex:idx_map_tenant_name" json:"name"`
	TenantID  string    `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex:idx_map_tenant_name" json:"tenant_id"`
	Hidden    bool      `gorm:"column:hidden;not null;default:false" json:"hidden"`
	Priority  int       `gorm:"column:priority;not null;default:0" json:"priority"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (MapRecord) TableName() string {
	return "maps"
}

// GridRecord is one persisted 100x100 grid placed on a map.
type GridRecord struct {
	ID         string    `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	MapID      uint64    `gorm:"column:map_id;not null;index:idx_grid_map" json:"map_id"`
	CoordX     int64     `gorm:"column:coord_x;not null" json:"coord_x"`
	CoordY     int64     `gorm:"column:coord_y;not null" json:"coord_y"`
	NextUpdate time.Time `gorm:"column:next_update" json:"next_update"`
	TenantID   string    `gorm:"column:tenant_id;type:varchar(64);not null;index:idx_grid_tenant" json:"tenant_id"`
}

func (GridRecord) TableName() string {
	return "grids"
}

func (g GridRecord) Coord() Coord { return Coord{X: g.CoordX, Y: g.CoordY} }

// TileRecord is one rendered PNG at a given zoom level. Primary key is
// (map_id, zoom, coord_x, coord_y).
type TileRecord struct {
	MapID          uint64    `gorm:"column:map_id;primaryKey" json:"map_id"`
	Zoom           int       `gorm:"column:zoom;primaryKey" json:"zoom"`
	CoordX         int64     `gorm:"column:coord_x;primaryKey" json:"coord_x"`
	CoordY         int64     `gorm:"column:coord_y;primaryKey" json:"coord_y"`
	FilePath       string    `gorm:"column:file_path;type:varchar(512);not null" json:"file_path"`
	CacheTimestamp int64     `gorm:"column:cache_timestamp;not null" json:"cache_timestamp"`
	TenantID       string    `gorm:"column:tenant_id;type:varchar(64);not null" json:"tenant_id"`
	FileSizeBytes  int64     `gorm:"column:file_size_bytes;not null" json:"file_size_bytes"`
}

func (TileRecord) TableName() string {
	return "tiles"
}

func (t TileRecord) Coord() Coord { return Coord{X: t.CoordX, Y: t.CoordY} }

// TenantQuota tracks a tenant's running storage usage against its cap.
type TenantQuota struct {
	TenantID         string  `gorm:"column:tenant_id;primaryKey;type:varchar(64)" json:"tenant_id"`
	CurrentStorageMB float64 `gorm:"column:current_storage_mb;not null;default:0" json:"current_storage_mb"`
	QuotaMB          float64 `gorm:"column:quota_mb;not null" json:"quota_mb"`
}

func (TenantQuota) TableName() string {
	return "tenant_quotas"
}
