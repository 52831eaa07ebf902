package system

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every tunable the import core reads at startup. Values
// come from environment variables (optionally loaded from a local
// .env file via godotenv) through viper, mirroring the teacher's
// declared config stack.
type Config struct {
	StorageRoot     string
	MySQLDSN        string
	ResourceBaseURL string
	TileCacheDir    string

	RenderParallelism int
	ChannelCapacity   int
	BatchSize         int
	MaxSegments       int

	HTTPTimeout time.Duration
	FetchRPS    int

	LogFile    string
	LogMaxMB   int
	LogMaxDays int
}

// LoadConfig reads configuration from the environment (and an
// optional .env file in the working directory), applying the spec's
// defaults for anything left unset.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // best-effort; absence is not an error

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("storage_root", "./data")
	v.SetDefault("mysql_dsn", "")
	v.SetDefault("resource_base_url", "")
	v.SetDefault("tile_cache_dir", "hmap-tile-cache")
	v.SetDefault("render_parallelism", 4)
	v.SetDefault("channel_capacity", 20)
	v.SetDefault("batch_size", 500)
	v.SetDefault("max_segments", 3)
	v.SetDefault("http_timeout_seconds", 12)
	v.SetDefault("fetch_rps", 8)
	v.SetDefault("log_file", "logs/mapimport.log")
	v.SetDefault("log_max_mb", 100)
	v.SetDefault("log_max_days", 14)

	cfg := &Config{
		StorageRoot:       v.GetString("storage_root"),
		MySQLDSN:          v.GetString("mysql_dsn"),
		ResourceBaseURL:   v.GetString("resource_base_url"),
		TileCacheDir:      v.GetString("tile_cache_dir"),
		RenderParallelism: v.GetInt("render_parallelism"),
		ChannelCapacity:   v.GetInt("channel_capacity"),
		BatchSize:         v.GetInt("batch_size"),
		MaxSegments:       v.GetInt("max_segments"),
		HTTPTimeout:       time.Duration(v.GetInt("http_timeout_seconds")) * time.Second,
		FetchRPS:          v.GetInt("fetch_rps"),
		LogFile:           v.GetString("log_file"),
		LogMaxMB:          v.GetInt("log_max_mb"),
		LogMaxDays:        v.GetInt("log_max_days"),
	}
	return cfg, nil
}
