package config

import (
	"time"
)

type Config struct {
	Store     DatabaseConnection `mapstructure:"store"`
	Staging   StagingConfig      `mapstructure:"staging"`
	Sync      SyncConfig         `mapstructure:"sync"`
	Scheduler SchedulerConfig    `mapstructure:"scheduler"`
	Server    ServerConfig       `mapstructure:"server"`
	Logging   LoggingConfig      `mapstructure:"logging"`
	Events    EventsConfig       `mapstructure:"events"`
	Metrics   MetricsConfig      `mapstructure:"metrics"`
}

// DatabaseConnection describes one relational database. Type selects the driver.
type DatabaseConnection struct {
	Type     string `mapstructure:"type" validate:"oneof=mysql postgres sqlite memory"`
	Host     string `mapstructure:"host" validate:"required_if=Type mysql,required_if=Type postgres"`
	Port     int    `mapstructure:"port" validate:"min=0,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" validate:"required_if=Type mysql,required_if=Type postgres"`
	SSLMode  string `mapstructure:"ssl_mode"`
	FilePath string `mapstructure:"file_path" validate:"required_if=Type sqlite"` // For SQLite

	// Binlog access for the realtime staging feed (MySQL only).
	ReplicationUser     string `mapstructure:"replication_user"`
	ReplicationPassword string `mapstructure:"replication_password"`
	ServerID            uint32 `mapstructure:"server_id"`
}

type StagingConfig struct {
	Enabled    bool               `mapstructure:"enabled"`
	Connection DatabaseConnection `mapstructure:"connection" validate:"-"`
	Source     string             `mapstructure:"source" validate:"required_if=Enabled true"`
	TenantID   string             `mapstructure:"tenant_id" validate:"required_if=Enabled true"`
	Tables     []StagingTable     `mapstructure:"tables" validate:"dive"`
}

// StagingTable maps one ERP staging table onto an entity type.
// Columns renames staging columns to candidate fields; unlisted columns pass through.
type StagingTable struct {
	Name       string            `mapstructure:"name" validate:"required"`
	EntityType string            `mapstructure:"entity_type" validate:"oneof=job part resource"`
	Columns    map[string]string `mapstructure:"columns"`
}

type SyncConfig struct {
	Workers           int           `mapstructure:"workers" validate:"min=1"`
	BatchSize         int           `mapstructure:"batch_size" validate:"min=1"`
	FlushInterval     time.Duration `mapstructure:"flush_interval"`
	FingerprintLength int           `mapstructure:"fingerprint_length" validate:"min=8,max=64"`
	Realtime          bool          `mapstructure:"realtime"`
	HistoryLimit      int           `mapstructure:"history_limit" validate:"min=1"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval" validate:"required_if=Enabled true"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port" validate:"min=1,max=65535"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type EventsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic        string        `mapstructure:"topic" validate:"required_if=Enabled true"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression" validate:"omitempty,oneof=none gzip snappy lz4 zstd"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}
