package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// DatabaseConfiguration describes the replication source connection.
// The same credentials are reused for the optional read-back store.
type DatabaseConfiguration struct {
	User     string `toml:"user"`
	Password string `toml:"password"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Schema   string `toml:"schema"`
	Table    string `toml:"table"`
}

// CDCConfiguration controls the binlog listener.
type CDCConfiguration struct {
	ServerID           uint32 `toml:"server_id"`            // Replication client id (0 = derive from instance id)
	Flavor             string `toml:"flavor"`               // "mysql" or "mariadb"
	HeartbeatSeconds   int    `toml:"heartbeat_seconds"`    // Server heartbeat interval
	ResolveColumnNames bool   `toml:"resolve_column_names"` // Prefer binlog row metadata over ordinal mapping
	CheckpointDir      string `toml:"checkpoint_dir"`       // Durable binlog position store ("" = start at log head)
}

// BusConfiguration controls the in-process event bus.
type BusConfiguration struct {
	Capacity int `toml:"capacity"`
}

// GRPCConfiguration controls the sync service listener.
type GRPCConfiguration struct {
	BindAddress      string `toml:"bind_address"`
	Port             int    `toml:"port"`
	MaxMessageSizeMB int    `toml:"max_message_size_mb"`
	CompressionLevel int    `toml:"compression_level"` // 0 disables the zstd compressor
}

// HTTPConfiguration controls the ingestion/health endpoint.
type HTTPConfiguration struct {
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
}

// StoreConfiguration controls the optional MySQL read-back for patient
// lookups that miss the in-memory store.
type StoreConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// SinkConfiguration describes one outbound delivery sink.
type SinkConfiguration struct {
	Name            string   `toml:"name"`
	Type            string   `toml:"type"` // "nats" or "kafka"
	NatsURL         string   `toml:"nats_url"`
	Brokers         []string `toml:"brokers"`
	TopicPrefix     string   `toml:"topic_prefix"`
	FilterKinds     []string `toml:"filter_kinds"` // Glob patterns on event kind; empty = all
	RetryInitialMS  int      `toml:"retry_initial_ms"`
	RetryMaxMS      int      `toml:"retry_max_ms"`
	RetryMultiplier float64  `toml:"retry_multiplier"`
	MaxRetries      int      `toml:"max_retries"`
}

// LoggingConfiguration controls logging behavior.
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics exposure on the gRPC port.
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure.
type Configuration struct {
	InstanceID uint64 `toml:"instance_id"` // 0 = derive from machine id

	Database   DatabaseConfiguration   `toml:"database"`
	CDC        CDCConfiguration        `toml:"cdc"`
	Bus        BusConfiguration        `toml:"bus"`
	GRPC       GRPCConfiguration       `toml:"grpc"`
	HTTP       HTTPConfiguration       `toml:"http"`
	Store      StoreConfiguration      `toml:"store"`
	Sinks      []SinkConfiguration     `toml:"sink"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	GRPCPortFlag   = flag.Int("grpc-port", 0, "gRPC port (overrides config)")
	HTTPPortFlag   = flag.Int("http-port", 0, "HTTP port (overrides config)")
	VerboseFlag    = flag.Bool("verbose", false, "Enable debug logging (overrides config)")
)

// Default configuration
var Config = &Configuration{
	InstanceID: 0, // Auto-generate

	Database: DatabaseConfiguration{
		User:   "replicator",
		Host:   "127.0.0.1",
		Port:   3306,
		Schema: "oscar",
		Table:  "demographic",
	},

	CDC: CDCConfiguration{
		ServerID:           0, // Derive from instance id
		Flavor:             "mysql",
		HeartbeatSeconds:   30,
		ResolveColumnNames: true,
		CheckpointDir:      "./fhirsync-data",
	},

	Bus: BusConfiguration{
		Capacity: 1024,
	},

	GRPC: GRPCConfiguration{
		BindAddress:      "0.0.0.0",
		Port:             50051,
		MaxMessageSizeMB: 16,
		CompressionLevel: 0,
	},

	HTTP: HTTPConfiguration{
		BindAddress: "0.0.0.0",
		Port:        8080,
	},

	Store: StoreConfiguration{
		Enabled: false,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},
}

// Load loads configuration from file and applies CLI overrides.
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *GRPCPortFlag != 0 {
		Config.GRPC.Port = *GRPCPortFlag
	}
	if *HTTPPortFlag != 0 {
		Config.HTTP.Port = *HTTPPortFlag
	}
	if *VerboseFlag {
		Config.Logging.Verbose = true
	}

	// Auto-generate instance ID if not set
	if Config.InstanceID == 0 {
		var err error
		Config.InstanceID, err = generateInstanceID()
		if err != nil {
			return fmt.Errorf("failed to generate instance ID: %w", err)
		}
		log.Info().Uint64("instance_id", Config.InstanceID).Msg("Auto-generated instance ID")
	}

	if Config.CDC.CheckpointDir != "" {
		if err := os.MkdirAll(Config.CDC.CheckpointDir, 0755); err != nil {
			return fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}

	return nil
}

// generateInstanceID creates a unique instance ID based on machine ID.
func generateInstanceID() (uint64, error) {
	id, err := machineid.ProtectedID("fhir-sync")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// ReplicationServerID returns the server id the binlog client presents
// to the source database. Each replication client connected to the same
// primary must use a distinct id.
func ReplicationServerID() uint32 {
	if Config.CDC.ServerID != 0 {
		return Config.CDC.ServerID
	}
	// Fold the instance id down to 32 bits, avoiding the reserved 0.
	id := uint32(Config.InstanceID ^ (Config.InstanceID >> 32))
	if id == 0 {
		id = 1
	}
	return id
}

// Validate checks configuration for errors.
func Validate() error {
	if Config.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if Config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if Config.Database.Port < 1 || Config.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", Config.Database.Port)
	}
	if Config.Database.Table == "" {
		return fmt.Errorf("tracked table name is required")
	}

	if Config.CDC.Flavor != "mysql" && Config.CDC.Flavor != "mariadb" {
		return fmt.Errorf("invalid CDC flavor: %s", Config.CDC.Flavor)
	}
	if Config.CDC.HeartbeatSeconds < 0 {
		return fmt.Errorf("CDC heartbeat must be >= 0 seconds")
	}

	if Config.Bus.Capacity < 1 {
		return fmt.Errorf("bus capacity must be >= 1")
	}

	if Config.GRPC.Port < 1 || Config.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", Config.GRPC.Port)
	}
	if Config.GRPC.MaxMessageSizeMB < 1 {
		return fmt.Errorf("gRPC max message size must be >= 1 MB")
	}
	if Config.GRPC.CompressionLevel < 0 || Config.GRPC.CompressionLevel > 4 {
		return fmt.Errorf("gRPC compression level must be between 0 and 4")
	}

	if Config.HTTP.Port < 1 || Config.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", Config.HTTP.Port)
	}
	if Config.HTTP.Port == Config.GRPC.Port {
		return fmt.Errorf("HTTP and gRPC ports must differ")
	}

	for _, sink := range Config.Sinks {
		if sink.Name == "" {
			return fmt.Errorf("sink name is required")
		}
		switch sink.Type {
		case "nats":
			if sink.NatsURL == "" {
				return fmt.Errorf("sink %q: nats sink requires nats_url", sink.Name)
			}
		case "kafka":
			if len(sink.Brokers) == 0 {
				return fmt.Errorf("sink %q: kafka sink requires at least one broker", sink.Name)
			}
		default:
			return fmt.Errorf("sink %q: unknown sink type: %s", sink.Name, sink.Type)
		}
		if sink.RetryMultiplier < 0 {
			return fmt.Errorf("sink %q: retry multiplier must be >= 0", sink.Name)
		}
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	return nil
}

// SourceDSN returns the Go SQL driver DSN for the replication source
// schema, used by the optional read-back store.
func SourceDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
		Config.Database.User,
		Config.Database.Password,
		Config.Database.Host,
		Config.Database.Port,
		Config.Database.Schema,
	)
}
