package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Configuration {
	return &Configuration{
		InstanceID: 1,
		Database: DatabaseConfiguration{
			User:   "replicator",
			Host:   "127.0.0.1",
			Port:   3306,
			Schema: "oscar",
			Table:  "demographic",
		},
		CDC: CDCConfiguration{
			Flavor:           "mysql",
			HeartbeatSeconds: 30,
		},
		Bus:  BusConfiguration{Capacity: 1024},
		GRPC: GRPCConfiguration{BindAddress: "0.0.0.0", Port: 50051, MaxMessageSizeMB: 16},
		HTTP: HTTPConfiguration{BindAddress: "0.0.0.0", Port: 8080},
		Logging: LoggingConfiguration{
			Format: "console",
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	require.NoError(t, Validate())
}

func TestValidate_Errors(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	cases := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"missing user", func(c *Configuration) { c.Database.User = "" }},
		{"missing host", func(c *Configuration) { c.Database.Host = "" }},
		{"bad db port", func(c *Configuration) { c.Database.Port = 0 }},
		{"missing table", func(c *Configuration) { c.Database.Table = "" }},
		{"bad flavor", func(c *Configuration) { c.CDC.Flavor = "postgres" }},
		{"bad bus capacity", func(c *Configuration) { c.Bus.Capacity = 0 }},
		{"bad grpc port", func(c *Configuration) { c.GRPC.Port = 70000 }},
		{"bad compression", func(c *Configuration) { c.GRPC.CompressionLevel = 9 }},
		{"port collision", func(c *Configuration) { c.HTTP.Port = c.GRPC.Port }},
		{"bad log format", func(c *Configuration) { c.Logging.Format = "xml" }},
		{"unnamed sink", func(c *Configuration) {
			c.Sinks = []SinkConfiguration{{Type: "nats", NatsURL: "nats://localhost:4222"}}
		}},
		{"nats sink without url", func(c *Configuration) {
			c.Sinks = []SinkConfiguration{{Name: "n", Type: "nats"}}
		}},
		{"kafka sink without brokers", func(c *Configuration) {
			c.Sinks = []SinkConfiguration{{Name: "k", Type: "kafka"}}
		}},
		{"unknown sink type", func(c *Configuration) {
			c.Sinks = []SinkConfiguration{{Name: "x", Type: "rabbitmq"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			Config = validConfig()
			tc.mutate(Config)
			assert.Error(t, Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = validConfig()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
instance_id = 42

[database]
user = "repl"
password = "secret"
host = "db.internal"
port = 3307
schema = "oscar"
table = "demographic"

[cdc]
flavor = "mysql"
checkpoint_dir = "` + filepath.Join(dir, "data") + `"

[grpc]
port = 50052

[[sink]]
name = "events"
type = "nats"
nats_url = "nats://localhost:4222"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, Load(path))

	assert.Equal(t, uint64(42), Config.InstanceID)
	assert.Equal(t, "repl", Config.Database.User)
	assert.Equal(t, "db.internal", Config.Database.Host)
	assert.Equal(t, 3307, Config.Database.Port)
	assert.Equal(t, 50052, Config.GRPC.Port)
	require.Len(t, Config.Sinks, 1)
	assert.Equal(t, "events", Config.Sinks[0].Name)

	// Checkpoint directory is created on load.
	_, err := os.Stat(filepath.Join(dir, "data"))
	assert.NoError(t, err)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = validConfig()
	Config.CDC.CheckpointDir = ""

	require.NoError(t, Load(filepath.Join(t.TempDir(), "absent.toml")))
	assert.Equal(t, "demographic", Config.Database.Table)
}

func TestReplicationServerID(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = validConfig()

	Config.CDC.ServerID = 77
	assert.Equal(t, uint32(77), ReplicationServerID())

	Config.CDC.ServerID = 0
	Config.InstanceID = 0x1_0000_0000 // Folds to 1
	assert.Equal(t, uint32(1), ReplicationServerID())
}

func TestSourceDSN(t *testing.T) {
	original := Config
	defer func() { Config = original }()
	Config = validConfig()
	Config.Database.Password = "pw"

	assert.Equal(t, "replicator:pw@tcp(127.0.0.1:3306)/oscar", SourceDSN())
}
