package cdc

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/ArsMedicaTech/fhir-sync/encoding"
	"github.com/ArsMedicaTech/fhir-sync/telemetry"
)

// checkpointKey is the single Pebble key holding the last applied
// binlog position.
const checkpointKey = "/checkpoint/binlog_position"

// Position identifies a point in the source's binary log.
type Position struct {
	File   string `msgpack:"file"`
	Offset uint32 `msgpack:"offset"`
}

// IsZero reports whether the position is unset.
func (p Position) IsZero() bool {
	return p.File == "" && p.Offset == 0
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.File, p.Offset)
}

// Checkpoint is a Pebble-backed durable store of the replication
// position. Writes go through a small in-memory copy so Load never
// touches disk after the first read.
type Checkpoint struct {
	db *pebble.DB

	mu     sync.Mutex
	cached Position
	loaded bool
}

// OpenCheckpoint opens (or creates) the checkpoint store in dir.
func OpenCheckpoint(dir string) (*Checkpoint, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	return &Checkpoint{db: db}, nil
}

// Load returns the last stored position. A zero position means no
// checkpoint exists yet and the listener should start at the log head.
func (c *Checkpoint) Load() (Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return c.cached, nil
	}

	val, closer, err := c.db.Get([]byte(checkpointKey))
	if err == pebble.ErrNotFound {
		c.loaded = true
		return Position{}, nil
	}
	if err != nil {
		return Position{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	defer closer.Close()

	var pos Position
	if err := encoding.Unmarshal(val, &pos); err != nil {
		return Position{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	c.cached = pos
	c.loaded = true
	return pos, nil
}

// Store durably records the position. Positions never move backwards:
// a stale store attempt is ignored so replays cannot regress the
// resume point.
func (c *Checkpoint) Store(pos Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && pos.File == c.cached.File && pos.Offset <= c.cached.Offset {
		return nil
	}

	data, err := encoding.Marshal(pos)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := c.db.Set([]byte(checkpointKey), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}

	c.cached = pos
	c.loaded = true
	telemetry.CheckpointPosition.Set(float64(pos.Offset))
	return nil
}

// Close closes the underlying store.
func (c *Checkpoint) Close() error {
	return c.db.Close()
}
