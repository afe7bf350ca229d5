// Package cdc taps the source database's binary replication log and
// turns row mutations on the tracked demographic table into domain
// events.
package cdc

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/rs/zerolog/log"

	"github.com/ArsMedicaTech/fhir-sync/bus"
	"github.com/ArsMedicaTech/fhir-sync/cfg"
	"github.com/ArsMedicaTech/fhir-sync/domain"
	"github.com/ArsMedicaTech/fhir-sync/telemetry"
)

// Listener session states. A connection fault is terminal for the
// session: there is no paused state and no internal retry.
type listenerState int

const (
	stateDisconnected listenerState = iota
	stateConnecting
	stateStreaming
)

func (s listenerState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

// Listener owns the replication-log connection. It reads log records
// continuously and publishes one PatientUpsert event per row mutation
// on the tracked table.
type Listener struct {
	mapper     *Mapper
	producer   *bus.Producer
	checkpoint *Checkpoint // nil = no durable position, start at log head
	schemas    *SchemaCache

	state listenerState
}

// NewListener wires the listener to its bus producer. checkpoint may
// be nil, in which case every session starts at the server's current
// log position.
func NewListener(mapper *Mapper, producer *bus.Producer, checkpoint *Checkpoint) (*Listener, error) {
	schemas, err := NewSchemaCache()
	if err != nil {
		return nil, fmt.Errorf("failed to create schema cache: %w", err)
	}
	return &Listener{
		mapper:     mapper,
		producer:   producer,
		checkpoint: checkpoint,
		schemas:    schemas,
	}, nil
}

// Run connects to the binlog and streams until ctx is cancelled or a
// fatal stream fault occurs. Faults are not retried here; the
// supervisor decides what a listener exit means for the process.
func (l *Listener) Run(ctx context.Context) error {
	l.setState(stateConnecting)

	pos, err := l.startPosition(ctx)
	if err != nil {
		l.setState(stateDisconnected)
		return fmt.Errorf("failed to determine start position: %w", err)
	}

	syncer := replication.NewBinlogSyncer(replication.BinlogSyncerConfig{
		ServerID:        cfg.ReplicationServerID(),
		Flavor:          cfg.Config.CDC.Flavor,
		Host:            cfg.Config.Database.Host,
		Port:            uint16(cfg.Config.Database.Port),
		User:            cfg.Config.Database.User,
		Password:        cfg.Config.Database.Password,
		Charset:         "utf8mb4",
		HeartbeatPeriod: time.Duration(cfg.Config.CDC.HeartbeatSeconds) * time.Second,
	})
	defer syncer.Close()

	streamer, err := syncer.StartSync(mysql.Position{Name: pos.File, Pos: pos.Offset})
	if err != nil {
		l.setState(stateDisconnected)
		return fmt.Errorf("failed to start binlog sync at %s: %w", pos, err)
	}

	l.setState(stateStreaming)
	log.Info().
		Str("position", pos.String()).
		Str("table", l.mapper.Table()).
		Msg("Connected to binlog, streaming")

	currentFile := pos.File
	for {
		ev, err := streamer.GetEvent(ctx)
		if err != nil {
			l.setState(stateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("binlog stream fault: %w", err)
		}

		switch e := ev.Event.(type) {
		case *replication.RotateEvent:
			telemetry.BinlogEventsTotal.With("rotate").Inc()
			currentFile = string(e.NextLogName)

		case *replication.TableMapEvent:
			telemetry.BinlogEventsTotal.With("table_map").Inc()
			l.schemas.Put(e.TableID, &TableSchema{
				Schema:      string(e.Schema),
				Table:       string(e.Table),
				ColumnNames: columnNamesOf(e),
			})

		case *replication.RowsEvent:
			telemetry.BinlogEventsTotal.With("rows").Inc()
			if err := l.handleRows(ctx, ev.Header, e); err != nil {
				l.setState(stateDisconnected)
				return err
			}
			if err := l.storeCheckpoint(currentFile, ev.Header.LogPos); err != nil {
				log.Warn().Err(err).Msg("Failed to store binlog checkpoint")
			}

		default:
			// Heartbeats, format descriptions, GTIDs and other
			// housekeeping records carry no row data.
			telemetry.BinlogEventsTotal.With("other").Inc()
		}
	}
}

// handleRows maps the row images of one mutation record and publishes
// the results. Inserts, updates and deletes all collapse to the same
// PatientUpsert variant.
func (l *Listener) handleRows(ctx context.Context, header *replication.EventHeader, e *replication.RowsEvent) error {
	table := string(e.Table.Table)
	if table != l.mapper.Table() {
		telemetry.BinlogRowsSkipped.With("untracked_table").Add(float64(len(e.Rows)))
		return nil
	}

	var names []string
	if schema, ok := l.schemas.Get(e.Table.TableID); ok {
		names = schema.ColumnNames
	}

	for _, row := range rowImages(header.EventType, e.Rows) {
		patient, ok := l.mapper.MapRow(table, names, row)
		if !ok {
			telemetry.BinlogRowsSkipped.With("unmappable").Inc()
			continue
		}

		ev := domain.NewPatientUpsert(domain.OriginCDC, patient)
		if err := l.producer.Publish(ctx, ev); err != nil {
			return fmt.Errorf("failed to publish CDC event: %w", err)
		}
		telemetry.BinlogRowsMapped.Inc()

		log.Debug().
			Str("demographic_no", patient.DemographicNo).
			Str("table", table).
			Msg("Published patient upsert from binlog")
	}

	return nil
}

// rowImages selects the row images to map for an event type. Update
// records interleave before/after pairs; only the after image carries
// the new state. Delete records expose the before image, which still
// identifies the patient.
func rowImages(eventType replication.EventType, rows [][]interface{}) [][]interface{} {
	switch eventType {
	case replication.UPDATE_ROWS_EVENTv0,
		replication.UPDATE_ROWS_EVENTv1,
		replication.UPDATE_ROWS_EVENTv2:
		images := make([][]interface{}, 0, len(rows)/2)
		for i := 1; i < len(rows); i += 2 {
			images = append(images, rows[i])
		}
		return images
	default:
		return rows
	}
}

// columnNamesOf extracts optional row metadata column names. Most
// servers only emit them with binlog_row_metadata=FULL.
func columnNamesOf(e *replication.TableMapEvent) []string {
	if len(e.ColumnName) == 0 {
		return nil
	}
	names := make([]string, len(e.ColumnName))
	for i, n := range e.ColumnName {
		names[i] = string(n)
	}
	return names
}

// startPosition resolves where the session begins: the durable
// checkpoint when one exists, otherwise the server's current log head.
// Starting at the head silently skips anything written while the
// process was down; the checkpoint store exists to close that gap.
func (l *Listener) startPosition(ctx context.Context) (Position, error) {
	if l.checkpoint != nil {
		pos, err := l.checkpoint.Load()
		if err != nil {
			return Position{}, err
		}
		if !pos.IsZero() {
			log.Info().Str("position", pos.String()).Msg("Resuming from stored checkpoint")
			return pos, nil
		}
	}

	pos, err := masterPosition(ctx)
	if err != nil {
		return Position{}, err
	}
	log.Info().Str("position", pos.String()).Msg("No checkpoint, starting at current log head")
	return pos, nil
}

// storeCheckpoint persists the position after a processed row batch.
func (l *Listener) storeCheckpoint(file string, offset uint32) error {
	if l.checkpoint == nil {
		return nil
	}
	return l.checkpoint.Store(Position{File: file, Offset: offset})
}

func (l *Listener) setState(s listenerState) {
	if l.state != s {
		log.Debug().Str("from", l.state.String()).Str("to", s.String()).Msg("CDC listener state change")
		l.state = s
	}
}

// masterPosition queries the server for its current binlog head.
// The result column layout varies across server versions, so only the
// leading file/position pair is read.
func masterPosition(ctx context.Context) (Position, error) {
	db, err := sql.Open("mysql", cfg.SourceDSN())
	if err != nil {
		return Position{}, fmt.Errorf("failed to open source connection: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SHOW MASTER STATUS")
	if err != nil {
		return Position{}, fmt.Errorf("failed to query master status: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return Position{}, fmt.Errorf("source reported no binlog status; is binary logging enabled?")
	}

	cols, err := rows.Columns()
	if err != nil {
		return Position{}, err
	}

	values := make([]interface{}, len(cols))
	var file string
	var offset uint32
	values[0] = &file
	values[1] = &offset
	for i := 2; i < len(values); i++ {
		values[i] = new(sql.RawBytes)
	}
	if err := rows.Scan(values...); err != nil {
		return Position{}, fmt.Errorf("failed to scan master status: %w", err)
	}

	return Position{File: file, Offset: offset}, rows.Err()
}
