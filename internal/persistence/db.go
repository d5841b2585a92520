// Package persistence provides SQLite-based storage of the chain
// journal: traces, shipments, jobs and resolved decisions.
package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/chainflow/internal/job"
	"github.com/talgya/chainflow/internal/report"
	"github.com/talgya/chainflow/internal/shipment"
	"github.com/talgya/chainflow/internal/trace"
)

// DB wraps a SQLite connection for chain state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS traces (
		id TEXT PRIMARY KEY,
		material TEXT NOT NULL,
		quantity REAL NOT NULL,
		location TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_updated TEXT NOT NULL,
		steps_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shipments (
		id TEXT PRIMARY KEY,
		material TEXT NOT NULL,
		quantity REAL NOT NULL,
		accepted_quantity REAL NOT NULL,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		quality REAL NOT NULL,
		cost REAL NOT NULL,
		zone TEXT,
		route TEXT,
		status TEXT NOT NULL,
		transit_seconds REAL NOT NULL,
		on_time INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		recipe TEXT NOT NULL,
		batch_size REAL NOT NULL,
		output_material TEXT NOT NULL,
		output_quantity REAL NOT NULL,
		quality REAL NOT NULL,
		quality_standard TEXT,
		status TEXT NOT NULL,
		energy_cost REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decisions (
		request_id TEXT PRIMARY KEY,
		trace_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		values_json TEXT NOT NULL,
		resolved_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chain_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_agent ON jobs(agent_id);
	CREATE INDEX IF NOT EXISTS idx_decisions_trace ON decisions(trace_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveTraces writes all traces to the database (full replace).
func (db *DB) SaveTraces(traces []*trace.Trace) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM traces"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO traces
		(id, material, quantity, location, created_at, last_updated, steps_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range traces {
		stepsJSON, _ := json.Marshal(t.Steps)
		_, err := stmt.Exec(
			t.ID, t.CurrentMaterial, t.CurrentQuantity, t.CurrentLocation,
			t.CreatedAt.Format(timeLayout), t.LastUpdated.Format(timeLayout),
			string(stepsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert trace %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// SaveShipments writes completed shipments (full replace).
func (db *DB) SaveShipments(shipments []*shipment.Shipment) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM shipments"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO shipments
		(id, material, quantity, accepted_quantity, origin, destination,
		 quality, cost, zone, route, status, transit_seconds, on_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range shipments {
		onTime := 0
		if s.OnTime {
			onTime = 1
		}
		_, err := stmt.Exec(
			s.ID, s.Material, s.Quantity, s.AcceptedQuantity,
			s.Origin, s.Destination, s.Quality, s.Cost,
			s.Zone, s.Route, string(s.Status),
			s.TransitTime.Seconds(), onTime,
		)
		if err != nil {
			return fmt.Errorf("insert shipment %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// SaveJobs writes finished jobs for an agent (full replace per agent).
func (db *DB) SaveJobs(agentID string, jobs []*job.Job) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM jobs WHERE agent_id = ?", agentID); err != nil {
		return err
	}

	for _, j := range jobs {
		_, err := tx.Exec(`INSERT INTO jobs
			(id, agent_id, recipe, batch_size, output_material, output_quantity,
			 quality, quality_standard, status, energy_cost)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID, agentID, j.Recipe.Name, j.BatchSize,
			j.ExpectedOutputMaterial, j.ActualOutputQuantity,
			j.ActualQuality, j.QualityStandard, string(j.Status), j.EnergyCost,
		)
		if err != nil {
			return fmt.Errorf("insert job %s: %w", j.ID, err)
		}
	}

	return tx.Commit()
}

// SaveDecisions appends resolved decisions, skipping ones already saved.
func (db *DB) SaveDecisions(records []report.DecisionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range records {
		valuesJSON, _ := json.Marshal(r.Values)
		_, err := tx.Exec(`INSERT OR IGNORE INTO decisions
			(request_id, trace_id, agent_id, operation, values_json, resolved_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.RequestID, r.TraceID, r.AgentID, r.Operation,
			string(valuesJSON), r.ResolvedAt.Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("insert decision %s: %w", r.RequestID, err)
		}
	}

	return tx.Commit()
}

// SaveMetrics stores the run's aggregate metrics under chain metadata.
func (db *DB) SaveMetrics(m report.Metrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return db.SaveMeta("final_metrics", string(data))
}

// SaveMeta stores a key-value pair in chain metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO chain_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM chain_meta WHERE key = ?", key)
	return value, err
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"
