package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/itohio/freistat/pkg/method"
	"github.com/itohio/freistat/pkg/sample"
	"github.com/itohio/freistat/pkg/store"
	"github.com/itohio/freistat/pkg/wire"
)

// ErrRunNotFound is returned by Load for a run id the archive does not hold.
var ErrRunNotFound = errors.New("run not found")

// Archive is a SQLite database collecting finished runs.
type Archive struct {
	db     *sql.DB
	dbPath string
}

// OpenArchive creates or opens the archive at dbPath.
func OpenArchive(dbPath string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers on the file.
	db.SetMaxOpenConns(1)

	a := &Archive{
		db:     db,
		dbPath: dbPath,
	}

	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Path returns the database file path.
func (a *Archive) Path() string {
	return a.dbPath
}

func (a *Archive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		is_sequence INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		method TEXT NOT NULL,
		params TEXT NOT NULL,
		error TEXT,
		PRIMARY KEY (run_id, position)
	);

	CREATE TABLE IF NOT EXISTS samples (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		sequence_cycle INTEGER NOT NULL,
		cycle INTEGER NOT NULL,
		datapoint INTEGER NOT NULL,
		voltage_mv REAL NOT NULL,
		current_ua REAL,
		elapsed REAL NOT NULL,
		sequence_elapsed REAL NOT NULL,
		total_elapsed REAL NOT NULL,
		flushed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, position, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_records_method ON records(method);
	CREATE INDEX IF NOT EXISTS idx_samples_cycle ON samples(run_id, position, cycle);
	`

	_, err := a.db.Exec(schema)
	return err
}

// Save writes every record of st in one transaction. Saving the same run
// twice replaces the earlier copy.
func (a *Archive) Save(ctx context.Context, st *store.Store) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := st.RunID().String()
	for _, q := range []string{
		`DELETE FROM samples WHERE run_id = ?`,
		`DELETE FROM records WHERE run_id = ?`,
		`DELETE FROM runs WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("failed to clear run: %w", err)
		}
	}

	seq := 0
	if IsSequence(st) {
		seq = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, is_sequence, created_at) VALUES (?, ?, ?)`,
		id, seq, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	insRecord, err := tx.PrepareContext(ctx,
		`INSERT INTO records (run_id, position, method, params, error) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer insRecord.Close()

	insSample, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (run_id, position, seq, sequence_cycle, cycle, datapoint, voltage_mv, current_ua, elapsed, sequence_elapsed, total_elapsed, flushed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer insSample.Close()

	for pos, rec := range st.Records() {
		var recErr sql.NullString
		if err := rec.Err(); err != nil {
			recErr = sql.NullString{String: err.Error(), Valid: true}
		}
		params := wire.Object(rec.Params().Members()...).String()
		if _, err := insRecord.ExecContext(ctx, id, pos, rec.Method().String(), params, recErr); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", pos, err)
		}

		n := 0
		for _, cycle := range rec.Cycles() {
			last := -1
			for i, s := range cycle {
				if !s.IsSentinel() {
					last = i
				}
			}
			for i, s := range cycle {
				if s.IsSentinel() {
					continue
				}
				var current sql.NullFloat64
				if s.HasCurrent {
					current = sql.NullFloat64{Float64: s.Current, Valid: true}
				}
				flushed := 0
				if i == last {
					flushed = 1
				}
				if _, err := insSample.ExecContext(ctx, id, pos, n, s.SequenceCycle, s.Cycle, s.Datapoint,
					s.Voltage, current, s.Elapsed, s.SequenceElapsed, s.TotalElapsed, flushed); err != nil {
					return fmt.Errorf("failed to insert sample: %w", err)
				}
				n++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// RecordSummary is one archived record.
type RecordSummary struct {
	Position int
	Method   string
	Params   string
	Err      string
	Samples  int
}

// Records lists the archived records of a run in position order.
func (a *Archive) Records(ctx context.Context, runID string) ([]RecordSummary, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT r.position, r.method, r.params, COALESCE(r.error, ''),
			(SELECT COUNT(*) FROM samples s WHERE s.run_id = r.run_id AND s.position = r.position)
		FROM records r
		WHERE r.run_id = ?
		ORDER BY r.position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []RecordSummary
	for rows.Next() {
		var r RecordSummary
		if err := rows.Scan(&r.Position, &r.Method, &r.Params, &r.Err, &r.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Load rebuilds the store of an archived run. Records come back sealed, with
// their parameters, setup failures and cycle boundaries; the end-of-stream
// sentinels of a sequence are not archived and are not restored.
func (a *Archive) Load(ctx context.Context, runID string) (*store.Store, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}

	var seq int
	err = a.db.QueryRowContext(ctx, `SELECT is_sequence FROM runs WHERE id = ?`, id.String()).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	st := store.NewWithID(id)
	records, err := a.loadRecords(ctx, st, id.String())
	if err != nil {
		return nil, err
	}
	if err := a.loadSamples(ctx, records, id.String()); err != nil {
		return nil, err
	}

	st.Seal()
	st.First()
	return st, nil
}

func (a *Archive) loadRecords(ctx context.Context, st *store.Store, id string) (map[int]*store.Record, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT position, method, params, error
		FROM records
		WHERE run_id = ?
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := make(map[int]*store.Record)
	for rows.Next() {
		var (
			pos    int
			kind   string
			text   string
			recErr sql.NullString
		)
		if err := rows.Scan(&pos, &kind, &text, &recErr); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		k, err := method.ParseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", pos, err)
		}
		ps, err := decodeParams(text)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", pos, err)
		}

		var rec *store.Record
		if k == method.SEQ {
			rec = st.AddMeta(ps)
		} else {
			rec = st.Create(k)
			if err := rec.SetParams(ps); err != nil {
				return nil, err
			}
		}
		if recErr.Valid {
			rec.Fail(errors.New(recErr.String))
		}
		records[pos] = rec
	}
	return records, rows.Err()
}

func (a *Archive) loadSamples(ctx context.Context, records map[int]*store.Record, id string) error {
	rows, err := a.db.QueryContext(ctx, `
		SELECT position, sequence_cycle, cycle, datapoint, voltage_mv, current_ua,
			elapsed, sequence_elapsed, total_elapsed, flushed
		FROM samples
		WHERE run_id = ?
		ORDER BY position, seq`, id)
	if err != nil {
		return fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pos     int
			s       sample.Sample
			current sql.NullFloat64
			flushed int
		)
		if err := rows.Scan(&pos, &s.SequenceCycle, &s.Cycle, &s.Datapoint, &s.Voltage, &current,
			&s.Elapsed, &s.SequenceElapsed, &s.TotalElapsed, &flushed); err != nil {
			return fmt.Errorf("failed to scan sample: %w", err)
		}
		rec, ok := records[pos]
		if !ok {
			return fmt.Errorf("sample of unknown record %d", pos)
		}
		s.Current, s.HasCurrent = current.Float64, current.Valid
		s.Method = rec.Method()
		if err := rec.Append(s); err != nil {
			return err
		}
		if flushed != 0 {
			rec.Flush()
		}
	}
	return rows.Err()
}

// decodeParams parses the parameter object written by Save.
func decodeParams(text string) (method.Params, error) {
	v, _, err := wire.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decode params: %w", err)
	}
	if v.Len() == 0 {
		return nil, nil
	}
	return method.FromMembers(v.Members())
}
