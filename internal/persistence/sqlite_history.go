package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/processo/pkg/history"
)

// SQLiteRecordStore is a history.RecordStore backed by SQLite. Records are
// append-only; there is no update or delete path.
type SQLiteRecordStore struct {
	db *sql.DB
}

var _ history.RecordStore = (*SQLiteRecordStore)(nil)

// NewSQLiteRecordStore initializes the required schema in the given
// database and returns a new SQLiteRecordStore.
func NewSQLiteRecordStore(db *sql.DB) (*SQLiteRecordStore, error) {
	s := &SQLiteRecordStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRecordStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS history_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_type TEXT NOT NULL,
			at INTEGER NOT NULL,
			origin TEXT NOT NULL,
			target TEXT NOT NULL,
			value TEXT,
			record_group TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_history_records_target ON history_records (target);`,
	)
	return err
}

// AppendRecords writes all records in a single transaction. Either every
// record is stored or none is.
func (s *SQLiteRecordStore) AppendRecords(ctx context.Context, recs []history.Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO history_records (record_type, at, origin, target, value, record_group)
		VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx,
			string(rec.Type),
			rec.At.UnixNano(),
			rec.Origin,
			rec.Target,
			rec.Value,
			rec.Group,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteRecordStore) ListRecords(ctx context.Context, target string) ([]history.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_type, at, origin, target, value, record_group
		FROM history_records
		WHERE target = ?
		ORDER BY id ASC`,
		target,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []history.Record

	for rows.Next() {
		var rec history.Record
		var recType string
		var atNanos int64
		var value sql.NullString

		if err := rows.Scan(&rec.ID, &recType, &atNanos, &rec.Origin, &rec.Target, &value, &rec.Group); err != nil {
			return nil, err
		}

		rec.Type = history.RecordType(recType)
		rec.At = time.Unix(0, atNanos)
		rec.Value = value.String

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
