package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/processo/pkg/api"
)

// SQLiteInstanceStore is an InstanceStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteInstanceStore struct {
	db *sql.DB
}

// Ensure SQLiteInstanceStore implements InstanceStore.
var _ InstanceStore = (*SQLiteInstanceStore)(nil)

// NewSQLiteInstanceStore initializes the required schema in the given
// database and returns a new SQLiteInstanceStore.
func NewSQLiteInstanceStore(db *sql.DB) (*SQLiteInstanceStore, error) {
	s := &SQLiteInstanceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteInstanceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS process_instances (
			id TEXT PRIMARY KEY,
			process_name TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step INTEGER NOT NULL,
			params BLOB,
			executed BLOB,
			awaiting BLOB,
			error TEXT,
			lease_owner TEXT NOT NULL DEFAULT '',
			lease_until INTEGER NOT NULL DEFAULT 0
		);`,
	)
	return err
}

func (s *SQLiteInstanceStore) SaveInstance(inst *api.ProcessInstance) error {
	params, executed, awaiting, errStr, err := encodeInstanceFields(inst)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO process_instances (id, process_name, status, current_step, params, executed, awaiting, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID,
		inst.Name,
		string(inst.Status),
		inst.CurrentStep,
		params,
		executed,
		awaiting,
		errStr,
	)
	return err
}

func (s *SQLiteInstanceStore) UpdateInstance(inst *api.ProcessInstance) error {
	params, executed, awaiting, errStr, err := encodeInstanceFields(inst)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE process_instances
		SET process_name = ?, status = ?, current_step = ?, params = ?, executed = ?, awaiting = ?, error = ?
		WHERE id = ?`,
		inst.Name,
		string(inst.Status),
		inst.CurrentStep,
		params,
		executed,
		awaiting,
		errStr,
		inst.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}

	return nil
}

func (s *SQLiteInstanceStore) GetInstance(id string) (*api.ProcessInstance, error) {
	row := s.db.QueryRow(`
		SELECT id, process_name, status, current_step, params, executed, awaiting, error
		FROM process_instances
		WHERE id = ?`,
		id,
	)

	inst, err := scanInstance(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return inst, nil
}

func (s *SQLiteInstanceStore) ListInstances(filter InstanceFilter) ([]*api.ProcessInstance, error) {
	query := `
		SELECT id, process_name, status, current_step, params, executed, awaiting, error
		FROM process_instances`
	var args []any
	var clauses []string

	if filter.ProcessName != "" {
		clauses = append(clauses, "process_name = ?")
		args = append(args, filter.ProcessName)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*api.ProcessInstance

	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return instances, nil
}

func (s *SQLiteInstanceStore) TryAcquireLease(ctx context.Context, instanceID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE process_instances
		SET lease_owner = ?, lease_until = ?
		WHERE id = ? AND (lease_owner = '' OR lease_owner = ? OR lease_until < ?)`,
		owner,
		now.Add(ttl).UnixNano(),
		instanceID,
		owner,
		now.UnixNano(),
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLiteInstanceStore) RenewLease(ctx context.Context, instanceID, owner string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE process_instances
		SET lease_until = ?
		WHERE id = ? AND lease_owner = ?`,
		time.Now().Add(ttl).UnixNano(),
		instanceID,
		owner,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

func (s *SQLiteInstanceStore) ReleaseLease(ctx context.Context, instanceID, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE process_instances
		SET lease_owner = '', lease_until = 0
		WHERE id = ? AND lease_owner = ?`,
		instanceID,
		owner,
	)
	return err
}

// encodeInstanceFields gob-encodes the variable-width instance fields for
// SQL storage.
func encodeInstanceFields(inst *api.ProcessInstance) (params, executed, awaiting []byte, errStr string, err error) {
	params, err = encodeValue(inst.Params)
	if err != nil {
		return nil, nil, nil, "", err
	}
	executed, err = encodeValue(inst.Executed)
	if err != nil {
		return nil, nil, nil, "", err
	}
	awaiting, err = encodeValue(inst.AwaitingParams)
	if err != nil {
		return nil, nil, nil, "", err
	}
	if inst.Err != nil {
		errStr = inst.Err.Error()
	}
	return params, executed, awaiting, errStr, nil
}

// scanInstance decodes one instance row. scan is row.Scan or rows.Scan.
func scanInstance(scan func(dest ...any) error) (*api.ProcessInstance, error) {
	var inst api.ProcessInstance
	var statusStr string
	var params, executed, awaiting []byte
	var errStr sql.NullString

	if err := scan(&inst.ID, &inst.Name, &statusStr, &inst.CurrentStep, &params, &executed, &awaiting, &errStr); err != nil {
		return nil, err
	}

	inst.Status = api.Status(statusStr)

	paramsVal, err := decodeValue[map[string]any](params)
	if err != nil {
		return nil, err
	}
	inst.Params = paramsVal

	executedVal, err := decodeValue[[]int](executed)
	if err != nil {
		return nil, err
	}
	inst.Executed = executedVal

	awaitingVal, err := decodeValue[[]string](awaiting)
	if err != nil {
		return nil, err
	}
	inst.AwaitingParams = awaitingVal

	if errStr.Valid && errStr.String != "" {
		inst.Err = errors.New(errStr.String)
	}

	return &inst, nil
}
