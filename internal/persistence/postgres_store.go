package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/petrijr/processo/pkg/api"
)

// PostgresInstanceStore is an InstanceStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver. The caller is
// responsible for importing the driver for its side effects, e.g.:
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
type PostgresInstanceStore struct {
	db *sql.DB
}

// Ensure PostgresInstanceStore implements InstanceStore.
var _ InstanceStore = (*PostgresInstanceStore)(nil)

// NewPostgresInstanceStore initializes the required schema in the given
// database and returns a new PostgresInstanceStore.
func NewPostgresInstanceStore(db *sql.DB) (*PostgresInstanceStore, error) {
	s := &PostgresInstanceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresInstanceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS process_instances (
			id TEXT PRIMARY KEY,
			process_name TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step INTEGER NOT NULL,
			params BYTEA,
			executed BYTEA,
			awaiting BYTEA,
			error TEXT,
			lease_owner TEXT NOT NULL DEFAULT '',
			lease_until BIGINT NOT NULL DEFAULT 0
		);
	`)
	return err
}

func (s *PostgresInstanceStore) SaveInstance(inst *api.ProcessInstance) error {
	params, executed, awaiting, errStr, err := encodeInstanceFields(inst)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO process_instances (id, process_name, status, current_step, params, executed, awaiting, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
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

func (s *PostgresInstanceStore) UpdateInstance(inst *api.ProcessInstance) error {
	params, executed, awaiting, errStr, err := encodeInstanceFields(inst)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE process_instances
		SET process_name = $1,
		    status       = $2,
		    current_step = $3,
		    params       = $4,
		    executed     = $5,
		    awaiting     = $6,
		    error        = $7
		WHERE id = $8
	`,
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

func (s *PostgresInstanceStore) GetInstance(id string) (*api.ProcessInstance, error) {
	row := s.db.QueryRow(`
		SELECT id, process_name, status, current_step, params, executed, awaiting, error
		FROM process_instances
		WHERE id = $1
	`,
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

func (s *PostgresInstanceStore) ListInstances(filter InstanceFilter) ([]*api.ProcessInstance, error) {
	query := `
		SELECT id, process_name, status, current_step, params, executed, awaiting, error
		FROM process_instances`
	var args []any
	var clauses []string

	if filter.ProcessName != "" {
		clauses = append(clauses, fmt.Sprintf("process_name = $%d", len(args)+1))
		args = append(args, filter.ProcessName)
	}
	if filter.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)+1))
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

func (s *PostgresInstanceStore) TryAcquireLease(ctx context.Context, instanceID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE process_instances
		SET lease_owner = $1, lease_until = $2
		WHERE id = $3 AND (lease_owner = '' OR lease_owner = $1 OR lease_until < $4)`,
		owner,
		now.Add(ttl).UnixNano(),
		instanceID,
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

func (s *PostgresInstanceStore) RenewLease(ctx context.Context, instanceID, owner string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE process_instances
		SET lease_until = $1
		WHERE id = $2 AND lease_owner = $3`,
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

func (s *PostgresInstanceStore) ReleaseLease(ctx context.Context, instanceID, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE process_instances
		SET lease_owner = '', lease_until = 0
		WHERE id = $1 AND lease_owner = $2`,
		instanceID,
		owner,
	)
	return err
}
