package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cfgdb/cfgdb/core/storage"
)

// Storage is the PostgreSQL implementation of the transactional store the
// command handlers write through. One row per node in nodes, at most one row
// per node in catalogs and factsets, and an append-only reports table keyed
// by the report's content hash so a redelivered command cannot double-insert.
type Storage struct {
	pool *pgxpool.Pool
}

// NewStorage creates a Storage over an established connection pool.
func NewStorage(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

func txOptions(level storage.IsolationLevel) pgx.TxOptions {
	switch level {
	case storage.LevelRepeatableRead:
		return pgx.TxOptions{IsoLevel: pgx.RepeatableRead}
	case storage.LevelSerializable:
		return pgx.TxOptions{IsoLevel: pgx.Serializable}
	default:
		return pgx.TxOptions{}
	}
}

// RunTransaction implements storage.Storage. A transaction already attached
// to the context with WithTx is joined instead of opening a new one; the
// outer owner then controls commit and rollback, and the requested isolation
// level is whatever the outer transaction was opened with.
func (s *Storage) RunTransaction(ctx context.Context, level storage.IsolationLevel, fn func(tx storage.Tx) error) error {
	if outer, ok := TxFromContext(ctx); ok {
		return fn(&pgTx{q: outer})
	}

	tx, err := s.pool.BeginTx(ctx, txOptions(level))
	if err != nil {
		return fmt.Errorf("failed to begin %s transaction: %w", level, err)
	}
	defer tx.Rollback(ctx) // Safe after commit; also fires on panic.

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	q pgx.Tx
}

var _ storage.Tx = (*pgTx)(nil)

func (t *pgTx) NodeExists(ctx context.Context, certname string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM nodes WHERE certname = $1)`,
		certname).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check node %q: %w", certname, err)
	}
	return exists, nil
}

func (t *pgTx) ActivateNode(ctx context.Context, certname string, asOf time.Time) error {
	// A deactivation newer than asOf wins: the activation request is the
	// stale party and the node stays down.
	_, err := t.q.Exec(ctx, `
		INSERT INTO nodes (certname, deactivated) VALUES ($1, NULL)
		ON CONFLICT (certname) DO UPDATE SET deactivated = NULL
		WHERE nodes.deactivated IS NOT NULL AND nodes.deactivated < $2`,
		certname, asOf)
	if err != nil {
		return fmt.Errorf("failed to activate node %q: %w", certname, err)
	}
	return nil
}

func (t *pgTx) DeactivateNode(ctx context.Context, certname string, asOf time.Time) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO nodes (certname, deactivated) VALUES ($1, $2)
		ON CONFLICT (certname) DO UPDATE SET deactivated = $2`,
		certname, asOf)
	if err != nil {
		return fmt.Errorf("failed to deactivate node %q: %w", certname, err)
	}
	return nil
}

func (t *pgTx) CurrentCatalogNewerThan(ctx context.Context, certname string, ts time.Time) (bool, error) {
	var newer bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM catalogs WHERE certname = $1 AND producer_timestamp >= $2)`,
		certname, ts).Scan(&newer)
	if err != nil {
		return false, fmt.Errorf("failed to compare catalog for %q: %w", certname, err)
	}
	return newer, nil
}

func (t *pgTx) HasNewerRecord(ctx context.Context, kind storage.RecordKind, certname string, ts time.Time) (bool, error) {
	var query string
	switch kind {
	case storage.KindCatalog:
		query = `SELECT EXISTS (SELECT 1 FROM catalogs WHERE certname = $1 AND producer_timestamp > $2)`
	case storage.KindFacts:
		query = `SELECT EXISTS (SELECT 1 FROM factsets WHERE certname = $1 AND producer_timestamp > $2)`
	case storage.KindReport:
		query = `SELECT EXISTS (SELECT 1 FROM reports WHERE certname = $1 AND producer_timestamp > $2)`
	default:
		return false, fmt.Errorf("unknown record kind %q", kind)
	}

	var newer bool
	if err := t.q.QueryRow(ctx, query, certname, ts).Scan(&newer); err != nil {
		return false, fmt.Errorf("failed to compare %s records for %q: %w", kind, certname, err)
	}
	return newer, nil
}

func (t *pgTx) ReplaceCatalog(ctx context.Context, catalog storage.Catalog) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO catalogs (certname, environment, producer_timestamp, resources, edges)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (certname) DO UPDATE SET
			environment = EXCLUDED.environment,
			producer_timestamp = EXCLUDED.producer_timestamp,
			resources = EXCLUDED.resources,
			edges = EXCLUDED.edges`,
		catalog.Certname, catalog.Environment, catalog.ProducerTimestamp,
		catalog.Resources, catalog.Edges)
	if err != nil {
		return fmt.Errorf("failed to replace catalog for %q: %w", catalog.Certname, err)
	}
	return nil
}

func (t *pgTx) ReplaceFacts(ctx context.Context, facts storage.FactSet) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO factsets (certname, environment, producer_timestamp, received_timestamp, fact_values)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (certname) DO UPDATE SET
			environment = EXCLUDED.environment,
			producer_timestamp = EXCLUDED.producer_timestamp,
			received_timestamp = EXCLUDED.received_timestamp,
			fact_values = EXCLUDED.fact_values`,
		facts.Certname, facts.Environment, facts.ProducerTimestamp,
		facts.Timestamp, facts.Values)
	if err != nil {
		return fmt.Errorf("failed to replace facts for %q: %w", facts.Certname, err)
	}
	return nil
}

func (t *pgTx) AddReport(ctx context.Context, report storage.Report) error {
	// The hash is derived from the report's invariant fields, so a
	// redelivered store command lands on the same row and is a no-op.
	_, err := t.q.Exec(ctx, `
		INSERT INTO reports (hash, certname, environment, puppet_version, report_format,
			producer_timestamp, start_time, end_time, status, metrics, logs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (hash) DO NOTHING`,
		report.Hash, report.Certname, report.Environment, report.PuppetVersion,
		report.ReportFormat, report.ProducerTimestamp, report.StartTime,
		report.EndTime, report.Status, report.Metrics, report.Logs)
	if err != nil {
		return fmt.Errorf("failed to add report for %q: %w", report.Certname, err)
	}
	return nil
}

func (t *pgTx) GetNode(ctx context.Context, certname string) (storage.Node, error) {
	var node storage.Node
	err := t.q.QueryRow(ctx,
		`SELECT certname, deactivated FROM nodes WHERE certname = $1`,
		certname).Scan(&node.Certname, &node.Deactivated)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Node{}, storage.ErrNodeNotFound
	}
	if err != nil {
		return storage.Node{}, fmt.Errorf("failed to get node %q: %w", certname, err)
	}
	return node, nil
}

func (t *pgTx) GetCatalog(ctx context.Context, certname string) (storage.Catalog, error) {
	var catalog storage.Catalog
	err := t.q.QueryRow(ctx,
		`SELECT certname, environment, producer_timestamp, resources, edges
		 FROM catalogs WHERE certname = $1`,
		certname).Scan(&catalog.Certname, &catalog.Environment,
		&catalog.ProducerTimestamp, &catalog.Resources, &catalog.Edges)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Catalog{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Catalog{}, fmt.Errorf("failed to get catalog for %q: %w", certname, err)
	}
	return catalog, nil
}

func (t *pgTx) GetFactSet(ctx context.Context, certname string) (storage.FactSet, error) {
	var facts storage.FactSet
	err := t.q.QueryRow(ctx,
		`SELECT certname, environment, producer_timestamp, received_timestamp, fact_values
		 FROM factsets WHERE certname = $1`,
		certname).Scan(&facts.Certname, &facts.Environment,
		&facts.ProducerTimestamp, &facts.Timestamp, &facts.Values)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.FactSet{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.FactSet{}, fmt.Errorf("failed to get facts for %q: %w", certname, err)
	}
	return facts, nil
}

func (t *pgTx) GetReports(ctx context.Context, certname string) ([]storage.Report, error) {
	rows, err := t.q.Query(ctx,
		`SELECT hash, certname, environment, puppet_version, report_format,
			producer_timestamp, start_time, end_time, status, metrics, logs
		 FROM reports WHERE certname = $1
		 ORDER BY producer_timestamp, hash`,
		certname)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports for %q: %w", certname, err)
	}
	defer rows.Close()

	var reports []storage.Report
	for rows.Next() {
		var r storage.Report
		if err := rows.Scan(&r.Hash, &r.Certname, &r.Environment, &r.PuppetVersion,
			&r.ReportFormat, &r.ProducerTimestamp, &r.StartTime, &r.EndTime,
			&r.Status, &r.Metrics, &r.Logs); err != nil {
			return nil, fmt.Errorf("failed to scan report for %q: %w", certname, err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list reports for %q: %w", certname, err)
	}
	return reports, nil
}
