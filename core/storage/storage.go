package storage

import (
	"context"
	"errors"
	"time"
)

// IsolationLevel selects the transaction isolation a handler requires.
// Handlers that compare stored state against incoming state before writing
// need LevelRepeatableRead or stronger so a concurrent writer cannot slip
// between the compare and the write.
type IsolationLevel int

const (
	LevelDefault IsolationLevel = iota
	LevelRepeatableRead
	LevelSerializable
)

func (l IsolationLevel) String() string {
	switch l {
	case LevelRepeatableRead:
		return "repeatable read"
	case LevelSerializable:
		return "serializable"
	default:
		return "default"
	}
}

// RecordKind identifies the entity families stored per node.
type RecordKind string

const (
	KindCatalog RecordKind = "catalog"
	KindFacts   RecordKind = "facts"
	KindReport  RecordKind = "report"
)

var (
	// ErrNodeNotFound is returned by read accessors for unknown certnames.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNotFound is returned by read accessors when the node exists but the
	// requested record does not.
	ErrNotFound = errors.New("record not found")
)

// Storage is the transactional store the command handlers write through. It
// is consumed as an abstract collaborator: the core never sees the schema.
type Storage interface {
	// RunTransaction opens a transaction at the given isolation level, runs
	// fn, and commits if fn returns nil. On any error, or on panic, the
	// transaction is rolled back. Every exit path releases the transaction.
	RunTransaction(ctx context.Context, level IsolationLevel, fn func(tx Tx) error) error
}

// Tx exposes the node-lifecycle and entity-write operations available inside
// a transaction.
type Tx interface {
	// NodeExists reports whether a node record exists for certname,
	// regardless of activation state.
	NodeExists(ctx context.Context, certname string) (bool, error)

	// ActivateNode ensures a node record exists and is active as of asOf.
	// A node deactivated at a timestamp older than asOf is reactivated; a
	// deactivation newer than asOf is left in place, since the activation
	// request is the stale party.
	ActivateNode(ctx context.Context, certname string, asOf time.Time) error

	// DeactivateNode marks the node deactivated as of asOf, creating the
	// node record if absent.
	DeactivateNode(ctx context.Context, certname string, asOf time.Time) error

	// CurrentCatalogNewerThan reports whether the stored catalog for
	// certname has a producer timestamp at or after ts. A missing catalog
	// reports false.
	CurrentCatalogNewerThan(ctx context.Context, certname string, ts time.Time) (bool, error)

	// HasNewerRecord reports whether any record of the given kind for
	// certname carries a producer timestamp strictly after ts.
	HasNewerRecord(ctx context.Context, kind RecordKind, certname string, ts time.Time) (bool, error)

	// ReplaceCatalog replaces the node's current catalog.
	ReplaceCatalog(ctx context.Context, catalog Catalog) error

	// ReplaceFacts replaces the node's current fact set.
	ReplaceFacts(ctx context.Context, facts FactSet) error

	// AddReport appends a report to the node's report log.
	AddReport(ctx context.Context, report Report) error

	// Read accessors, used by tests and operator tooling.
	GetNode(ctx context.Context, certname string) (Node, error)
	GetCatalog(ctx context.Context, certname string) (Catalog, error)
	GetFactSet(ctx context.Context, certname string) (FactSet, error)
	GetReports(ctx context.Context, certname string) ([]Report, error)
}
