package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStorageStats provides observability counters for tests and local
// development.
type MemoryStorageStats struct {
	Nodes        int
	Catalogs     int
	FactSets     int
	Reports      int
	Transactions int64
	Rollbacks    int64
}

// MemoryStorage implements Storage with mutex-guarded maps. It exists for
// tests and local development; production deployments use the Postgres
// implementation in integration/database/pg.
//
// All transactions are serialized by a single mutex, which trivially
// satisfies every isolation level. Writes are buffered per transaction and
// applied on commit, so a failed transaction leaves no partial state behind.
type MemoryStorage struct {
	mu       sync.Mutex
	nodes    map[string]Node
	catalogs map[string]Catalog
	factsets map[string]FactSet
	reports  map[string][]Report

	transactions int64
	rollbacks    int64
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		nodes:    make(map[string]Node),
		catalogs: make(map[string]Catalog),
		factsets: make(map[string]FactSet),
		reports:  make(map[string][]Report),
	}
}

// RunTransaction implements Storage. The isolation level is accepted for
// interface parity; the single mutex serializes everything regardless.
func (ms *MemoryStorage) RunTransaction(ctx context.Context, level IsolationLevel, fn func(tx Tx) error) (err error) {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.transactions++

	tx := &memoryTx{
		store:    ms,
		nodes:    make(map[string]Node),
		catalogs: make(map[string]Catalog),
		factsets: make(map[string]FactSet),
		reports:  make(map[string][]Report),
	}

	defer func() {
		if r := recover(); r != nil {
			ms.rollbacks++
			err = fmt.Errorf("transaction panicked: %v", r)
		}
	}()

	if err := fn(tx); err != nil {
		ms.rollbacks++
		return err
	}

	tx.commit()
	return nil
}

// Stats returns current storage counters.
func (ms *MemoryStorage) Stats() MemoryStorageStats {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	reports := 0
	for _, rs := range ms.reports {
		reports += len(rs)
	}

	return MemoryStorageStats{
		Nodes:        len(ms.nodes),
		Catalogs:     len(ms.catalogs),
		FactSets:     len(ms.factsets),
		Reports:      reports,
		Transactions: ms.transactions,
		Rollbacks:    ms.rollbacks,
	}
}

// memoryTx buffers writes until commit. Reads consult the buffer first so a
// transaction observes its own writes.
type memoryTx struct {
	store    *MemoryStorage
	nodes    map[string]Node
	catalogs map[string]Catalog
	factsets map[string]FactSet
	reports  map[string][]Report
}

func (tx *memoryTx) commit() {
	for certname, node := range tx.nodes {
		tx.store.nodes[certname] = node
	}
	for certname, catalog := range tx.catalogs {
		tx.store.catalogs[certname] = catalog
	}
	for certname, facts := range tx.factsets {
		tx.store.factsets[certname] = facts
	}
	for certname, reports := range tx.reports {
		tx.store.reports[certname] = append(tx.store.reports[certname], reports...)
	}
}

func (tx *memoryTx) node(certname string) (Node, bool) {
	if node, ok := tx.nodes[certname]; ok {
		return node, true
	}
	node, ok := tx.store.nodes[certname]
	return node, ok
}

func (tx *memoryTx) NodeExists(ctx context.Context, certname string) (bool, error) {
	_, ok := tx.node(certname)
	return ok, nil
}

func (tx *memoryTx) ActivateNode(ctx context.Context, certname string, asOf time.Time) error {
	node, ok := tx.node(certname)
	if !ok {
		tx.nodes[certname] = Node{Certname: certname}
		return nil
	}

	// Reactivate only if the deactivation is older than the activation
	// request; otherwise the request is the stale party.
	if node.Deactivated != nil && node.Deactivated.Before(asOf) {
		node.Deactivated = nil
		tx.nodes[certname] = node
	}
	return nil
}

func (tx *memoryTx) DeactivateNode(ctx context.Context, certname string, asOf time.Time) error {
	node, _ := tx.node(certname)
	node.Certname = certname
	deactivated := asOf
	node.Deactivated = &deactivated
	tx.nodes[certname] = node
	return nil
}

func (tx *memoryTx) CurrentCatalogNewerThan(ctx context.Context, certname string, ts time.Time) (bool, error) {
	catalog, ok := tx.catalogs[certname]
	if !ok {
		catalog, ok = tx.store.catalogs[certname]
	}
	if !ok {
		return false, nil
	}
	return !catalog.ProducerTimestamp.Before(ts), nil
}

func (tx *memoryTx) HasNewerRecord(ctx context.Context, kind RecordKind, certname string, ts time.Time) (bool, error) {
	switch kind {
	case KindCatalog:
		catalog, ok := tx.catalogs[certname]
		if !ok {
			catalog, ok = tx.store.catalogs[certname]
		}
		return ok && catalog.ProducerTimestamp.After(ts), nil
	case KindFacts:
		facts, ok := tx.factsets[certname]
		if !ok {
			facts, ok = tx.store.factsets[certname]
		}
		return ok && facts.ProducerTimestamp.After(ts), nil
	case KindReport:
		for _, report := range tx.store.reports[certname] {
			if report.ProducerTimestamp.After(ts) {
				return true, nil
			}
		}
		for _, report := range tx.reports[certname] {
			if report.ProducerTimestamp.After(ts) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown record kind %q", kind)
	}
}

func (tx *memoryTx) ReplaceCatalog(ctx context.Context, catalog Catalog) error {
	tx.catalogs[catalog.Certname] = catalog
	return nil
}

func (tx *memoryTx) ReplaceFacts(ctx context.Context, facts FactSet) error {
	tx.factsets[facts.Certname] = facts
	return nil
}

func (tx *memoryTx) AddReport(ctx context.Context, report Report) error {
	tx.reports[report.Certname] = append(tx.reports[report.Certname], report)
	return nil
}

func (tx *memoryTx) GetNode(ctx context.Context, certname string) (Node, error) {
	node, ok := tx.node(certname)
	if !ok {
		return Node{}, ErrNodeNotFound
	}
	return node, nil
}

func (tx *memoryTx) GetCatalog(ctx context.Context, certname string) (Catalog, error) {
	if catalog, ok := tx.catalogs[certname]; ok {
		return catalog, nil
	}
	if catalog, ok := tx.store.catalogs[certname]; ok {
		return catalog, nil
	}
	return Catalog{}, ErrNotFound
}

func (tx *memoryTx) GetFactSet(ctx context.Context, certname string) (FactSet, error) {
	if facts, ok := tx.factsets[certname]; ok {
		return facts, nil
	}
	if facts, ok := tx.store.factsets[certname]; ok {
		return facts, nil
	}
	return FactSet{}, ErrNotFound
}

func (tx *memoryTx) GetReports(ctx context.Context, certname string) ([]Report, error) {
	reports := make([]Report, 0, len(tx.store.reports[certname])+len(tx.reports[certname]))
	reports = append(reports, tx.store.reports[certname]...)
	reports = append(reports, tx.reports[certname]...)
	return reports, nil
}
