package storage

import (
	"encoding/json"
	"time"
)

// Node is a managed machine identified by its certname. Activation state is
// first-class: a deactivated node keeps its records but is excluded from
// current-state queries by the consumers of this store.
type Node struct {
	Certname    string     `json:"certname"`
	Deactivated *time.Time `json:"deactivated,omitempty"`
}

// Active reports whether the node is currently active.
func (n Node) Active() bool {
	return n.Deactivated == nil
}

// Catalog is a node's current desired state. At most one catalog is stored
// per certname; replacement is guarded by producer timestamp, so stale
// deliveries never overwrite newer state.
type Catalog struct {
	Certname          string          `json:"certname"`
	Environment       string          `json:"environment,omitempty"`
	ProducerTimestamp time.Time       `json:"producer_timestamp"`
	Resources         json.RawMessage `json:"resources,omitempty"`
	Edges             json.RawMessage `json:"edges,omitempty"`
}

// FactSet is a node's current facts. At most one fact set is stored per
// certname. ProducerTimestamp is agent-assigned; Timestamp is the
// server-observed received time of the command that stored it.
type FactSet struct {
	Certname          string         `json:"certname"`
	Environment       string         `json:"environment,omitempty"`
	ProducerTimestamp time.Time      `json:"producer_timestamp"`
	Timestamp         time.Time      `json:"timestamp"`
	Values            map[string]any `json:"values"`
}

// Report is one entry in a node's append-only run log.
type Report struct {
	Hash              string          `json:"hash"`
	Certname          string          `json:"certname"`
	Environment       string          `json:"environment,omitempty"`
	PuppetVersion     string          `json:"puppet_version"`
	ReportFormat      int             `json:"report_format"`
	ProducerTimestamp time.Time       `json:"producer_timestamp"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
	Status            string          `json:"status"`
	Metrics           json.RawMessage `json:"metrics,omitempty"`
	Logs              json.RawMessage `json:"logs,omitempty"`
}
