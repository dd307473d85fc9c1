package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cfgdb/cfgdb/core/command"
	"github.com/cfgdb/cfgdb/core/dispatch"
	"github.com/cfgdb/cfgdb/core/storage"
)

// Report wire versions. v5 and v6 are deprecated shapes converted to the v7
// shape by payload transforms.
const (
	ReportVersionOldest   = 5
	ReportVersionTerminal = 7
)

type reportPayload struct {
	Certname          string          `json:"certname"`
	Environment       string          `json:"environment"`
	PuppetVersion     string          `json:"puppet_version"`
	ReportFormat      int             `json:"report_format"`
	ProducerTimestamp *time.Time      `json:"producer_timestamp"`
	StartTime         *time.Time      `json:"start_time"`
	EndTime           *time.Time      `json:"end_time"`
	Status            string          `json:"status"`
	Metrics           json.RawMessage `json:"metrics"`
	Logs              json.RawMessage `json:"logs"`
}

// reportPayloadV5 is the oldest accepted shape: dash-separated keys, no
// status, no producer timestamp.
type reportPayloadV5 struct {
	Certname      string          `json:"certname"`
	Environment   string          `json:"environment"`
	PuppetVersion string          `json:"puppet-version"`
	ReportFormat  int             `json:"report-format"`
	StartTime     *time.Time      `json:"start-time"`
	EndTime       *time.Time      `json:"end-time"`
	Metrics       json.RawMessage `json:"metrics"`
	Logs          json.RawMessage `json:"logs"`
}

// RegisterReport registers every supported report wire version.
//
// The legacy versions are registered as ordinary table entries so version
// support stays uniform, but internally they convert the payload with a pure
// transform and invoke the terminal storage routine directly rather than
// re-entering the dispatch loop: the transforms are shape converters, not
// command re-dispatchers.
func RegisterReport(t *dispatch.Table, store storage.Storage, log *slog.Logger) {
	t.RegisterDeprecated(command.StoreReport, 5, storeReportLegacy(store, transformReportV5))
	t.RegisterDeprecated(command.StoreReport, 6, storeReportLegacy(store, transformReportV6))
	t.Register(command.StoreReport, 7, storeReportV7(store))
}

// transformReportV5 converts the dashed v5 shape to the v7 shape, backfilling
// status, end time, and producer timestamp from what the command carries.
func transformReportV5(cmd command.Command) (reportPayload, error) {
	var old reportPayloadV5
	if err := json.Unmarshal(cmd.Payload, &old); err != nil {
		return reportPayload{}, fmt.Errorf("report v5: %w", err)
	}

	received := cmd.Annotations.Received
	payload := reportPayload{
		Certname:      old.Certname,
		Environment:   old.Environment,
		PuppetVersion: old.PuppetVersion,
		ReportFormat:  old.ReportFormat,
		StartTime:     old.StartTime,
		EndTime:       old.EndTime,
		Status:        "unchanged",
		Metrics:       old.Metrics,
		Logs:          old.Logs,
	}
	if payload.EndTime == nil {
		payload.EndTime = &received
	}
	payload.ProducerTimestamp = &received
	return payload, nil
}

// transformReportV6 takes the v6 shape, which already matches v7 except for
// the missing producer timestamp, backfilled from the received annotation.
func transformReportV6(cmd command.Command) (reportPayload, error) {
	var payload reportPayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return reportPayload{}, fmt.Errorf("report v6: %w", err)
	}
	if payload.ProducerTimestamp == nil {
		received := cmd.Annotations.Received
		payload.ProducerTimestamp = &received
	}
	return payload, nil
}

// storeReportLegacy adapts a payload transform into a handler that stores
// the converted report directly.
func storeReportLegacy(store storage.Storage, transform func(command.Command) (reportPayload, error)) dispatch.HandlerFunc {
	return func(ctx context.Context, cmd command.Command) (dispatch.Outcome, error) {
		payload, err := transform(cmd)
		if err != nil {
			return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: %v", command.ErrInvalidPayload, err))
		}
		if err := storeReport(ctx, store, payload); err != nil {
			return dispatch.Outcome{}, err
		}
		return dispatch.Applied(), nil
	}
}

// storeReportV7 is the terminal report handler.
func storeReportV7(store storage.Storage) dispatch.HandlerFunc {
	return func(ctx context.Context, cmd command.Command) (dispatch.Outcome, error) {
		var payload reportPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return dispatch.Outcome{}, command.Fatal(fmt.Errorf("%w: report: %v", command.ErrInvalidPayload, err))
		}
		if err := storeReport(ctx, store, payload); err != nil {
			return dispatch.Outcome{}, err
		}
		return dispatch.Applied(), nil
	}
}

// storeReport validates the normalized payload and appends the report within
// a transaction. Reports are an append-only log, never skipped for
// staleness; the node is activated as of the report's producer timestamp so
// a reporting node counts as alive.
func storeReport(ctx context.Context, store storage.Storage, payload reportPayload) error {
	if err := validateReport(payload); err != nil {
		return command.Fatal(fmt.Errorf("%w: %v", command.ErrInvalidPayload, err))
	}

	producerTS := time.Now().UTC()
	if payload.ProducerTimestamp != nil {
		producerTS = *payload.ProducerTimestamp
	}

	report := storage.Report{
		Certname:          payload.Certname,
		Environment:       payload.Environment,
		PuppetVersion:     payload.PuppetVersion,
		ReportFormat:      payload.ReportFormat,
		ProducerTimestamp: producerTS,
		StartTime:         *payload.StartTime,
		EndTime:           *payload.EndTime,
		Status:            payload.Status,
		Metrics:           payload.Metrics,
		Logs:              payload.Logs,
	}
	report.Hash = reportHash(report)

	return store.RunTransaction(ctx, storage.LevelDefault, func(tx storage.Tx) error {
		if err := tx.ActivateNode(ctx, report.Certname, producerTS); err != nil {
			return err
		}
		return tx.AddReport(ctx, report)
	})
}

func validateReport(payload reportPayload) error {
	switch {
	case payload.Certname == "":
		return fmt.Errorf("report missing certname")
	case payload.PuppetVersion == "":
		return fmt.Errorf("report missing puppet_version")
	case payload.ReportFormat <= 0:
		return fmt.Errorf("report_format must be positive, got %d", payload.ReportFormat)
	case payload.StartTime == nil:
		return fmt.Errorf("report missing start_time")
	case payload.EndTime == nil:
		return fmt.Errorf("report missing end_time")
	case payload.Status == "":
		return fmt.Errorf("report missing status")
	default:
		return nil
	}
}

// reportHash derives a deterministic identity for a report row from its
// invariant fields.
func reportHash(r storage.Report) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s|%s|%s",
		r.Certname,
		r.PuppetVersion,
		r.ReportFormat,
		r.StartTime.UTC().Format(time.RFC3339Nano),
		r.EndTime.UTC().Format(time.RFC3339Nano),
		r.Status)
	return hex.EncodeToString(h.Sum(nil))
}
