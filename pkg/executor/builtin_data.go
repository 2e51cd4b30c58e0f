package executor

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rpacore/engine/pkg/execctx"
)

// AddDataValueExecutor appends one column/value pair to the current row
// (spec §4.2's add_data_value; auto-commits on a repeat column per I2).
type AddDataValueExecutor struct{}

func (AddDataValueExecutor) ModuleType() string { return "add_data_value" }

func (AddDataValueExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["column"]; !ok {
		return fmt.Errorf("add_data_value: missing required field %q", "column")
	}
	return nil
}

func (AddDataValueExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	column, _ := config["column"].(string)
	value, err := resolveField(config, "value", ec)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	ec.Store.AddDataValue(column, value)
	return Result{Success: true}, nil
}

// CommitRowExecutor force-commits the in-progress row (spec §4.2's
// commit_row).
type CommitRowExecutor struct{}

func (CommitRowExecutor) ModuleType() string                           { return "commit_row" }
func (CommitRowExecutor) Validate(config map[string]interface{}) error { return nil }
func (CommitRowExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	ec.Store.CommitRow()
	return Result{Success: true}, nil
}

// ExportLogsExecutor serializes the run's log buffer to JSON or CSV,
// grounded on original_source/backend/app/executors/base.py's
// add_log/get_logs/clear_logs trio (spec §4 "Supplemented features").
type ExportLogsExecutor struct{}

func (ExportLogsExecutor) ModuleType() string                           { return "export_logs" }
func (ExportLogsExecutor) Validate(config map[string]interface{}) error { return nil }

func (ExportLogsExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	format := stringOr(config["format"], "json")
	logs := ec.Store.Logs()

	var out string
	switch format {
	case "json":
		rows := make([]map[string]interface{}, len(logs))
		for i, l := range logs {
			rows[i] = map[string]interface{}{
				"level":       l.Level,
				"message":     l.Message,
				"node_id":     l.NodeID,
				"timestamp":   l.Timestamp,
				"duration_ms": l.DurationMS,
			}
		}
		data, err := json.Marshal(rows)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		out = string(data)
	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		w.Write([]string{"timestamp", "level", "node_id", "duration_ms", "message"})
		for _, l := range logs {
			w.Write([]string{
				l.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
				l.Level,
				l.NodeID,
				fmt.Sprint(l.DurationMS),
				l.Message,
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		out = buf.String()
	default:
		return Result{Success: false, Error: fmt.Sprintf("export_logs: unknown format %q", format)}, nil
	}

	if clear, _ := config["clear"].(bool); clear {
		ec.Store.ClearLogs()
	}
	return Result{Success: true, Data: out}, nil
}

// sortedKeys returns m's keys in sorted order, used by ExportTable to
// give every row the same deterministic column ordering.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExportTableExecutor renders the accumulated data rows as CSV,
// grounded on original_source/backend/app/executors/table.py's export
// of the row accumulator built by add_data_value/commit_row.
type ExportTableExecutor struct{}

func (ExportTableExecutor) ModuleType() string                           { return "export_table" }
func (ExportTableExecutor) Validate(config map[string]interface{}) error { return nil }

func (ExportTableExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	rows := ec.Store.DataRows()
	if len(rows) == 0 {
		return Result{Success: true, Data: ""}, nil
	}

	columns := sortedKeys(rows[0])
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(columns)
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = fmt.Sprint(row[col])
		}
		w.Write(record)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	return Result{Success: true, Data: buf.String()}, nil
}
