// Package store is the Variable/Data Store: the single-writer mutable
// state backing one workflow run (spec §3's ExecutionContext.variables/
// data_rows/current_row/logs). Grounded on the teacher's
// pkg/state.Manager (variable/cache/context maps guarded by a
// sync.RWMutex) and extended with the row-accumulation semantics from
// original_source/backend/app/executors/base.py's add_data_value/
// commit_row.
package store

import (
	"sync"
	"time"

	"github.com/rpacore/engine/pkg/value"
)

// LogEntry is one line appended via AddLog (original's add_log/get_logs).
type LogEntry struct {
	Level     string
	Message   string
	NodeID    string
	Timestamp time.Time
	DurationMS int64
}

// ProgressSink receives a human-readable progress line emitted by a node
// (spec §4.7's "progress" telemetry event).
type ProgressSink func(nodeID, message string)

// VariableUpdateSink receives a notification each time SetVariable
// changes a value, letting the Telemetry Stream emit variable:update
// events without the store importing the telemetry package.
type VariableUpdateSink func(name string, newValue interface{})

// Store holds every piece of state a node executor can read or mutate
// during a run: variables, the data-row accumulator, and the run's log
// buffer. A Store belongs to exactly one run and is never shared across
// concurrent runs (spec §5's single-writer rule).
type Store struct {
	mu sync.RWMutex

	variables map[string]interface{}

	dataRows   []map[string]interface{}
	currentRow map[string]interface{}

	logs []LogEntry

	progressSink       ProgressSink
	variableUpdateSink VariableUpdateSink
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		variables:  make(map[string]interface{}),
		currentRow: make(map[string]interface{}),
	}
}

// SetProgressSink installs the callback invoked by AddLog.
func (s *Store) SetProgressSink(sink ProgressSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progressSink = sink
}

// SetVariableUpdateSink installs the callback invoked by SetVariable.
func (s *Store) SetVariableUpdateSink(sink VariableUpdateSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variableUpdateSink = sink
}

// GetVariable implements resolver.VariableGetter.
func (s *Store) GetVariable(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variables[name]
	return v, ok
}

// SetVariable stores a value and notifies the variable-update sink, if
// one is installed, outside the lock to avoid a sink reentering the
// store from inside the critical section.
func (s *Store) SetVariable(name string, v interface{}) {
	s.mu.Lock()
	s.variables[name] = v
	sink := s.variableUpdateSink
	s.mu.Unlock()

	if sink != nil {
		sink(name, v)
	}
}

// DeleteVariable removes a variable.
func (s *Store) DeleteVariable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.variables, name)
}

// AllVariables returns a shallow copy of the variable map, safe for a
// caller to range over without holding the store's lock.
func (s *Store) AllVariables() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.variables))
	for k, v := range s.variables {
		out[k] = v
	}
	return out
}

// AddDataValue adds column=v to the current row. If the current row
// already has a value for column, the row is auto-committed first and a
// new row is started with this value (invariant I2) — grounded on
// original's add_data_value: "如果当前行已经有该列的数据，则自动提交当前行并开始新行".
func (s *Store) AddDataValue(column string, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.currentRow[column]; exists {
		s.commitRowLocked()
	}
	s.currentRow[column] = v
}

// CommitRow appends the current row to the committed rows and starts a
// fresh one. A no-op if the current row is empty.
func (s *Store) CommitRow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitRowLocked()
}

func (s *Store) commitRowLocked() {
	if len(s.currentRow) == 0 {
		return
	}
	row := make(map[string]interface{}, len(s.currentRow))
	for k, v := range s.currentRow {
		row[k] = value.DeepCopy(v)
	}
	s.dataRows = append(s.dataRows, row)
	s.currentRow = make(map[string]interface{})
}

// DataRows returns every committed row plus, if non-empty, the
// in-progress current row appended last — mirroring how the original
// exposes data_rows/current_row together when a workflow ends mid-row.
func (s *Store) DataRows() []map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]interface{}, 0, len(s.dataRows)+1)
	out = append(out, s.dataRows...)
	if len(s.currentRow) > 0 {
		out = append(out, s.currentRow)
	}
	return out
}

// AddLog appends a log entry and, if a progress sink is installed,
// forwards info/progress-level messages to it.
func (s *Store) AddLog(level, message, nodeID string, durationMS int64) {
	entry := LogEntry{
		Level:      level,
		Message:    message,
		NodeID:     nodeID,
		Timestamp:  time.Now(),
		DurationMS: durationMS,
	}

	s.mu.Lock()
	s.logs = append(s.logs, entry)
	sink := s.progressSink
	s.mu.Unlock()

	if sink != nil && (level == "info" || level == "progress") {
		sink(nodeID, message)
	}
}

// Logs returns a copy of the accumulated log buffer.
func (s *Store) Logs() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// ClearLogs empties the log buffer, used by the export_logs executor
// after it has serialized the buffer (original's clear_logs).
func (s *Store) ClearLogs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = nil
}
