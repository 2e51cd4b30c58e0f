// Package process implements the Process Supervisor (spec §4.6):
// registers, tracks, and terminates child processes spawned by leaf
// executors (media transcoders foremost among them), parsing their
// stderr for progress tokens and throttling the resulting telemetry.
//
// Grounded on original_source/backend/app/executors/media.py's
// character-buffered stderr reader (ffmpeg writes progress lines
// terminated by '\r', not '\n') for the scanning discipline, and on the
// teacher's dependency on golang.org/x/time/rate-shaped throttling plus
// golang.org/x/sync/errgroup for the supervisor's parallel terminate-all.
package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Progress is one throttled progress observation (spec §4.6).
type Progress struct {
	Percent float64 // 0 if no TotalDuration was supplied; see Elapsed/Message instead
	Message string
	Elapsed time.Duration
}

// ProgressSink receives throttled Progress events for one process.
type ProgressSink func(recordID string, p Progress)

// Spec describes one process to spawn.
type Spec struct {
	OwnerNodeID    string
	Command        string
	Args           []string
	TotalDuration  time.Duration // 0 if unknown (e.g. a streaming download)
	Timeout        time.Duration // wall-clock ceiling; 0 means Supervisor's default
	ProgressEvery  time.Duration // throttle interval; 0 means Supervisor's default
}

// Record tracks one spawned process (spec's "Process Record").
type Record struct {
	ID          string
	OwnerNodeID string
	StartedAt   time.Time

	cmd    *exec.Cmd
	cancel context.CancelFunc
	exited chan struct{}
}

var (
	timeToken    = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
	speedToken   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
	sizeToken    = regexp.MustCompile(`size=\s*(\d+)kB`)
	bitrateToken = regexp.MustCompile(`bitrate=\s*([\d.]+)kbits/s`)
)

// Supervisor owns every live Record for one run.
type Supervisor struct {
	mu               sync.Mutex
	records          map[string]*Record
	defaultTimeout   time.Duration
	defaultThrottle  time.Duration
	graceWindow      time.Duration
}

// New creates a Supervisor. The Bus passes defaultTimeout/defaultThrottle/
// graceWindow from bus.Config (ProcessDefaultTimeout,
// ProcessDefaultThrottle, ProcessGraceWindow).
func New(defaultTimeout, defaultThrottle, graceWindow time.Duration) *Supervisor {
	return &Supervisor{
		records:         make(map[string]*Record),
		defaultTimeout:  defaultTimeout,
		defaultThrottle: defaultThrottle,
		graceWindow:     graceWindow,
	}
}

// Spawn starts spec.Command, wires a line-buffered stderr progress
// parser, and returns a Record plus a channel closed when the process
// exits (after which Wait's error, if any, has been recorded).
func (s *Supervisor) Spawn(ctx context.Context, spec Spec, sink ProgressSink) (*Record, <-chan error, error) {
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = s.defaultTimeout
	}
	throttle := spec.ProgressEvery
	if throttle == 0 {
		throttle = s.defaultThrottle
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	cmd := exec.CommandContext(runCtx, spec.Command, spec.Args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("process: stderr pipe: %w", err)
	}

	rec := &Record{
		ID:          uuid.NewString(),
		OwnerNodeID: spec.OwnerNodeID,
		StartedAt:   time.Now(),
		cmd:         cmd,
		cancel:      cancel,
		exited:      make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("process: start: %w", err)
	}

	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()

	done := make(chan error, 1)
	go s.consumeProgress(rec, stderr, spec.TotalDuration, throttle, sink)
	go func() {
		err := cmd.Wait()
		close(rec.exited)
		s.mu.Lock()
		delete(s.records, rec.ID)
		s.mu.Unlock()
		cancel()
		if runCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("process: %s exceeded its %s timeout", rec.ID, timeout)
		}
		done <- err
		close(done)
	}()

	return rec, done, nil
}

// consumeProgress reads stderr a line at a time (ffmpeg-shaped children
// terminate progress lines with '\r', so a plain bufio.Scanner with the
// default newline split would stall — ScanLines treats '\r\n' correctly
// but a bare '\r' is not a split token, so a custom split function
// handles both, grounded on the original's character-at-a-time reader).
func (s *Supervisor) consumeProgress(rec *Record, stderr io.Reader, totalDuration, throttle time.Duration, sink ProgressSink) {
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanCROrLF)

	limiter := rate.NewLimiter(rate.Every(throttle), 1)
	start := rec.StartedAt

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p, ok := parseProgressLine(line, totalDuration, start)
		if !ok || sink == nil {
			continue
		}
		if limiter.Allow() {
			sink(rec.ID, p)
		}
	}
}

// scanCROrLF splits on '\n' or '\r', whichever comes first, dropping the
// delimiter — matching ffmpeg's mixed use of both line endings.
func scanCROrLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func parseProgressLine(line string, totalDuration time.Duration, start time.Time) (Progress, bool) {
	tm := timeToken.FindStringSubmatch(line)
	if tm == nil {
		return Progress{}, false
	}
	hours, _ := strconv.Atoi(tm[1])
	minutes, _ := strconv.Atoi(tm[2])
	seconds, _ := strconv.ParseFloat(tm[3], 64)
	current := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds*float64(time.Second))
	elapsed := time.Since(start)

	if totalDuration > 0 {
		percent := 100 * current.Seconds() / totalDuration.Seconds()
		if percent > 99.9 {
			percent = 99.9
		}
		msg := fmt.Sprintf("processing %.1f%%", percent)
		if sm := speedToken.FindStringSubmatch(line); sm != nil {
			msg = fmt.Sprintf("%s at %sx", msg, sm[1])
		}
		return Progress{Percent: percent, Message: msg, Elapsed: elapsed}, true
	}

	msg := fmt.Sprintf("processed %s", current)
	if sz := sizeToken.FindStringSubmatch(line); sz != nil {
		msg = fmt.Sprintf("%s, %skB", msg, sz[1])
	}
	if br := bitrateToken.FindStringSubmatch(line); br != nil {
		msg = fmt.Sprintf("%s, %s kbit/s", msg, br[1])
	}
	return Progress{Message: msg, Elapsed: elapsed}, true
}

// Terminate sends SIGTERM to one process and waits up to the
// supervisor's grace window for it to exit on its own; only once that
// window elapses without the process exiting does it force-kill (spec
// §4.6/§4.4's "terminate_all signals every live record; if a process
// does not exit within a grace window (2s), it is force-killed").
func (s *Supervisor) Terminate(recordID string) {
	s.mu.Lock()
	rec, ok := s.records[recordID]
	s.mu.Unlock()
	if !ok {
		return
	}
	defer rec.cancel()

	if rec.cmd.Process != nil {
		_ = rec.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-rec.exited:
		return
	case <-time.After(s.graceWindow):
	}

	if rec.cmd.Process != nil {
		_ = rec.cmd.Process.Kill()
	}
	<-rec.exited
}

// TerminateAll cancels every live record in parallel (spec §4.4's
// cancellation walk), grounded on golang.org/x/sync/errgroup for the
// fan-out/join.
func (s *Supervisor) TerminateAll(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			s.Terminate(id)
			return nil
		})
	}
	return g.Wait()
}

// Active returns the number of currently tracked records, used for the
// rpacore_processes_active telemetry gauge and for P3 (zero records
// after run:end).
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
