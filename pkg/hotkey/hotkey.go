// Package hotkey implements the Hotkey Bridge (spec §4.9): an OS-level
// key listener running on its own goroutine that posts scheduler commands
// (stop, pause-equivalent cancellation) onto a thread-safe queue for the
// Bus to drain.
//
// No example repo in the reference pack imports a global-hotkey library
// (none of the teacher's or sibling repos' go.mod files name one), so the
// actual OS key-capture mechanism is abstracted behind Listener and left
// to a platform-specific implementation outside this package; what this
// package owns — the dedicated goroutine, completion-channel shutdown,
// and thread-safe command queue — is grounded on the teacher's
// pkg/engine.Engine.Execute goroutine/done-channel pattern (engine.go),
// generalized from "one execution, one done channel" to "one listener
// goroutine, one command channel, running for the process lifetime."
package hotkey

import (
	"context"
	"sync"

	"github.com/rpacore/engine/pkg/rlog"
)

// Command is one action requested by a recognized key combination.
type Command string

const (
	CommandStopRun  Command = "stop_run"
	CommandPauseRun Command = "pause_run"
)

// Binding maps one key combination (platform-specific encoding, e.g.
// "ctrl+shift+s") to the Command it should post.
type Binding struct {
	Combo   string
	Command Command
}

// Listener is the platform-specific half of the bridge: it blocks until
// the next recognized key combination fires, or ctx is cancelled. A
// concrete implementation lives outside this package (build-tagged per
// OS); Bridge only depends on this interface.
type Listener interface {
	// Next blocks until a bound combo fires, returning its Command, or
	// returns an error (including ctx.Err()) when listening stops.
	Next(ctx context.Context) (Command, error)
}

// Bridge runs a Listener on a dedicated goroutine and fans recognized
// commands out to every subscriber registered via Subscribe.
type Bridge struct {
	listener Listener
	logger   *rlog.Logger

	mu          sync.Mutex
	subscribers []chan<- Command
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates a Bridge around listener. logger may be nil.
func New(listener Listener, logger *rlog.Logger) *Bridge {
	if logger == nil {
		logger = rlog.New(rlog.DefaultConfig())
	}
	return &Bridge{listener: listener, logger: logger}
}

// Subscribe registers ch to receive every command recognized from now
// on. ch should be buffered; a full channel's send is dropped rather
// than blocking the listener goroutine.
func (b *Bridge) Subscribe(ch chan<- Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, ch)
}

// Start launches the listener goroutine. Calling Start twice without an
// intervening Stop is a programmer error and panics, matching the
// teacher's MustRegister-style fail-fast for misuse that indicates a
// wiring bug rather than a runtime condition.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		panic("hotkey: Start called while already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	go func() {
		defer close(done)
		for {
			cmd, err := b.listener.Next(runCtx)
			if err != nil {
				if runCtx.Err() == nil {
					b.logger.WithError(err).Error("hotkey listener stopped unexpectedly")
				}
				return
			}
			b.dispatch(cmd)
		}
	}()
}

func (b *Bridge) dispatch(cmd Command) {
	b.mu.Lock()
	subs := make([]chan<- Command, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- cmd:
		default:
			b.logger.WithField("command", string(cmd)).Warn("hotkey subscriber queue full; dropping command")
		}
	}
}

// Stop cancels the listener goroutine and waits for it to exit.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.cancel = nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
