package rpaconfig

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ExternalConfig is the on-disk WebRPAConfig.json record (spec §6): the
// three HTTP-facing components this engine coexists with (backend API,
// frontend asset server, framework hub) each publish their own
// host/port, and the backend additionally controls whether this record
// itself is hot-reloaded.
type ExternalConfig struct {
	Backend struct {
		Host   string `json:"host"`
		Port   int    `json:"port"`
		Reload bool   `json:"reload"`
	} `json:"backend"`
	Frontend struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"frontend"`
	FrameworkHub struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"frameworkHub"`
}

// DefaultExternalConfig is used when WebRPAConfig.json is absent from the
// process working directory.
func DefaultExternalConfig() *ExternalConfig {
	cfg := &ExternalConfig{}
	cfg.Backend.Host = "127.0.0.1"
	cfg.Backend.Port = 8787
	cfg.Backend.Reload = false
	cfg.Frontend.Host = "127.0.0.1"
	cfg.Frontend.Port = 5173
	cfg.FrameworkHub.Host = "127.0.0.1"
	cfg.FrameworkHub.Port = 8899
	return cfg
}

const externalConfigFileName = "WebRPAConfig.json"

// LoadExternalConfig reads WebRPAConfig.json from dir, falling back to
// DefaultExternalConfig when the file does not exist. A malformed file
// is a validation error — the caller decides whether that is fatal.
func LoadExternalConfig(dir string) (*ExternalConfig, error) {
	path := filepath.Join(dir, externalConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultExternalConfig(), nil
		}
		return nil, fmt.Errorf("rpaconfig: reading %s: %w", path, err)
	}
	cfg := DefaultExternalConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("rpaconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ExternalConfigWatcher hot-reloads WebRPAConfig.json when backend.reload
// is true, grounded on tombee/conductor's internal/controller/filewatcher
// (fsnotify.Watcher wrapped with a stop channel and a callback on change).
type ExternalConfigWatcher struct {
	mu     sync.RWMutex
	cfg    *ExternalConfig
	dir    string
	fsw    *fsnotify.Watcher
	logger *slog.Logger
	onLoad func(*ExternalConfig)
	stopCh chan struct{}
	doneCh chan struct{}
}

// WatchExternalConfig loads the config once and, if backend.reload is
// true, starts watching dir for changes to WebRPAConfig.json. onLoad, if
// non-nil, is invoked with each newly loaded record including the first.
// The returned watcher's Stop must be called to release the fsnotify
// handle; Stop is a no-op if reload was never enabled.
func WatchExternalConfig(dir string, logger *slog.Logger, onLoad func(*ExternalConfig)) (*ExternalConfigWatcher, error) {
	cfg, err := LoadExternalConfig(dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &ExternalConfigWatcher{cfg: cfg, dir: dir, logger: logger, onLoad: onLoad}
	if onLoad != nil {
		onLoad(cfg)
	}
	if !cfg.Backend.Reload {
		return w, nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rpaconfig: creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("rpaconfig: watching %s: %w", dir, err)
	}
	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.loop()
	return w, nil
}

func (w *ExternalConfigWatcher) loop() {
	defer close(w.doneCh)
	target := filepath.Join(w.dir, externalConfigFileName)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(target) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadExternalConfig(w.dir)
			if err != nil {
				w.logger.Error("rpaconfig: reload failed, keeping previous record", "error", err)
				continue
			}
			w.mu.Lock()
			w.cfg = cfg
			w.mu.Unlock()
			w.logger.Info("rpaconfig: reloaded WebRPAConfig.json")
			if w.onLoad != nil {
				w.onLoad(cfg)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("rpaconfig: watcher error", "error", err)
		}
	}
}

// Current returns the most recently loaded record.
func (w *ExternalConfigWatcher) Current() *ExternalConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Stop releases the underlying fsnotify watch, if one was started.
func (w *ExternalConfigWatcher) Stop() error {
	if w.fsw == nil {
		return nil
	}
	close(w.stopCh)
	<-w.doneCh
	return w.fsw.Close()
}
