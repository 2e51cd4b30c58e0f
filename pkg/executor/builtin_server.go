package executor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rpacore/engine/pkg/execctx"
	"github.com/rpacore/engine/pkg/server"
)

// StartFileShareExecutor binds an on-demand file-share HTTP server
// through the run's External Server Manager (spec §4.8), the leaf that
// SPEC_FULL.md's Supplemented-features section names as backed by
// pkg/server.Manager.StartFileShare.
type StartFileShareExecutor struct{}

func (StartFileShareExecutor) ModuleType() string { return "start_file_share" }

func (StartFileShareExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["port"]; !ok {
		return fmt.Errorf("start_file_share: missing required field %q", "port")
	}
	if _, ok := config["root"]; !ok {
		return fmt.Errorf("start_file_share: missing required field %q", "root")
	}
	return nil
}

func (StartFileShareExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	if ec.Servers == nil {
		return Result{Success: false, Error: "start_file_share: no server manager wired into this context"}, nil
	}

	port, err := resolveIntField(config, "port", ec)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	root, err := resolveStringField(config, "root", ec)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	allowWrite, _ := config["allow_write"].(bool)

	if err := ec.Servers.StartFileShare(port, server.FileShareConfig{
		Root:       root,
		AllowWrite: allowWrite,
	}); err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("file share listening on port %d", port),
		Data:    map[string]interface{}{"port": port, "root": root},
	}, nil
}

// StartScreenShareExecutor binds an on-demand screen-share HTTP server,
// streaming JPEG frames captured through the run's platform-specific
// ScreenFrameSource (spec §4.8). There being no frame source wired is
// reported as a clear failure rather than a silent no-op, the same
// honesty convention the hotkey bridge's serve-hotkey path follows.
type StartScreenShareExecutor struct{}

func (StartScreenShareExecutor) ModuleType() string { return "start_screen_share" }

func (StartScreenShareExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["port"]; !ok {
		return fmt.Errorf("start_screen_share: missing required field %q", "port")
	}
	return nil
}

func (StartScreenShareExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	if ec.Servers == nil {
		return Result{Success: false, Error: "start_screen_share: no server manager wired into this context"}, nil
	}
	if ec.ScreenFrameSource == nil {
		return Result{Success: false, Error: "start_screen_share: no platform screen-frame source configured"}, nil
	}

	port, err := resolveIntField(config, "port", ec)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	frameRate := floatOr(config["frame_rate"], 5)
	quality := intOr(config["quality"], 70)
	scale := floatOr(config["scale"], 1)

	if err := ec.Servers.StartScreenShare(port, server.ScreenShareConfig{
		Source:    ec.ScreenFrameSource,
		FrameRate: frameRate,
		Quality:   quality,
		Scale:     scale,
	}); err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("screen share listening on port %d", port),
		Data:    map[string]interface{}{"port": port},
	}, nil
}

// resolveIntField resolves a config field (which may be a ${}/{}
// reference or a numeric literal decoded by the JSON/YAML loader) to an
// int, defaulting unresolved/non-numeric values to 0.
func resolveIntField(config map[string]interface{}, key string, ec *execctx.Context) (int, error) {
	raw, err := resolveField(config, key, ec)
	if err != nil {
		return 0, err
	}
	return intOr(raw, 0), nil
}

func floatOr(v interface{}, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if parsed, err := strconv.ParseFloat(n, 64); err == nil {
			return parsed
		}
		return def
	default:
		return def
	}
}
