package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rpacore/engine/pkg/execctx"
)

// NamedClient is one reusable HTTP client declared by a workflow: a base
// URL, an optional auth header, and a timeout — grounded on the
// teacher's pkg/httpclient.Registry/Builder ("named HTTP client
// registry", SPEC_FULL §4) but trimmed to what the core needs; the
// teacher's zero-trust SSRF/redirect validation belongs to the
// out-of-scope HTTP leaf executor's own package, not this minimal core
// wiring.
type NamedClient struct {
	BaseURL    string
	AuthHeader string
	AuthValue  string
	Client     *http.Client
}

// ClientRegistry maps a workflow-declared client name to its NamedClient.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*NamedClient
}

// NewClientRegistry creates an empty ClientRegistry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*NamedClient)}
}

// Register adds (or overwrites) a named client.
func (r *ClientRegistry) Register(name string, c *NamedClient) {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 30 * time.Second}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = c
}

// Get looks up a named client.
func (r *ClientRegistry) Get(name string) (*NamedClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// HTTPRequestExecutor issues an HTTP call, optionally through a named
// client from the ClientRegistry so workflows can share base
// URL/auth/timeout config across many nodes instead of repeating it.
type HTTPRequestExecutor struct {
	Clients *ClientRegistry
}

func (HTTPRequestExecutor) ModuleType() string { return "http_request" }

func (HTTPRequestExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["url"]; !ok {
		if _, ok := config["path"]; !ok {
			return fmt.Errorf("http_request: requires either %q or %q (with a named client)", "url", "path")
		}
	}
	return nil
}

func (e HTTPRequestExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	method := stringOr(config["method"], "GET")

	var client *http.Client
	url := ""
	var authHeader, authValue string

	if clientName, _ := config["client"].(string); clientName != "" && e.Clients != nil {
		named, ok := e.Clients.Get(clientName)
		if !ok {
			return Result{Success: false, Error: fmt.Sprintf("http_request: named client %q not registered", clientName)}, nil
		}
		client = named.Client
		authHeader, authValue = named.AuthHeader, named.AuthValue
		path, _ := config["path"].(string)
		resolvedPath, err := ec.Resolve(path)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		url = named.BaseURL + resolvedPath
	} else {
		client = &http.Client{Timeout: 30 * time.Second}
		raw, _ := config["url"].(string)
		resolved, err := ec.Resolve(raw)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		url = resolved
	}

	var body io.Reader
	if b, ok := config["body"].(string); ok && b != "" {
		resolved, err := ec.Resolve(b)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		body = bytes.NewBufferString(resolved)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	if authHeader != "" {
		req.Header.Set(authHeader, authValue)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	success := resp.StatusCode < 400
	result := Result{
		Success: success,
		Message: fmt.Sprintf("%s %s -> %d", method, url, resp.StatusCode),
		Data: map[string]interface{}{
			"status_code": resp.StatusCode,
			"body":        string(data),
		},
	}
	if !success {
		result.Error = fmt.Sprintf("http_request: unexpected status %d", resp.StatusCode)
	}
	return result, nil
}
