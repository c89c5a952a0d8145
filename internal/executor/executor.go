// Package executor performs the remediation side effects named by workflow
// tasks. Actions are resolved by an opaque key through a registry so the
// workflow engine never depends on what an action actually does.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/incidra/incidra/internal/errs"
)

// ActionExecutor is the boundary contract consumed by the workflow engine.
// Implementations must respect ctx cancellation and deadlines and must be
// safe to retry: the engine re-invokes failed actions up to max_retries.
type ActionExecutor interface {
	Execute(ctx context.Context, action string, params map[string]interface{}) (string, error)
}

// ActionFunc is a single registered action implementation.
type ActionFunc func(ctx context.Context, params map[string]interface{}) (string, error)

// Registry maps action keys to implementations.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]ActionFunc)}
}

// Register adds or replaces an action implementation.
func (r *Registry) Register(action string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[action] = fn
}

// Actions returns the sorted-insertion-free list of registered action keys.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.actions))
	for k := range r.actions {
		keys = append(keys, k)
	}
	return keys
}

// Execute resolves the action key and runs it, honoring ctx. Unknown actions
// and action failures are both reported as ActionExecutionError so the
// workflow engine applies one retry policy to everything.
func (r *Registry) Execute(ctx context.Context, action string, params map[string]interface{}) (string, error) {
	r.mu.RLock()
	fn, ok := r.actions[action]
	r.mu.RUnlock()

	if !ok {
		return "", &errs.ActionExecutionError{Action: action, Err: fmt.Errorf("unknown action %q", action)}
	}

	result, err := fn(ctx, params)
	if err != nil {
		return "", &errs.ActionExecutionError{Action: action, Err: err}
	}
	return result, nil
}

// stringParam extracts a required string parameter.
func stringParam(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

// ScriptAction runs an operator-provided script from the scripts directory.
// The action key maps to <dir>/<action>.sh and parameters are passed as JSON
// on stdin. The context deadline bounds the run; exec kills the process when
// it expires.
func ScriptAction(dir, action string) ActionFunc {
	script := filepath.Join(dir, action+".sh")
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		input, err := json.Marshal(params)
		if err != nil {
			return "", fmt.Errorf("failed to encode parameters: %w", err)
		}

		cmd := exec.CommandContext(ctx, script)
		cmd.Stdin = bytes.NewReader(input)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("script %s timed out", filepath.Base(script))
			}
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return "", fmt.Errorf("script %s failed: %s", filepath.Base(script), msg)
		}

		return strings.TrimSpace(stdout.String()), nil
	}
}

// WebhookAction posts the task parameters as JSON to the URL named in the
// "url" parameter. Useful for remediation endpoints exposed by firewalls or
// EDR consoles.
func WebhookAction(client *http.Client) ActionFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		url, err := stringParam(params, "url")
		if err != nil {
			return "", err
		}

		body, err := json.Marshal(params)
		if err != nil {
			return "", fmt.Errorf("failed to encode payload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("webhook call failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 300 {
			return "", fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}

		return fmt.Sprintf("webhook accepted (%d)", resp.StatusCode), nil
	}
}

// Poster delivers a plain notification message. The notify package satisfies
// this; the indirection keeps executor free of the Slack dependency.
type Poster interface {
	Post(channel, message string) error
}

// NotifyAction delivers the "message" parameter through the poster. The
// optional "channel" parameter overrides the default channel. Delivery
// details (retries, templates, fan-out) live entirely in the collaborator.
func NotifyAction(poster Poster) ActionFunc {
	return func(ctx context.Context, params map[string]interface{}) (string, error) {
		if poster == nil {
			return "", fmt.Errorf("no notification channel configured")
		}

		message, err := stringParam(params, "message")
		if err != nil {
			return "", err
		}

		channel := ""
		if c, ok := params["channel"].(string); ok {
			channel = c
		}

		if err := poster.Post(channel, message); err != nil {
			return "", fmt.Errorf("notification delivery failed: %w", err)
		}
		return "notification sent", nil
	}
}

// RegisterDefaults wires the built-in remediation actions. block_ip,
// isolate_host and disable_account run operator scripts from scriptsDir;
// notify routes through the poster; webhook posts to arbitrary endpoints.
func RegisterDefaults(r *Registry, scriptsDir string, poster Poster) {
	for _, action := range []string{"block_ip", "isolate_host", "disable_account"} {
		r.Register(action, ScriptAction(scriptsDir, action))
	}
	r.Register("webhook", WebhookAction(nil))
	r.Register("notify", NotifyAction(poster))
}

// sensitiveParamKeys are parameter names whose values never appear in the
// execution log.
var sensitiveParamKeys = []string{"token", "secret", "password", "api_key", "apikey", "credential"}

// RedactParams returns a copy of params safe for logging, with values of
// sensitive keys replaced.
func RedactParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		lower := strings.ToLower(k)
		redacted := false
		for _, s := range sensitiveParamKeys {
			if strings.Contains(lower, s) {
				redacted = true
				break
			}
		}
		if redacted {
			out[k] = "[redacted]"
		} else {
			out[k] = v
		}
	}
	return out
}
