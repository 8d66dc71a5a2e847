// Package telemetry sends anonymous, opt-in usage events (tool invocation
// counts and outcome, never file contents or paths) to PostHog. Disabled by
// default; enabled only when config.Config.TelemetryEnabled is true.
package telemetry

import (
	"sync"

	"github.com/denisbrodbeck/machineid"
	"github.com/posthog/posthog-go"
)

// distinctIDSalt scopes the machine id to this tool so the derived hash
// can't be correlated with another application's telemetry.
const distinctIDSalt = "nts-mcp-fs"

// Reporter sends anonymous events. A nil *Reporter is valid and every
// method on it is a no-op, so callers can hold a disabled Reporter without
// branching on whether telemetry is enabled.
type Reporter struct {
	client     posthog.Client
	distinctID string

	mu sync.Mutex
}

// New builds a Reporter when enabled is true. apiKey is the PostHog
// project key; an empty key, like enabled=false, returns a nil Reporter,
// whose methods are no-ops, so callers don't need to special-case it.
func New(enabled bool, apiKey string) *Reporter {
	if !enabled || apiKey == "" {
		return nil
	}
	client, err := posthog.NewWithConfig(apiKey, posthog.Config{})
	if err != nil {
		return nil
	}
	id, err := machineid.ProtectedID(distinctIDSalt)
	if err != nil {
		id = "unknown"
	}
	return &Reporter{client: client, distinctID: id}
}

// Close flushes and releases the underlying client. Safe to call on a nil
// Reporter.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		_ = r.client.Close()
	}
}

// ToolInvoked records that a tool ran and how it finished. Never includes
// paths, symbol names, or file contents, only the tool name and outcome.
func (r *Reporter) ToolInvoked(tool string, succeeded bool, durationMS int64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.client.Enqueue(posthog.Capture{
		DistinctId: r.distinctID,
		Event:      "tool_invoked",
		Properties: posthog.NewProperties().
			Set("tool", tool).
			Set("succeeded", succeeded).
			Set("duration_ms", durationMS),
	})
}

// TaskCreated records that a new task was created or reactivated.
func (r *Reporter) TaskCreated(reactivated bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.client.Enqueue(posthog.Capture{
		DistinctId: r.distinctID,
		Event:      "task_created",
		Properties: posthog.NewProperties().Set("reactivated", reactivated),
	})
}
