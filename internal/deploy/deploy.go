// Package deploy implements the conditional deploy phase (spec.md
// §4.12): four predicates evaluated against a session snapshot, a web
// child-process deploy, and lazy serial/MCP portal lifecycle
// management with best-effort teardown.
package deploy

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/elisa-build/elisa/internal/models"
)

// Snapshot is the subset of session/spec state the predicates consult.
type Snapshot struct {
	Deployment models.Deployment
	Portals    []models.Portal
}

// ShouldDeployWeb reports whether the web target should be deployed.
func ShouldDeployWeb(s Snapshot) bool {
	return s.Deployment.Target == models.DeploymentWeb || s.Deployment.Target == models.DeploymentBoth
}

// ShouldDeployHardware reports whether the ESP32/hardware target
// should be flashed.
func ShouldDeployHardware(s Snapshot) bool {
	return s.Deployment.Target == models.DeploymentESP32 || s.Deployment.Target == models.DeploymentBoth
}

// ShouldDeployPortals reports whether any declared portal needs a
// lifecycle handle opened for this run.
func ShouldDeployPortals(s Snapshot) bool {
	return len(s.Portals) > 0
}

// ShouldInitializePortals reports whether portals must be opened
// before the executor starts (MCP/serial portals are tool capabilities
// agents may call during task dispatch, so they cannot wait until the
// deploy phase proper).
func ShouldInitializePortals(s Snapshot) bool {
	for _, p := range s.Portals {
		if p.Kind == "serial" || p.Kind == "mcp" {
			return true
		}
	}
	return false
}

// WebHandle is a running web child process.
type WebHandle struct {
	cmd *exec.Cmd
}

// DeployWeb starts the workspace's web server as a child process.
func DeployWeb(ctx context.Context, workspaceRoot, command string, args ...string) (*WebHandle, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = workspaceRoot
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start web deploy: %w", err)
	}
	return &WebHandle{cmd: cmd}, nil
}

// Close terminates the web child process, swallowing errors per
// spec.md §4.12 teardown semantics.
func (h *WebHandle) Close() {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return
	}
	_ = h.cmd.Process.Kill()
	_ = h.cmd.Wait()
}

// HardwareFlasher is the external ESP32/hardware flashing capability
// (out of scope per spec.md §1 — abstracted as a capability).
type HardwareFlasher interface {
	Flash(ctx context.Context, workspaceRoot string) error
}

// StubFlasher is a no-op HardwareFlasher used when no real flashing
// capability is wired.
type StubFlasher struct{}

// Flash implements HardwareFlasher.
func (StubFlasher) Flash(ctx context.Context, workspaceRoot string) error { return nil }

// PortalHandle is an open serial/MCP portal handle.
type PortalHandle interface {
	Close() error
}

// PortalOpener opens a portal by kind/name — the serial/MCP driver
// itself is an external capability (spec.md §1), so this is an
// interface the deploy phase consumes rather than implements.
type PortalOpener interface {
	Open(ctx context.Context, portal models.Portal) (PortalHandle, error)
}

// Manager owns the open portal and web handles for one session and
// tears them all down unconditionally, swallowing errors.
type Manager struct {
	mu      sync.Mutex
	web     *WebHandle
	portals map[string]PortalHandle
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{portals: make(map[string]PortalHandle)}
}

// SetWeb records the running web handle for later teardown.
func (m *Manager) SetWeb(h *WebHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.web = h
}

// OpenPortals opens every declared portal via opener, recording
// whatever succeeds; a failed portal open does not abort the others.
func (m *Manager) OpenPortals(ctx context.Context, portals []models.Portal, opener PortalOpener) []error {
	var errs []error
	for _, p := range portals {
		h, err := opener.Open(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("open portal %s: %w", p.Name, err))
			continue
		}
		m.mu.Lock()
		m.portals[p.Name] = h
		m.mu.Unlock()
	}
	return errs
}

// ClosePortals closes every open portal handle, swallowing errors, and
// removes them from the manager — used both by normal completion
// (freeing serial devices promptly) and by Teardown.
func (m *Manager) ClosePortals() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, h := range m.portals {
		_ = h.Close()
		delete(m.portals, name)
	}
}

// Teardown closes all web and portal handles unconditionally,
// swallowing errors, per spec.md §4.12.
func (m *Manager) Teardown() {
	m.mu.Lock()
	web := m.web
	m.web = nil
	m.mu.Unlock()

	if web != nil {
		web.Close()
	}
	m.ClosePortals()
}
