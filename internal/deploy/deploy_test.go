package deploy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elisa-build/elisa/internal/models"
)

func TestPredicates(t *testing.T) {
	assert.True(t, ShouldDeployWeb(Snapshot{Deployment: models.Deployment{Target: models.DeploymentWeb}}))
	assert.True(t, ShouldDeployWeb(Snapshot{Deployment: models.Deployment{Target: models.DeploymentBoth}}))
	assert.False(t, ShouldDeployWeb(Snapshot{Deployment: models.Deployment{Target: models.DeploymentESP32}}))

	assert.True(t, ShouldDeployHardware(Snapshot{Deployment: models.Deployment{Target: models.DeploymentESP32}}))
	assert.False(t, ShouldDeployHardware(Snapshot{Deployment: models.Deployment{Target: models.DeploymentWeb}}))

	assert.True(t, ShouldDeployPortals(Snapshot{Portals: []models.Portal{{Name: "p1", Kind: "serial"}}}))
	assert.False(t, ShouldDeployPortals(Snapshot{}))

	assert.True(t, ShouldInitializePortals(Snapshot{Portals: []models.Portal{{Name: "p1", Kind: "mcp"}}}))
	assert.False(t, ShouldInitializePortals(Snapshot{Portals: []models.Portal{{Name: "p1", Kind: "cli"}}}))
}

type fakeHandle struct{ closed bool }

func (h *fakeHandle) Close() error { h.closed = true; return nil }

type fakeOpener struct{ fail map[string]bool }

func (o fakeOpener) Open(ctx context.Context, p models.Portal) (PortalHandle, error) {
	if o.fail[p.Name] {
		return nil, errors.New("boom")
	}
	return &fakeHandle{}, nil
}

func TestOpenPortalsContinuesPastFailures(t *testing.T) {
	m := NewManager()
	errs := m.OpenPortals(context.Background(), []models.Portal{
		{Name: "a", Kind: "serial"}, {Name: "b", Kind: "mcp"},
	}, fakeOpener{fail: map[string]bool{"a": true}})

	assert.Len(t, errs, 1)
	assert.Len(t, m.portals, 1)
	assert.Contains(t, m.portals, "b")
}

func TestTeardownClosesAllHandles(t *testing.T) {
	m := NewManager()
	m.OpenPortals(context.Background(), []models.Portal{{Name: "a", Kind: "serial"}}, fakeOpener{})
	h := m.portals["a"].(*fakeHandle)

	m.Teardown()
	assert.True(t, h.closed)
	assert.Empty(t, m.portals)
}
