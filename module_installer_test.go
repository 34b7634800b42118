package siteinstaller

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func installerFor(h *fakeHost) (*ModuleInstaller, *eventRecorder) {
	subject, rec := newSubject()
	return NewModuleInstaller(h, h, subject, nil), rec
}

func TestModuleInstallFirstTime(t *testing.T) {
	ctx := context.Background()
	h := standardSite()
	code := h.code["node"].(*fakeModule)
	code.updates = []int{7001, 7015, 7003}
	h.addRow(h.catalog["node"])
	inst, events := installerFor(h)

	outcome, err := inst.Install(ctx, "node")
	require.NoError(t, err)
	assert.Equal(t, Installed, outcome)

	row := h.rows["node"]
	assert.True(t, row.Enabled)
	assert.Equal(t, 7015, row.SchemaVersion)
	assert.Equal(t, 1, code.installs)
	assert.Equal(t, 1, code.enables)

	assert.Equal(t, []string{
		"LoadModule(node)",
		"SetModuleEnabled(node)",
		"ResetStatic",
		"ResetModuleList",
		"RebuildCodeRegistry",
		"RebuildSchema",
		"InstallSchema(node)",
		"SetSchemaVersion(node,7015)",
	}, h.calls)

	installed := events.ofType(EventTypeModuleInstalled)
	require.Len(t, installed, 1)
	var data ModuleEventData
	require.NoError(t, json.Unmarshal(installed[0].Data(), &data))
	assert.Equal(t, ModuleEventData{Module: "node", SchemaVersion: 7015}, data)
	assert.NoError(t, ValidateCloudEvent(installed[0]))
}

func TestModuleInstallIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := standardSite()
	h.addRow(h.catalog["block"])
	inst, events := installerFor(h)

	outcome, err := inst.Install(ctx, "block")
	require.NoError(t, err)
	assert.Equal(t, Installed, outcome)
	calls := len(h.calls)

	outcome, err = inst.Install(ctx, "block")
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome)
	assert.Len(t, h.calls, calls, "a skipped module touches nothing")
	assert.Equal(t, 1, h.code["block"].(*fakeModule).installs)
	assert.Len(t, events.ofType(EventTypeModuleSkipped), 1)
}

func TestModuleInstallWithoutFilesSkipsRegistry(t *testing.T) {
	ctx := context.Background()
	h := standardSite()
	h.addRow(h.catalog["block"])
	inst, _ := installerFor(h)

	_, err := inst.Install(ctx, "block")
	require.NoError(t, err)
	assert.False(t, h.called("RebuildCodeRegistry"))
	assert.True(t, h.called("RebuildSchema"))
}

func TestModuleInstallSchemaVersions(t *testing.T) {
	tests := []struct {
		name        string
		updates     []int
		lastRemoved int
		want        int
	}{
		{"no updates", nil, 0, SchemaInstalled},
		{"highest update", []int{7000, 7002, 7001}, 0, 7002},
		{"last removed wins", []int{7000}, 7010, 7010},
		{"last removed below updates", []int{7012}, 7010, 7012},
		{"only last removed", nil, 7005, 7005},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := standardSite()
			code := h.code["block"].(*fakeModule)
			code.updates, code.lastRemoved = tt.updates, tt.lastRemoved
			h.addRow(h.catalog["block"])

			_, err := NewModuleInstaller(h, h, nil, nil).Install(context.Background(), "block")
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.rows["block"].SchemaVersion)
			assert.Equal(t, tt.want, TargetSchemaVersion(code))
		})
	}
}

func TestModuleInstallPreviouslyInstalledSchema(t *testing.T) {
	ctx := context.Background()
	h := standardSite()
	rec := h.catalog["block"]
	rec.SchemaVersion = 7004
	h.addRow(rec)
	code := h.code["block"].(*fakeModule)
	code.updates = []int{7009}

	outcome, err := NewModuleInstaller(h, h, nil, nil).Install(ctx, "block")
	require.NoError(t, err)
	assert.Equal(t, Installed, outcome)

	assert.False(t, h.called("InstallSchema(block)"))
	assert.Equal(t, 7004, h.rows["block"].SchemaVersion, "existing version is kept")
	assert.Zero(t, code.installs, "install hook runs only on first install")
	assert.Equal(t, 1, code.enables, "enable hook runs on every enable")
}

func TestModuleInstallCodeWithoutHooks(t *testing.T) {
	ctx := context.Background()
	h := standardSite()
	delete(h.code, "block")
	h.addRow(h.catalog["block"])

	outcome, err := NewModuleInstaller(h, h, nil, nil).Install(ctx, "block")
	require.NoError(t, err)
	assert.Equal(t, Installed, outcome)
	assert.Equal(t, SchemaInstalled, h.rows["block"].SchemaVersion)
}

func TestModuleInstallMissingRow(t *testing.T) {
	h := standardSite()

	_, err := NewModuleInstaller(h, h, nil, nil).Install(context.Background(), "block")
	var inconsistent *InconsistentStateError
	require.ErrorAs(t, err, &inconsistent)
	assert.Equal(t, "block", inconsistent.Name)
	assert.ErrorIs(t, err, ErrInconsistentState)
	assert.Empty(t, h.calls)
}

func TestModuleInstallPropagatesFailures(t *testing.T) {
	steps := []string{
		"LoadModule(block)",
		"SetModuleEnabled(block)",
		"ResetModuleList",
		"RebuildSchema",
		"InstallSchema(block)",
		"SetSchemaVersion(block,0)",
	}
	for _, step := range steps {
		t.Run(step, func(t *testing.T) {
			h := standardSite()
			h.addRow(h.catalog["block"])
			h.failOn[step] = errBoom

			_, err := NewModuleInstaller(h, h, nil, nil).Install(context.Background(), "block")
			assert.ErrorIs(t, err, errBoom)
		})
	}

	t.Run("bookkeeping read", func(t *testing.T) {
		h := standardSite()
		h.failOn["Module(block)"] = errBoom
		_, err := NewModuleInstaller(h, h, nil, nil).Install(context.Background(), "block")
		assert.ErrorIs(t, err, errBoom)
	})

	for _, hook := range []string{"install", "enable"} {
		t.Run(hook+" hook", func(t *testing.T) {
			h := standardSite()
			h.addRow(h.catalog["block"])
			h.code["block"].(*fakeModule).failOn = hook

			_, err := NewModuleInstaller(h, h, nil, nil).Install(context.Background(), "block")
			assert.ErrorIs(t, err, errBoom)
			assert.Contains(t, err.Error(), hook+" hook of block")
		})
	}

	t.Run("code registry", func(t *testing.T) {
		h := standardSite()
		h.addRow(h.catalog["node"])
		h.failOn["RebuildCodeRegistry"] = errBoom
		_, err := NewModuleInstaller(h, h, nil, nil).Install(context.Background(), "node")
		assert.ErrorIs(t, err, errBoom)
	})
}
