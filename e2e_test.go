package siteinstaller_test

import (
	"context"
	"slices"
	"sync"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/GoCodeAlone/siteinstaller"
	"github.com/GoCodeAlone/siteinstaller/host"
	"github.com/GoCodeAlone/siteinstaller/internal/testutil"
)

type typeCollector struct {
	mu    sync.Mutex
	types []string
}

func (c *typeCollector) observer() siteinstaller.Observer {
	return siteinstaller.NewFunctionalObserver("collector", func(_ context.Context, event cloudevents.Event) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.types = append(c.types, event.Type())
		return nil
	})
}

func (c *typeCollector) count(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.types {
		if t == eventType {
			n++
		}
	}
	return n
}

func newInstaller(t *testing.T, root string, opts ...siteinstaller.SiteInstallerOption) (*siteinstaller.SiteInstaller, *host.Host) {
	t.Helper()
	h := host.New(root)
	t.Cleanup(func() { _ = h.Close() })
	stager := siteinstaller.NewBootstrapStager(root, h)
	return siteinstaller.NewSiteInstaller(h, stager, nil, opts...), h
}

func TestInstallMinimalProfileEndToEnd(t *testing.T) {
	siteinstaller.ResetProcessRoot()
	t.Cleanup(siteinstaller.ResetProcessRoot)
	ctx := context.Background()
	p := testutil.NewPlatform(t)

	subject := siteinstaller.NewObserverRegistry(nil)
	events := &typeCollector{}
	require.NoError(t, subject.RegisterObserver(events.observer()))

	installer, h := newInstaller(t, p.Root, siteinstaller.WithSubject(subject))
	report, err := installer.Install(ctx, "minimal")
	require.NoError(t, err)
	assert.Equal(t, siteinstaller.StateFinalized, installer.State())
	assert.Equal(t, host.PhaseFull, h.Phase())

	plan := report.Plan
	assert.ElementsMatch(t, []string{"filter", "node", "system", "block", "dblog"}, plan)
	assert.Less(t, slices.Index(plan, "filter"), slices.Index(plan, "node"))
	assert.Less(t, slices.Index(plan, "system"), slices.Index(plan, "block"))

	assert.ElementsMatch(t,
		[]string{"system", "user", "filter", "node", "block", "dblog", "minimal"},
		report.Installed())

	versions := map[string]int{
		"system":  7078,
		"user":    7018,
		"filter":  7010,
		"node":    7020,
		"block":   siteinstaller.SchemaInstalled,
		"dblog":   siteinstaller.SchemaInstalled,
		"minimal": siteinstaller.SchemaInstalled,
	}
	for name, version := range versions {
		rec, found, err := h.Module(ctx, name)
		require.NoError(t, err)
		require.True(t, found, name)
		assert.True(t, rec.Enabled, name)
		assert.Equal(t, version, rec.SchemaVersion, name)
	}

	for _, table := range []string{"system", "variable", "registry", "users", "filter_format", "node", "block"} {
		exists, err := h.TableExists(ctx, table)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	var profile string
	found, err := h.Variable("install_profile", &profile)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "minimal", profile)

	var adminTheme bool
	found, err = h.Variable("node_admin_theme", &adminTheme)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, adminTheme)

	for hook, module := range map[string]string{"node": "node", "block": "block", "user_picture": "user"} {
		got, ok := h.ThemeHook(hook)
		require.True(t, ok, hook)
		assert.Equal(t, module, got)
	}

	// Install overrides stay in force for the life of the process.
	assert.Equal(t, siteinstaller.NullBackend, h.Conf().String(siteinstaller.ConfCacheDefaultClass, ""))
	_, ok := host.GetService[host.NullCache](h.Services(), host.ServiceCache)
	assert.True(t, ok)

	assert.Equal(t, 6, events.count(siteinstaller.EventTypeModuleInstalled))
	assert.Equal(t, 1, events.count(siteinstaller.EventTypeModuleSkipped), "system is already enabled")
	assert.Equal(t, 5, events.count(siteinstaller.EventTypeStateChanged))
	assert.Equal(t, 1, events.count(siteinstaller.EventTypeModulesInstalled))
	assert.Equal(t, 1, events.count(siteinstaller.EventTypeModulesEnabled))
	assert.Zero(t, events.count(siteinstaller.EventTypeInstallFailed))

	require.NoError(t, h.SetAdminAccount(ctx, host.Account{Name: "admin", Mail: "admin@example.com", Password: "s3cret"}))
	ok, err = h.CheckPassword(ctx, "admin", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInstallProfileDeclaringOnlyFilter(t *testing.T) {
	siteinstaller.ResetProcessRoot()
	t.Cleanup(siteinstaller.ResetProcessRoot)
	ctx := context.Background()
	p := testutil.NewPlatform(t)
	p.AddProfile("minimal", "name: minimal\ndependencies: [filter]\n")

	installer, h := newInstaller(t, p.Root)
	report, err := installer.Install(ctx, "minimal")
	require.NoError(t, err)

	plan := report.Plan
	assert.ElementsMatch(t, []string{"filter", "node"}, plan, "node is forced in")
	assert.Less(t, slices.Index(plan, "filter"), slices.Index(plan, "node"))

	installed := report.Installed()
	for _, name := range []string{"filter", "node", "minimal"} {
		assert.Contains(t, installed, name)
	}
	assert.NotContains(t, installed, "block")
	assert.NotContains(t, installed, "dblog")

	for name, version := range map[string]int{"filter": 7010, "node": 7020, "minimal": siteinstaller.SchemaInstalled} {
		rec, found, err := h.Module(ctx, name)
		require.NoError(t, err)
		require.True(t, found, name)
		assert.True(t, rec.Enabled, name)
		assert.Equal(t, version, rec.SchemaVersion, name)
	}
}

func TestInstallTwiceFails(t *testing.T) {
	siteinstaller.ResetProcessRoot()
	t.Cleanup(siteinstaller.ResetProcessRoot)
	ctx := context.Background()
	p := testutil.NewPlatform(t)

	first, h := newInstaller(t, p.Root)
	_, err := first.Install(ctx, "minimal")
	require.NoError(t, err)
	require.NoError(t, h.Close())

	second, _ := newInstaller(t, p.Root)
	_, err = second.Install(ctx, "minimal")
	assert.ErrorIs(t, err, siteinstaller.ErrAlreadyInstalled)
	assert.Equal(t, siteinstaller.StateFailed, second.State())
}

func TestInstallUnknownProfileEndToEnd(t *testing.T) {
	siteinstaller.ResetProcessRoot()
	t.Cleanup(siteinstaller.ResetProcessRoot)
	p := testutil.NewPlatform(t)

	installer, h := newInstaller(t, p.Root)
	_, err := installer.Install(context.Background(), "standard")

	var notFound *siteinstaller.ProfileNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "standard", notFound.Name)
	assert.Equal(t, "profiles/standard", notFound.Path)

	// Nothing was written before the profile was found.
	exists, err := h.TableExists(context.Background(), "system")
	require.NoError(t, err)
	assert.False(t, exists)
}
