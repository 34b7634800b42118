package testutil

import (
	"os"
	"testing"
)

// TrackedEnv lists the environment variables read by the installer config.
var TrackedEnv = []string{
	"SITEINSTALL_ROOT",
	"SITEINSTALL_ENTRY_POINT",
	"SITEINSTALL_BOOTSTRAP_INCLUDE",
	"SITEINSTALL_SETTINGS_FILE",
	"SITEINSTALL_PROFILE_DIR",
	"SITEINSTALL_LOG_LEVEL",
}

// Isolate snapshots the tracked environment variables, clears them, and
// registers a t.Cleanup restoring them. Use it at the top of tests reading
// configuration from the environment.
func Isolate(t *testing.T) {
	t.Helper()

	envSnapshot := map[string]*string{}
	for _, k := range TrackedEnv {
		if v, ok := os.LookupEnv(k); ok {
			vCopy := v
			envSnapshot[k] = &vCopy
		} else {
			envSnapshot[k] = nil
		}
		_ = os.Unsetenv(k)
	}

	t.Cleanup(func() {
		for k, v := range envSnapshot {
			if v == nil {
				_ = os.Unsetenv(k)
			} else {
				_ = os.Setenv(k, *v)
			}
		}
	})
}
