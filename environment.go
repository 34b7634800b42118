package siteinstaller

// NullBackend is the conf value selecting the no-op implementation of a
// pluggable subsystem.
const NullBackend = "null"

// Conf variables controlling pluggable subsystems.
const (
	ConfCachePrefix       = "cache"
	ConfCacheDefaultClass = "cache_default_class"
	ConfPathInc           = "path_inc"
	ConfLockInc           = "lock_inc"
)

// requestDefaults fills the request environment a console process lacks.
var requestDefaults = []struct{ key, value string }{
	{"HTTP_HOST", "127.0.0.1"},
	{"HTTP_REFERER", ""},
	{"REMOTE_ADDR", "127.0.0.1"},
	{"REQUEST_METHOD", "GET"},
}

// EnvironmentOverrider swaps the path rewriting, locking and caching
// subsystems for no-op implementations. The change lasts for the whole
// process and is never reverted.
type EnvironmentOverrider struct {
	logger  Logger
	applied bool
}

// NewEnvironmentOverrider creates an overrider.
func NewEnvironmentOverrider(logger Logger) *EnvironmentOverrider {
	if logger == nil {
		logger = NopLogger{}
	}
	return &EnvironmentOverrider{logger: logger}
}

// Apply installs the overrides into env. Only the first call has an effect.
func (o *EnvironmentOverrider) Apply(env Environment) {
	if o.applied {
		return
	}
	o.applied = true

	for _, d := range requestDefaults {
		if _, ok := env.Server(d.key); !ok {
			env.SetServer(d.key, d.value)
		}
	}
	if proto, _ := env.Server("SERVER_PROTOCOL"); proto != "HTTP/1.0" && proto != "HTTP/1.1" {
		env.SetServer("SERVER_PROTOCOL", "HTTP/1.0")
	}

	env.MaskConf(ConfCachePrefix)
	env.OverrideConf(ConfCacheDefaultClass, NullBackend)
	env.OverrideConf(ConfPathInc, NullBackend)
	env.OverrideConf(ConfLockInc, NullBackend)

	o.logger.Debug("Applied install overrides", "cache", NullBackend, "path", NullBackend, "lock", NullBackend)
}

// Applied reports whether Apply already ran.
func (o *EnvironmentOverrider) Applied() bool {
	return o.applied
}
