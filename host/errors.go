package host

import "errors"

// Static errors for err113 compliance
var (
	ErrUnknownPhase    = errors.New("unknown bootstrap phase")
	ErrNotBootstrapped = errors.New("host is not bootstrapped far enough")
	ErrUnknownBackend  = errors.New("unknown subsystem backend")
	ErrUnknownHook     = errors.New("unknown hook")
	ErrModuleNotOnDisk = errors.New("module has no manifest on disk")
	ErrTableExists     = errors.New("table already exists")
	ErrInvalidSettings = errors.New("invalid settings")
	ErrInvalidAccount  = errors.New("invalid administrator account")
	ErrServiceNotFound = errors.New("service not found")
	ErrUserNotFound    = errors.New("user not found")
)
