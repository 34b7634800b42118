package store

import "errors"

// Static errors for err113 compliance
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrInvalidTableName  = errors.New("invalid table name")
	ErrInvalidColumn     = errors.New("invalid column definition")
	ErrEmptyTable        = errors.New("table has no columns")
	ErrModuleNotFound    = errors.New("module not found in system table")
)
