package schedule

import "errors"

var (
	ErrNoActiveSeries = errors.New("no active series")
	ErrEmptyBacklog   = errors.New("backlog is empty")
	ErrNotFound       = errors.New("item not found in backlog")
)
