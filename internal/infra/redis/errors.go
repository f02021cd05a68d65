package redis

import "errors"

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrLockBusy  = errors.New("lock held by another instance")
)
