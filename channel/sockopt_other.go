// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

//go:build !linux

package channel

import (
	"syscall"
	"time"
)

// setUserTimeout is a no-op on platforms without TCP_USER_TIMEOUT.
func setUserTimeout(syscall.RawConn, time.Duration) error { return nil }
