//go:build !linux

package transport

import (
	"fmt"
	"time"
)

func openSerial(path string, baud int, readTimeout, writeTimeout time.Duration) (conn, error) {
	return nil, fmt.Errorf("serial transport not supported on this platform")
}

func checkAccess(path string) error {
	return nil
}
