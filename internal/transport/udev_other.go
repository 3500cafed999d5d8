//go:build !linux || !cgo

package transport

import (
	"context"
	"errors"
)

// EnumerateDevices probes well known USB serial node names.
func EnumerateDevices() ([]Device, error) {
	return globDevices(), nil
}

func awaitAccess(ctx context.Context, path string) error {
	return errors.New("device access notifications need udev")
}
