//go:build linux && cgo

package transport

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jochenvg/go-udev"
)

// EnumerateDevices lists initialized tty nodes backed by real hardware (USB
// or platform UARTs), USB ACM devices first. It falls back to probing well
// known node names when udev is unavailable.
func EnumerateDevices() ([]Device, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("tty"); err != nil {
		return globDevices(), nil
	}
	if err := e.AddMatchIsInitialized(); err != nil {
		return globDevices(), nil
	}
	devs, err := e.Devices()
	if err != nil {
		return globDevices(), nil
	}

	var out []Device
	for _, d := range devs {
		node := d.Devnode()
		bus := d.PropertyValue("ID_BUS")
		if node == "" || bus == "" {
			// Virtual consoles and ptys carry no bus.
			continue
		}
		out = append(out, Device{
			Path:   node,
			Bus:    bus,
			Vendor: d.PropertyValue("ID_VENDOR"),
			Model:  d.PropertyValue("ID_MODEL"),
			Serial: d.PropertyValue("ID_SERIAL_SHORT"),
		})
	}
	if len(out) == 0 {
		return globDevices(), nil
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Path) < rank(out[j].Path)
	})
	return out, nil
}

func rank(path string) int {
	switch {
	case strings.HasPrefix(path, "/dev/ttyACM"):
		return 0
	case strings.HasPrefix(path, "/dev/ttyUSB"):
		return 1
	default:
		return 2
	}
}

// awaitAccess blocks until a udev event for path leaves it readable and
// writable, or ctx ends. Access grants (uaccess ACLs, group changes) arrive
// as "change" events on the tty node.
func awaitAccess(ctx context.Context, path string) error {
	u := udev.Udev{}
	m := u.NewMonitorFromNetlink("udev")
	if m == nil {
		return fmt.Errorf("udev monitor unavailable")
	}
	if err := m.FilterAddMatchSubsystem("tty"); err != nil {
		return fmt.Errorf("udev monitor filter: %w", err)
	}

	mctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, errs, err := m.DeviceChan(mctx)
	if err != nil {
		return fmt.Errorf("udev monitor: %w", err)
	}

	// The grant may have landed between the failed check and the monitor
	// subscription.
	if checkAccess(path) == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return fmt.Errorf("udev monitor: %w", err)
			}
		case d, ok := <-events:
			if !ok {
				return fmt.Errorf("udev monitor closed")
			}
			if d == nil || d.Devnode() != path {
				continue
			}
			if d.Action() == "remove" {
				return fmt.Errorf("%s removed", path)
			}
			if checkAccess(path) == nil {
				return nil
			}
		}
	}
}
