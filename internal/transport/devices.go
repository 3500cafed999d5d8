package transport

import (
	"fmt"
	"os"
)

// globDevices probes the usual USB serial node names, ACM first. u-blox and
// most USB GPS pucks show up as /dev/ttyACM*, FTDI/CP210x bridges as
// /dev/ttyUSB*.
func globDevices() []Device {
	var out []Device
	for _, prefix := range []string{"/dev/ttyACM", "/dev/ttyUSB"} {
		for i := 0; i < 10; i++ {
			p := fmt.Sprintf("%s%d", prefix, i)
			if _, err := os.Stat(p); err == nil {
				out = append(out, Device{Path: p, Bus: "usb"})
			}
		}
	}
	return out
}
