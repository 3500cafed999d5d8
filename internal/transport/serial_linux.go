//go:build linux

package transport

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// serialPort is a raw tty fd driven by poll(2), so every read and write
// returns within its timeout and the owning tasks can observe cancellation.
type serialPort struct {
	fd           int
	path         string
	readTimeout  time.Duration
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func openSerial(path string, baud int, readTimeout, writeTimeout time.Duration) (conn, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}

	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}
	spd, err := baudToUnix(baud)
	if err != nil {
		return nil, err
	}

	// Raw 8N1, no flow control.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	// Reads are gated by poll, so the tty itself never waits.
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	t.Cflag &^= unix.CBAUD
	t.Cflag |= spd
	t.Ispeed = spd
	t.Ospeed = spd

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return nil, err
	}
	_ = unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH)

	ok = true
	return &serialPort{fd: fd, path: path, readTimeout: readTimeout, writeTimeout: writeTimeout}, nil
}

func (p *serialPort) Read(b []byte) (int, error) {
	ready, err := p.wait(unix.POLLIN, p.readTimeout)
	if err != nil {
		return 0, err
	}
	if !ready {
		return 0, os.ErrDeadlineExceeded
	}
	n, err := unix.Read(p.fd, b)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return 0, os.ErrDeadlineExceeded
	case err != nil:
		return 0, err
	case n == 0:
		// Readable with nothing to read: the device went away.
		return 0, io.EOF
	}
	return n, nil
}

func (p *serialPort) Write(b []byte) (int, error) {
	deadline := time.Now().Add(p.writeTimeout)
	written := 0
	for written < len(b) {
		left := time.Until(deadline)
		if left <= 0 {
			return written, os.ErrDeadlineExceeded
		}
		ready, err := p.wait(unix.POLLOUT, left)
		if err != nil {
			return written, err
		}
		if !ready {
			continue
		}
		n, err := unix.Write(p.fd, b[written:])
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (p *serialPort) Close() error {
	err := os.ErrClosed
	p.closeOnce.Do(func() { err = unix.Close(p.fd) })
	return err
}

// wait polls for events and reports whether the fd became ready.
func (p *serialPort) wait(events int16, d time.Duration) (bool, error) {
	ms := int(d / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	fds := []unix.PollFd{{Fd: int32(p.fd), Events: events}}
	n, err := unix.Poll(fds, ms)
	if err == unix.EINTR {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("poll %s: %w", p.path, err)
	}
	if n == 0 {
		return false, nil
	}
	re := fds[0].Revents
	if re&events != 0 {
		return true, nil
	}
	if re&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return false, fmt.Errorf("%s: device hung up (revents=%#x)", p.path, re)
	}
	return false, nil
}

// checkAccess reports whether the process may read and write path.
func checkAccess(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return unix.Access(path, unix.R_OK|unix.W_OK)
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 921600:
		return unix.B921600, nil
	default:
		return 0, fmt.Errorf("unsupported baud %d", baud)
	}
}
