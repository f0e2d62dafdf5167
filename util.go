package webserver

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

func Write(fd int, msg []byte) error {
	var _, err = unix.Write(fd, msg)
	return err
}

// wake writes one byte into the pipe. A full pipe already guarantees a
// wakeup, so EAGAIN is ignored.
func (ep *EP) wake(op OpCode) {
	ep.pipeLock.RLock()
	defer ep.pipeLock.RUnlock()
	if ep.pipe[1] >= 0 {
		unix.Write(ep.pipe[1], []byte{byte(op)})
	}
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return "unknown"
	}
}
