package webserver

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/gotcp/webserver/internal/httpconn"
	"github.com/gotcp/webserver/internal/logger"
	"github.com/gotcp/webserver/internal/timer"
)

const (
	REJECT_CAPACITY = "capacity"
	REJECT_RATE     = "rate"
)

// acceptAction takes one connection per readiness in level-triggered mode
// and drains the backlog of the listening socket in edge-triggered mode.
func (ep *EP) acceptAction() {
	for {
		fd, sa, err := unix.Accept4(ep.Fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EAGAIN, unix.ECONNABORTED:
			default:
				ep.triggerOnError(ERROR_ACCEPT, err)
				logger.Error("accept: %v", err)
			}
			return
		}
		ep.addConnection(fd, sockaddrString(sa))
		if ep.TriggerMode == LevelTriggered {
			return
		}
	}
}

func (ep *EP) addConnection(fd int, addr string) {
	if len(ep.free) == 0 {
		ep.reject(fd, addr, REJECT_CAPACITY)
		return
	}
	if ep.limiter != nil && !ep.limiter.Allow() {
		ep.reject(fd, addr, REJECT_RATE)
		return
	}

	var idx = ep.free[len(ep.free)-1]
	var s = &ep.slots[idx]
	if s.conn == nil {
		s.conn = httpconn.New(ep.site)
	}
	unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	s.conn.Init(fd, addr)

	if err := ep.Add(fd, unix.EPOLLIN); err != nil {
		s.conn.Close()
		unix.Close(fd)
		ep.triggerOnErrorWithFd(fd, ERROR_ADD_CONNECTION, err)
		logger.Error("%s: register fd %d: %v", addr, fd, err)
		return
	}
	ep.free = ep.free[:len(ep.free)-1]
	s.fd = fd
	s.inUse = true
	ep.fds.Put(fd, idx)
	s.timer = ep.timers.Add(timer.Entry{
		Expire:   time.Now().Add(ep.IdleTimeout),
		Callback: ep.onExpire,
		Data: timer.ClientData{
			Slot: idx,
			Gen:  s.gen.Load(),
			Fd:   fd,
			Addr: addr,
		},
	})
	ep.active++

	ep.metrics.ConnectionAccepted()
	ep.metrics.SetActiveConnections(ep.active)
	logger.Debug("%s: accepted on fd %d (slot %d)", addr, fd, idx)
	ep.triggerOnAccept(fd, addr)
}

// reject answers 503 on a socket that never enters the slot table.
func (ep *EP) reject(fd int, addr string, reason string) {
	if err := Write(fd, httpconn.BusyResponse()); err != nil {
		logger.Debug("%s: busy response: %v", addr, err)
	}
	unix.Close(fd)
	ep.metrics.ConnectionRejected(reason)
	logger.Warn("%s: rejected (%s)", addr, reason)
}
