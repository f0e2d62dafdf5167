package webserver

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"

	"github.com/gotcp/webserver/internal/httpconn"
	"github.com/gotcp/webserver/internal/logger"
	"github.com/gotcp/webserver/internal/timer"
)

const (
	REASON_PEER     = "peer"
	REASON_READ     = "read"
	REASON_WRITE    = "write"
	REASON_DONE     = "done"
	REASON_TIMEOUT  = "timeout"
	REASON_INTERNAL = "internal"
	REASON_ERROR    = "error"
	REASON_SHUTDOWN = "shutdown"
)

func (ep *EP) eventAction(fd int, events uint32) {
	var idx, ok = ep.lookup(fd)
	if !ok {
		logger.Debug("event %#x for unknown fd %d", events, fd)
		return
	}
	if ep.slots[idx].busy {
		return
	}
	switch {
	case events&(unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0:
		ep.closeAction(idx, REASON_PEER)
	case events&unix.EPOLLIN != 0:
		ep.readAction(idx)
	case events&unix.EPOLLOUT != 0:
		ep.writeAction(idx)
	}
}

func (ep *EP) readAction(idx int32) {
	var s = &ep.slots[idx]
	if err := s.conn.ReadOnce(); err != nil {
		if errors.Is(err, io.EOF) {
			ep.closeAction(idx, REASON_PEER)
			return
		}
		ep.triggerOnErrorWithFd(s.fd, ERROR_READ, err)
		logger.Debug("%s: %v", s.conn.Addr(), err)
		ep.closeAction(idx, REASON_READ)
		return
	}
	ep.refresh(idx)
	ep.dispatch(idx)
}

func (ep *EP) writeAction(idx int32) {
	var s = &ep.slots[idx]
	var status, err = s.conn.Write()
	switch status {
	case httpconn.WriteIncomplete:
		ep.refresh(idx)
		ep.rearm(idx, unix.EPOLLOUT)
	case httpconn.WriteKeepAlive:
		s.conn.Reset()
		ep.refresh(idx)
		if s.conn.Buffered() > 0 {
			ep.dispatch(idx)
		} else {
			ep.rearm(idx, unix.EPOLLIN)
		}
	case httpconn.WriteClose:
		ep.closeAction(idx, REASON_DONE)
	default:
		ep.triggerOnErrorWithFd(s.fd, ERROR_WRITE, err)
		logger.Debug("%s: %v", s.conn.Addr(), err)
		ep.closeAction(idx, REASON_WRITE)
	}
}

// dispatch hands the slot to the workers. A full queue parks the token in
// the backlog; the slot stays busy either way.
func (ep *EP) dispatch(idx int32) {
	var s = &ep.slots[idx]
	var tok = ep.token(idx)
	s.busy = true
	if !ep.workers.Append(tok) {
		ep.backlog = append(ep.backlog, tok)
		ep.triggerOnErrorWithFd(s.fd, ERROR_QUEUE_FULL, ErrorQueueFull)
		logger.Debug("%s: work queue full, %d in backlog", s.conn.Addr(), len(ep.backlog))
		ep.metrics.SetBacklogDepth(len(ep.backlog))
	}
	ep.metrics.SetQueueDepth(ep.workers.Len())
}

// retryBacklog offers parked tokens to the workers in arrival order.
func (ep *EP) retryBacklog() {
	if len(ep.backlog) == 0 {
		return
	}
	var i = 0
	for ; i < len(ep.backlog); i++ {
		var tok = ep.backlog[i]
		if !ep.live(tok) {
			continue
		}
		var s = &ep.slots[tok.Slot]
		if s.evictPending {
			s.busy = false
			ep.closeAction(tok.Slot, s.evictReason)
			continue
		}
		if !ep.workers.Append(tok) {
			break
		}
	}
	var n = copy(ep.backlog, ep.backlog[i:])
	ep.backlog = ep.backlog[:n]
	ep.metrics.SetBacklogDepth(n)
	ep.metrics.SetQueueDepth(ep.workers.Len())
}

// closeAction evicts the slot. A slot held by a worker or the backlog is
// only marked; the eviction completes when the reactor gets it back.
func (ep *EP) closeAction(idx int32, reason string) {
	var s = &ep.slots[idx]
	if !s.inUse {
		return
	}
	ep.timers.Delete(s.timer)
	s.timer = timer.Handle{}
	if s.busy {
		if !s.evictPending {
			s.evictPending = true
			s.evictReason = reason
		}
		return
	}

	var fd = s.fd
	var addr = s.conn.Addr()
	if err := ep.Del(fd); err != nil {
		ep.triggerOnErrorWithFd(fd, ERROR_CLOSE_CONNECTION, err)
	}
	ep.fds.Remove(fd)
	s.conn.Close()
	s.fd = -1
	s.inUse = false
	s.evictPending = false
	s.evictReason = ""
	s.gen.Add(1)
	ep.free = append(ep.free, idx)
	ep.active--

	ep.metrics.ConnectionClosed(reason)
	ep.metrics.SetActiveConnections(ep.active)
	logger.Debug("%s: closed fd %d (%s)", addr, fd, reason)
	ep.triggerOnClose(fd, addr, reason)
}
