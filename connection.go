package webserver

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/gotcp/webserver/internal/timer"
)

// Client sockets are always one-shot: after each event the socket stays
// silent until it is re-armed.
func (ep *EP) clientEvents(events uint32) uint32 {
	events |= unix.EPOLLONESHOT | unix.EPOLLRDHUP
	if ep.TriggerMode == EdgeTriggered {
		events |= unix.EPOLLET
	}
	return events
}

func (ep *EP) Add(fd int, events uint32) error {
	return unix.EpollCtl(ep.Epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: ep.clientEvents(events), Fd: int32(fd)})
}

// Mod re-arms a one-shot registration.
func (ep *EP) Mod(fd int, events uint32) error {
	return unix.EpollCtl(ep.Epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: ep.clientEvents(events), Fd: int32(fd)})
}

func (ep *EP) Del(fd int) error {
	var err error
	if err = unix.EpollCtl(ep.Epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		unix.Close(fd)
		return err
	}
	return unix.Close(fd)
}

func (ep *EP) lookup(fd int) (int32, bool) {
	var v = ep.fds.Get(fd)
	if v == nil {
		return 0, false
	}
	idx, ok := v.(int32)
	return idx, ok
}

func (ep *EP) token(idx int32) Token {
	return Token{Slot: idx, Gen: ep.slots[idx].gen.Load()}
}

func (ep *EP) live(tok Token) bool {
	var s = &ep.slots[tok.Slot]
	return s.inUse && s.gen.Load() == tok.Gen
}

// rearm re-registers the slot's socket, evicting it when epoll refuses.
func (ep *EP) rearm(idx int32, events uint32) {
	var s = &ep.slots[idx]
	if err := ep.Mod(s.fd, events); err != nil {
		ep.triggerOnErrorWithFd(s.fd, ERROR_ADD_CONNECTION, err)
		ep.closeAction(idx, REASON_ERROR)
	}
}

// refresh pushes the slot's idle deadline forward.
func (ep *EP) refresh(idx int32) {
	var s = &ep.slots[idx]
	var expire = time.Now().Add(ep.IdleTimeout)
	if ep.timers.Adjust(s.timer, expire) {
		return
	}
	s.timer = ep.timers.Add(timer.Entry{
		Expire:   expire,
		Callback: ep.onExpire,
		Data: timer.ClientData{
			Slot: idx,
			Gen:  s.gen.Load(),
			Fd:   s.fd,
			Addr: s.conn.Addr(),
		},
	})
}

// onExpire runs inside the timer sweep.
func (ep *EP) onExpire(data timer.ClientData) {
	if !ep.live(Token{Slot: data.Slot, Gen: data.Gen}) {
		return
	}
	ep.slots[data.Slot].timer = timer.Handle{}
	ep.closeAction(data.Slot, REASON_TIMEOUT)
}
