package webserver

// Callbacks run on the reactor goroutine and must not block.
type OnAcceptEvent func(fd int, addr string)
type OnCloseEvent func(fd int, addr string, reason string)
type OnErrorEvent func(fd int, code ErrorCode, err error)

func (ep *EP) triggerOnAccept(fd int, addr string) {
	if ep.OnAccept != nil {
		ep.OnAccept(fd, addr)
	}
}

func (ep *EP) triggerOnClose(fd int, addr string, reason string) {
	if ep.OnClose != nil {
		ep.OnClose(fd, addr, reason)
	}
}

func (ep *EP) triggerOnError(code ErrorCode, err error) {
	ep.triggerOnErrorWithFd(-1, code, err)
}

func (ep *EP) triggerOnErrorWithFd(fd int, code ErrorCode, err error) {
	if ep.OnError != nil {
		ep.OnError(fd, code, err)
	}
}
