package webserver

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/gotcp/webserver/internal/httpconn"
	"github.com/gotcp/webserver/internal/logger"
)

// completion is a worker's report on one token, committed by the reactor.
type completion struct {
	token    Token
	outcome  httpconn.Outcome
	status   int
	elapsed  time.Duration
	stale    bool
	panicked bool
}

// complete queues c for the reactor and wakes it. Worker goroutines only.
func (ep *EP) complete(c completion) {
	ep.doneLock.Lock()
	ep.done = append(ep.done, c)
	ep.doneLock.Unlock()
	ep.wake(WAKE_DONE)
}

func (ep *EP) drainCompletions() {
	ep.doneLock.Lock()
	var batch = ep.done
	ep.done = ep.spare[:0]
	ep.doneLock.Unlock()

	for i := range batch {
		ep.commit(batch[i])
	}
	ep.spare = batch[:0]
}

// commit applies a worker's result, unless the slot changed hands since
// the token was issued.
func (ep *EP) commit(c completion) {
	if c.stale || !ep.live(c.token) {
		logger.Warn("discarding %s result for slot %d generation %d: connection was recycled", c.outcome, c.token.Slot, c.token.Gen)
		ep.metrics.StaleResult()
		ep.triggerOnError(ERROR_STALE_RESULT, ErrorStaleResult)
		return
	}

	var idx = c.token.Slot
	var s = &ep.slots[idx]
	s.busy = false
	if c.panicked {
		ep.triggerOnErrorWithFd(s.fd, ERROR_PROCESS, ErrorJobPanicked)
		ep.closeAction(idx, REASON_INTERNAL)
		return
	}
	if s.evictPending {
		ep.closeAction(idx, s.evictReason)
		return
	}
	if c.outcome == httpconn.NeedMore {
		ep.rearm(idx, unix.EPOLLIN)
		return
	}
	ep.metrics.RequestCompleted(c.status, c.elapsed)
	ep.rearm(idx, unix.EPOLLOUT)
}
