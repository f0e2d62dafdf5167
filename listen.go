package webserver

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gotcp/webserver/internal/logger"
)

// Serve runs the reactor until ctx is done, Stop is called or, with
// HandleSignals, SIGTERM or SIGINT arrives. On return every connection has
// been closed and the workers have exited.
func (ep *EP) Serve(ctx context.Context) error {
	if !ep.serving.CompareAndSwap(false, true) {
		return ErrServing
	}

	var quit = make(chan struct{})
	defer close(quit)
	go func() {
		select {
		case <-ctx.Done():
			ep.Stop()
		case <-quit:
		}
	}()

	if ep.handleSignals {
		var signals = make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(signals)
		go func() {
			select {
			case sig := <-signals:
				logger.Info("received %s, shutting down", sig)
				ep.Stop()
			case <-quit:
			}
		}()
	}

	ep.alarm = time.AfterFunc(ep.TickInterval, ep.onAlarm)
	logger.Info("listening on %s (%s-triggered, %d workers, idle timeout %s)", ep.Addr(), ep.TriggerMode, ep.workers.Threads(), ep.IdleTimeout)

	var err = ep.listen()
	ep.stopping.Store(true)
	ep.alarm.Stop()
	ep.shutdown()
	return err
}

func (ep *EP) onAlarm() {
	ep.alarmFired.Store(true)
	ep.wake(WAKE_ALARM)
}

func (ep *EP) listen() error {
	var err error
	var i, n int
	var fd int
	var timeout int
	var events = make([]unix.EpollEvent, ep.EpollEvents)
	for !ep.stopping.Load() {
		timeout = -1
		if len(ep.backlog) > 0 {
			timeout = BACKLOG_WAIT_TIMEOUT
		}
		n, err = unix.EpollWait(ep.Epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			ep.triggerOnError(ERROR_EPOLL_WAIT, err)
			return fmt.Errorf("epoll wait: %w", err)
		}
		for i = 0; i < n; i++ {
			fd = int(events[i].Fd)
			switch fd {
			case ep.Fd:
				ep.acceptAction()
			case ep.pipe[0]:
				ep.pipeAction()
			default:
				ep.eventAction(fd, events[i].Events)
			}
		}
		ep.drainCompletions()
		ep.retryBacklog()
		if ep.alarmFired.CompareAndSwap(true, false) {
			ep.sweep()
		}
	}
	return nil
}

// pipeAction empties the wakeup pipe. The bytes only wake the loop; the
// work they announce is found through the flags and the completion list.
func (ep *EP) pipeAction() {
	var buf, err = ep.GetBufferPoolItem()
	if err != nil {
		ep.triggerOnError(ERROR_POOL_BUFFER, err)
		var fallback = make([]byte, PIPE_BUFFER_SIZE)
		buf = &fallback
	} else {
		defer ep.PutBufferPoolItem(buf)
	}
	for {
		n, err := unix.Read(ep.pipe[0], *buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < len(*buf) {
			return
		}
	}
}

// sweep evicts expired connections and re-issues the alarm.
func (ep *EP) sweep() {
	var n = ep.timers.Tick(time.Now())
	if n > 0 {
		ep.metrics.TimersExpired(n)
		logger.Debug("idle sweep expired %d connections, %d active", n, ep.active)
	}
	ep.metrics.SetFreeResources(ep.freeResources())
	ep.alarm.Reset(ep.TickInterval)
}

func (ep *EP) freeResources() int {
	if ep.resources == nil {
		return 0
	}
	return ep.resources.FreeCount()
}

// shutdown stops the workers, then evicts every connection and closes the
// reactor's descriptors.
func (ep *EP) shutdown() {
	var ctx, cancel = context.WithTimeout(context.Background(), ep.ShutdownTimeout)
	defer cancel()
	var stopped = true
	if err := ep.workers.Stop(ctx); err != nil {
		stopped = false
		ep.triggerOnError(ERROR_STOP, err)
		logger.Error("stop workers: %v", err)
	}
	ep.drainCompletions()

	var closed = 0
	for i := range ep.slots {
		var s = &ep.slots[i]
		if !s.inUse {
			continue
		}
		if s.busy && !stopped {
			// a worker may still hold the connection; leave its state alone
			unix.Close(s.fd)
			continue
		}
		s.busy = false
		ep.closeAction(int32(i), REASON_SHUTDOWN)
		closed++
	}
	ep.backlog = ep.backlog[:0]
	ep.closeFds()
	logger.Info("reactor stopped, closed %d connections", closed)
}
