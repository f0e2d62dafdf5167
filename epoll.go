package webserver

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/wuyongjia/hashmap"
	"github.com/wuyongjia/pool"

	"github.com/gotcp/webserver/internal/metrics"
	"github.com/gotcp/webserver/internal/timer"
	"github.com/gotcp/webserver/internal/workerpool"
)

const (
	DEFAULT_EPOLL_EVENTS     = 4096
	DEFAULT_MAX_CONNECTIONS  = 65536
	DEFAULT_MAX_QUEUED       = 10000
	DEFAULT_WORKERS          = 8
	DEFAULT_IDLE_TIMEOUT     = 15 * time.Second
	DEFAULT_TICK_INTERVAL    = 5 * time.Second
	DEFAULT_SHUTDOWN_TIMEOUT = 10 * time.Second

	// epoll_wait timeout in milliseconds while the backlog is not empty
	BACKLOG_WAIT_TIMEOUT = 10
)

var (
	ErrNoSite      = errors.New("a site is required")
	ErrInvalidHost = errors.New("host must be an IPv4 address")
	ErrServing     = errors.New("already serving")
)

func applyDefaults(opts *Options) {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DEFAULT_MAX_CONNECTIONS
	}
	if opts.MaxQueued <= 0 {
		opts.MaxQueued = DEFAULT_MAX_QUEUED
	}
	if opts.Workers <= 0 {
		opts.Workers = DEFAULT_WORKERS
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DEFAULT_IDLE_TIMEOUT
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DEFAULT_TICK_INTERVAL
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DEFAULT_SHUTDOWN_TIMEOUT
	}
	if opts.EpollEvents <= 0 {
		opts.EpollEvents = DEFAULT_EPOLL_EVENTS
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopServerMetrics()
	}
}

// New creates the epoll instance, the wakeup pipe and the listening socket,
// and starts the workers. Serve runs the loop.
func New(opts Options) (*EP, error) {
	if opts.Site == nil {
		return nil, ErrNoSite
	}
	applyDefaults(&opts)

	var epfd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	var ep = &EP{
		Host:            opts.Host,
		Port:            opts.Port,
		Epfd:            epfd,
		Fd:              -1,
		MaxConnections:  opts.MaxConnections,
		IdleTimeout:     opts.IdleTimeout,
		TickInterval:    opts.TickInterval,
		ShutdownTimeout: opts.ShutdownTimeout,
		TriggerMode:     opts.TriggerMode,
		EpollEvents:     opts.EpollEvents,
		OnAccept:        opts.OnAccept,
		OnClose:         opts.OnClose,
		OnError:         opts.OnError,
		pipe:            [2]int{-1, -1},
		handleSignals:   opts.HandleSignals,
		site:            opts.Site,
		resources:       opts.Resources,
		metrics:         opts.Metrics,
		slots:           make([]slot, opts.MaxConnections),
		free:            make([]int32, opts.MaxConnections),
		fds:             hashmap.New(opts.MaxConnections),
		timers:          timer.New(opts.MaxConnections),
	}
	for i := range ep.slots {
		ep.slots[i].fd = -1
		ep.slots[i].gen.Store(1)
		// pop order hands out slot 0 first
		ep.free[i] = int32(opts.MaxConnections - 1 - i)
	}
	if opts.AcceptRate > 0 {
		var burst = opts.AcceptBurst
		if burst <= 0 {
			burst = 1
		}
		ep.limiter = rate.NewLimiter(rate.Limit(opts.AcceptRate), burst)
	}
	ep.bufferPool = pool.New(DEFAULT_BUFFER_POOL, func() interface{} {
		var buf = make([]byte, PIPE_BUFFER_SIZE)
		return &buf
	})

	if err = ep.initPipe(); err != nil {
		ep.closeFds()
		return nil, err
	}
	if err = ep.InitEpoll(opts.Host, opts.Port); err != nil {
		ep.closeFds()
		return nil, err
	}

	// a nil Resources must reach the worker pool as a nil interface
	var resources workerpool.Resources
	if opts.Resources != nil {
		resources = opts.Resources
	}
	ep.workers, err = workerpool.NewWithPanicHandler[Token](opts.Workers, opts.MaxQueued, resources, ep.process, ep.processPanicked)
	if err != nil {
		ep.closeFds()
		return nil, err
	}
	return ep, nil
}

// InitEpoll opens, binds and registers the listening socket.
func (ep *EP) InitEpoll(host string, port int) error {
	var addr = unix.SockaddrInet4{Port: port}
	if host != "" {
		var ip = net.ParseIP(host).To4()
		if ip == nil {
			return fmt.Errorf("%w: %q", ErrInvalidHost, host)
		}
		copy(addr.Addr[:], ip)
	}

	var err error
	if ep.Fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0); err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err = unix.SetsockoptInt(ep.Fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err = unix.SetsockoptInt(ep.Fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("setsockopt TCP_NODELAY: %w", err)
	}
	if err = unix.Bind(ep.Fd, &addr); err != nil {
		return fmt.Errorf("bind %s:%d: %w", host, port, err)
	}
	if err = unix.Listen(ep.Fd, unix.SOMAXCONN); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	sa, err := unix.Getsockname(ep.Fd)
	if err != nil {
		return fmt.Errorf("getsockname: %w", err)
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		ep.Port = in4.Port
	}
	ep.Host = host

	var events uint32 = unix.EPOLLIN
	if ep.TriggerMode == EdgeTriggered {
		events |= unix.EPOLLET
	}
	if err = unix.EpollCtl(ep.Epfd, unix.EPOLL_CTL_ADD, ep.Fd, &unix.EpollEvent{Events: events, Fd: int32(ep.Fd)}); err != nil {
		return fmt.Errorf("epoll add listener: %w", err)
	}
	return nil
}

func (ep *EP) initPipe() error {
	if err := unix.Pipe2(ep.pipe[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return fmt.Errorf("pipe: %w", err)
	}
	var event = unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(ep.pipe[0])}
	if err := unix.EpollCtl(ep.Epfd, unix.EPOLL_CTL_ADD, ep.pipe[0], &event); err != nil {
		return fmt.Errorf("epoll add pipe: %w", err)
	}
	return nil
}

// Stop asks Serve to return. It is safe from any goroutine and more than
// once.
func (ep *EP) Stop() {
	if ep.stopping.CompareAndSwap(false, true) {
		ep.wake(WAKE_STOP)
	}
}

// Addr is the bound listening address.
func (ep *EP) Addr() string {
	var host = ep.Host
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, fmt.Sprint(ep.Port))
}

func (ep *EP) closeFds() {
	if ep.Fd >= 0 {
		unix.Close(ep.Fd)
		ep.Fd = -1
	}
	ep.pipeLock.Lock()
	for i, fd := range ep.pipe {
		if fd >= 0 {
			unix.Close(fd)
			ep.pipe[i] = -1
		}
	}
	ep.pipeLock.Unlock()
	if ep.Epfd >= 0 {
		unix.Close(ep.Epfd)
		ep.Epfd = -1
	}
}
