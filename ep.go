// Package webserver is an epoll reactor serving a small HTTP/1.1 subset.
//
// One goroutine owns the listening socket, the epoll instance, the slot
// table and the idle timers. Ready connections are handed to a fixed worker
// pool through one-shot registrations, so exactly one goroutine touches a
// connection's buffers at any time.
package webserver

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wuyongjia/hashmap"
	"github.com/wuyongjia/pool"
	"golang.org/x/time/rate"

	"github.com/gotcp/webserver/internal/httpconn"
	"github.com/gotcp/webserver/internal/metrics"
	"github.com/gotcp/webserver/internal/timer"
	"github.com/gotcp/webserver/internal/workerpool"
)

type TriggerMode int

const (
	LevelTriggered TriggerMode = iota
	EdgeTriggered
)

func (m TriggerMode) String() string {
	if m == EdgeTriggered {
		return "edge"
	}
	return "level"
}

func ParseTriggerMode(s string) (TriggerMode, error) {
	switch strings.ToLower(s) {
	case "", "level", "lt":
		return LevelTriggered, nil
	case "edge", "et":
		return EdgeTriggered, nil
	default:
		return LevelTriggered, fmt.Errorf("unknown trigger mode %q", s)
	}
}

// Resources lends backend handles to the workers. *resource.Pool
// implements it.
type Resources interface {
	workerpool.Resources
	FreeCount() int
}

type Options struct {
	Host string
	// Port 0 picks an ephemeral port; EP.Port holds the bound one.
	Port int

	MaxConnections  int
	MaxQueued       int
	Workers         int
	IdleTimeout     time.Duration
	TickInterval    time.Duration
	ShutdownTimeout time.Duration
	TriggerMode     TriggerMode

	// AcceptRate is new connections per second; 0 means unlimited
	AcceptRate  float64
	AcceptBurst int

	EpollEvents int

	// HandleSignals stops Serve on SIGTERM or SIGINT
	HandleSignals bool

	Site      *httpconn.Site
	Resources Resources
	Metrics   metrics.ServerMetrics

	OnAccept OnAcceptEvent
	OnClose  OnCloseEvent
	OnError  OnErrorEvent
}

// Token names one occupancy of a slot. A token outlives its connection only
// as a stale reference, detected by the generation.
type Token struct {
	Slot int32
	Gen  uint32
}

type slot struct {
	conn  *httpconn.Conn
	gen   atomic.Uint32
	fd    int
	timer timer.Handle

	inUse bool
	// busy is set while a worker or the backlog holds the slot's token
	busy         bool
	evictPending bool
	evictReason  string
}

type EP struct {
	Host            string
	Port            int
	Epfd            int
	Fd              int
	MaxConnections  int
	IdleTimeout     time.Duration
	TickInterval    time.Duration
	ShutdownTimeout time.Duration
	TriggerMode     TriggerMode
	EpollEvents     int
	OnAccept        OnAcceptEvent
	OnClose         OnCloseEvent
	OnError         OnErrorEvent

	pipe          [2]int
	pipeLock      sync.RWMutex
	handleSignals bool

	site       *httpconn.Site
	resources  Resources
	workers    *workerpool.Pool[Token]
	metrics    metrics.ServerMetrics
	limiter    *rate.Limiter
	bufferPool *pool.Pool

	slots  []slot
	free   []int32
	fds    *hashmap.HM
	active int
	timers *timer.Registry

	backlog []Token

	doneLock sync.Mutex
	done     []completion
	spare    []completion

	alarm      *time.Timer
	alarmFired atomic.Bool
	stopping   atomic.Bool
	serving    atomic.Bool
}
