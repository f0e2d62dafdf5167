// Package httpconn holds the per-connection state of the HTTP subset the
// server speaks: fixed read and write buffers, an incremental two-level
// request parser, request handling against the document root and the
// accounts backend, and a resumable two-segment response writer.
//
// A Conn is owned by exactly one goroutine at a time. The reactor hands it to
// a worker for Process and takes it back for ReadOnce and Write; nothing in
// this package locks.
package httpconn

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/gotcp/webserver/internal/docroot"
)

const (
	READ_BUFFER_SIZE  = 2048
	WRITE_BUFFER_SIZE = 1024
)

var ErrReadBufferFull = errors.New("read buffer is full")

type Method int

const (
	GET Method = iota
	POST
)

func (m Method) String() string {
	switch m {
	case GET:
		return "GET"
	case POST:
		return "POST"
	default:
		return "UNKNOWN"
	}
}

type CheckState int

const (
	StateRequestLine CheckState = iota
	StateHeader
	StateContent
)

// Pages names the documents served as the result of form submissions.
type Pages struct {
	Welcome       string
	LoginError    string
	Registered    string
	RegisterError string
}

// Site is the configuration shared by every connection.
type Site struct {
	Root *docroot.Root
	// DefaultPage is served for the target "/"
	DefaultPage string
	// Aliases maps a one-character last path segment to a page
	Aliases map[string]string
	Pages   Pages
}

func DefaultPages() Pages {
	return Pages{
		Welcome:       "welcome.html",
		LoginError:    "logError.html",
		Registered:    "log.html",
		RegisterError: "registerError.html",
	}
}

func DefaultAliases() map[string]string {
	return map[string]string{
		"0": "register.html",
		"1": "log.html",
		"5": "picture.html",
		"6": "video.html",
		"7": "webbench.html",
	}
}

type Conn struct {
	fd   int
	addr string
	site *Site

	readBuf    [READ_BUFFER_SIZE]byte
	readIdx    int
	checkedIdx int
	startLine  int
	consumed   int

	writeBuf [WRITE_BUFFER_SIZE]byte
	writeIdx int
	body     Body
	sent     int
	total    int
	iov      [2][]byte

	checkState    CheckState
	method        Method
	target        string
	version       string
	host          string
	contentLength int
	keepAlive     bool
	content       []byte
	status        int

	file *docroot.File
}

func New(site *Site) *Conn {
	return &Conn{site: site, fd: -1}
}

// Init binds the connection to a freshly accepted socket.
func (c *Conn) Init(fd int, addr string) {
	c.fd = fd
	c.addr = addr
	c.readIdx = 0
	c.reset()
}

// Reset prepares the connection for the next request on the same socket.
// Bytes read past the end of the previous request are kept at the front of
// the read buffer.
func (c *Conn) Reset() {
	var leftover = 0
	if c.consumed > 0 && c.consumed < c.readIdx {
		leftover = copy(c.readBuf[:], c.readBuf[c.consumed:c.readIdx])
	}
	c.readIdx = leftover
	c.reset()
}

func (c *Conn) reset() {
	c.unmap()
	c.checkedIdx = 0
	c.startLine = 0
	c.consumed = 0
	c.writeIdx = 0
	c.body = Body{}
	c.sent = 0
	c.total = 0
	c.checkState = StateRequestLine
	c.method = GET
	c.target = ""
	c.version = ""
	c.host = ""
	c.contentLength = 0
	c.keepAlive = false
	c.content = nil
	c.status = 0
}

// Close releases the mapped file, if any. The socket itself belongs to the
// caller.
func (c *Conn) Close() {
	c.unmap()
	c.fd = -1
}

func (c *Conn) unmap() {
	if c.file != nil {
		_ = c.file.Close()
		c.file = nil
	}
}

func (c *Conn) Fd() int            { return c.fd }
func (c *Conn) Addr() string       { return c.addr }
func (c *Conn) Method() Method     { return c.method }
func (c *Conn) Target() string     { return c.target }
func (c *Conn) Host() string       { return c.host }
func (c *Conn) KeepAlive() bool    { return c.keepAlive }
func (c *Conn) ContentLength() int { return c.contentLength }
func (c *Conn) Content() []byte    { return c.content }
func (c *Conn) Status() int        { return c.status }

// Buffered reports the bytes in the read buffer that belong to no parsed
// request yet.
func (c *Conn) Buffered() int {
	if c.consumed > 0 {
		return c.readIdx - c.consumed
	}
	return c.readIdx - c.checkedIdx
}

// ReadOnce drains the socket into the read buffer until it would block. It
// returns io.EOF when the peer has closed and ErrReadBufferFull when there
// is no room left to read into.
func (c *Conn) ReadOnce() error {
	if c.readIdx >= READ_BUFFER_SIZE {
		return ErrReadBufferFull
	}
	for c.readIdx < READ_BUFFER_SIZE {
		n, err := unix.Read(c.fd, c.readBuf[c.readIdx:])
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("read fd %d: %w", c.fd, err)
		}
		if n == 0 {
			return io.EOF
		}
		c.readIdx += n
	}
	return nil
}
