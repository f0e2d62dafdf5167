package httpconn

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	OK_200_TITLE    = "OK"
	ERROR_400_TITLE = "Bad Request"
	ERROR_400_FORM  = "Your request has bad syntax or is inherently impossible to satisfy.\n"
	ERROR_403_TITLE = "Forbidden"
	ERROR_403_FORM  = "You do not have permission to get this file from the server.\n"
	ERROR_404_TITLE = "Not Found"
	ERROR_404_FORM  = "The requested file was not found on this server.\n"
	ERROR_500_TITLE = "Internal Error"
	ERROR_500_FORM  = "There was an unusual problem serving the requested file.\n"
	ERROR_503_TITLE = "Service Unavailable"
	ERROR_503_FORM  = "Internal server busy\n"
	EMPTY_PAGE      = "<html><body></body></html>"
	CONTENT_TYPE    = "text/html"
)

type BodyKind int

const (
	// BodyInline bodies are copied into the write buffer after the headers.
	BodyInline BodyKind = iota
	// BodyFileView bodies are sent straight from a mapped file as a second
	// segment.
	BodyFileView
)

type Body struct {
	Kind BodyKind
	View []byte
}

type WriteStatus int

const (
	// WriteIncomplete means the socket would block; wait for writability.
	WriteIncomplete WriteStatus = iota
	WriteKeepAlive
	WriteClose
	WriteFailed
)

func (s WriteStatus) String() string {
	switch s {
	case WriteIncomplete:
		return "INCOMPLETE"
	case WriteKeepAlive:
		return "KEEP_ALIVE"
	case WriteClose:
		return "CLOSE"
	default:
		return "FAILED"
	}
}

var busyResponse = buildBusyResponse()

func buildBusyResponse() []byte {
	return []byte(fmt.Sprintf("HTTP/1.1 503 %s\r\nContent-Length: %d\r\nConnection: close\r\nContent-Type: %s\r\n\r\n%s",
		ERROR_503_TITLE, len(ERROR_503_FORM), CONTENT_TYPE, ERROR_503_FORM))
}

// BusyResponse is the complete response sent to a client that cannot be
// admitted. Callers must not modify it.
func BusyResponse() []byte {
	return busyResponse
}

func (c *Conn) addResponse(format string, args ...any) bool {
	var s = fmt.Sprintf(format, args...)
	if c.writeIdx+len(s) > WRITE_BUFFER_SIZE {
		return false
	}
	c.writeIdx += copy(c.writeBuf[c.writeIdx:], s)
	return true
}

func (c *Conn) addStatusLine(status int, title string) bool {
	c.status = status
	return c.addResponse("HTTP/1.1 %d %s\r\n", status, title)
}

func (c *Conn) addHeaders(contentLength int) bool {
	var linger = "close"
	if c.keepAlive {
		linger = "keep-alive"
	}
	return c.addResponse("Content-Length: %d\r\n", contentLength) &&
		c.addResponse("Connection: %s\r\n", linger) &&
		c.addResponse("Content-Type: %s\r\n", CONTENT_TYPE) &&
		c.addResponse("\r\n")
}

func (c *Conn) addInline(status int, title, form string) bool {
	return c.addStatusLine(status, title) &&
		c.addHeaders(len(form)) &&
		c.addResponse("%s", form)
}

// buildResponse fills the write buffer for outcome and sets up the body.
func (c *Conn) buildResponse(outcome Outcome) bool {
	var ok bool
	c.body = Body{}
	switch outcome {
	case FileRequest:
		if c.file != nil && len(c.file.Data) > 0 {
			ok = c.addStatusLine(200, OK_200_TITLE) && c.addHeaders(len(c.file.Data))
			c.body = Body{Kind: BodyFileView, View: c.file.Data}
		} else {
			ok = c.addInline(200, OK_200_TITLE, EMPTY_PAGE)
		}
	case BadRequest:
		ok = c.addInline(400, ERROR_400_TITLE, ERROR_400_FORM)
	case Forbidden:
		ok = c.addInline(403, ERROR_403_TITLE, ERROR_403_FORM)
	case NoResource:
		ok = c.addInline(404, ERROR_404_TITLE, ERROR_404_FORM)
	case Unavailable:
		ok = c.addInline(503, ERROR_503_TITLE, ERROR_503_FORM)
	default:
		c.keepAlive = false
		ok = c.addInline(500, ERROR_500_TITLE, ERROR_500_FORM)
	}
	c.total = c.writeIdx + len(c.body.View)
	c.sent = 0
	return ok
}

// Pending reports the response bytes not yet written.
func (c *Conn) Pending() int {
	return c.total - c.sent
}

// segments returns what is left to send. One offset covers both the header
// buffer and the file view.
func (c *Conn) segments() [][]byte {
	var head = c.writeBuf[:c.writeIdx]
	var n = 0
	if c.sent < len(head) {
		c.iov[n] = head[c.sent:]
		n++
		if len(c.body.View) > 0 {
			c.iov[n] = c.body.View
			n++
		}
	} else {
		c.iov[n] = c.body.View[c.sent-len(head):]
		n++
	}
	return c.iov[:n]
}

// Write sends the pending response with writev until it is done or the
// socket would block. Calling it again resumes where the previous call
// stopped.
func (c *Conn) Write() (WriteStatus, error) {
	for c.sent < c.total {
		n, err := unix.Writev(c.fd, c.segments())
		if n > 0 {
			c.sent += n
		}
		if err != nil {
			if err == unix.EAGAIN {
				return WriteIncomplete, nil
			}
			if err == unix.EINTR {
				continue
			}
			c.unmap()
			return WriteFailed, fmt.Errorf("writev fd %d: %w", c.fd, err)
		}
	}

	c.unmap()
	if c.keepAlive {
		return WriteKeepAlive, nil
	}
	return WriteClose, nil
}
