package httpconn

import (
	"bytes"
	"strconv"

	"github.com/gotcp/webserver/internal/logger"
)

type LineStatus int

const (
	LineOK LineStatus = iota
	LineBad
	LineOpen
)

func (s LineStatus) String() string {
	switch s {
	case LineOK:
		return "LINE_OK"
	case LineBad:
		return "LINE_BAD"
	default:
		return "LINE_OPEN"
	}
}

// Outcome is the result of parsing or processing a request.
type Outcome int

const (
	NeedMore Outcome = iota
	Complete
	BadRequest
	NoResource
	Forbidden
	FileRequest
	InternalError
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case NeedMore:
		return "NEED_MORE"
	case Complete:
		return "COMPLETE"
	case BadRequest:
		return "BAD_REQUEST"
	case NoResource:
		return "NO_RESOURCE"
	case Forbidden:
		return "FORBIDDEN"
	case FileRequest:
		return "FILE_REQUEST"
	case InternalError:
		return "INTERNAL_ERROR"
	case Unavailable:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

var (
	headerConnection    = []byte("connection:")
	headerContentLength = []byte("content-length:")
	headerHost          = []byte("host:")
	prefixHTTP          = []byte("http://")
	prefixHTTPS         = []byte("https://")
)

// ParseLine scans from the checked index for CR LF and overwrites both bytes
// with NUL. A CR that ends the buffer is an open line; a CR not followed by
// LF, or an LF not preceded by CR, is a bad one.
func (c *Conn) ParseLine() LineStatus {
	for ; c.checkedIdx < c.readIdx; c.checkedIdx++ {
		switch c.readBuf[c.checkedIdx] {
		case '\r':
			if c.checkedIdx+1 == c.readIdx {
				return LineOpen
			}
			if c.readBuf[c.checkedIdx+1] == '\n' {
				c.readBuf[c.checkedIdx] = 0
				c.readBuf[c.checkedIdx+1] = 0
				c.checkedIdx += 2
				return LineOK
			}
			return LineBad
		case '\n':
			if c.checkedIdx > 0 && c.readBuf[c.checkedIdx-1] == '\r' {
				c.readBuf[c.checkedIdx-1] = 0
				c.readBuf[c.checkedIdx] = 0
				c.checkedIdx++
				return LineOK
			}
			return LineBad
		}
	}
	return LineOpen
}

// Parse advances the request machine over the bytes read so far. It returns
// NeedMore until a whole request (and its declared body) is buffered, then
// Complete; BadRequest and InternalError are terminal.
func (c *Conn) Parse() Outcome {
	for {
		if c.checkState == StateContent {
			return c.parseContent()
		}

		switch c.ParseLine() {
		case LineOpen:
			if c.readIdx >= READ_BUFFER_SIZE {
				logger.Debug("%s: request head exceeds %d bytes", c.addr, READ_BUFFER_SIZE)
				return BadRequest
			}
			return NeedMore
		case LineBad:
			return BadRequest
		}

		var line = c.readBuf[c.startLine : c.checkedIdx-2]
		c.startLine = c.checkedIdx

		switch c.checkState {
		case StateRequestLine:
			if !c.parseRequestLine(line) {
				return BadRequest
			}
			c.checkState = StateHeader
		case StateHeader:
			if outcome := c.parseHeader(line); outcome != NeedMore {
				return outcome
			}
		default:
			return InternalError
		}
	}
}

func splitToken(b []byte) ([]byte, []byte, bool) {
	var i = bytes.IndexAny(b, " \t")
	if i < 0 {
		return nil, nil, false
	}
	return b[:i], bytes.TrimLeft(b[i+1:], " \t"), true
}

func (c *Conn) parseRequestLine(line []byte) bool {
	method, rest, ok := splitToken(line)
	if !ok {
		return false
	}
	switch {
	case bytes.EqualFold(method, []byte("GET")):
		c.method = GET
	case bytes.EqualFold(method, []byte("POST")):
		c.method = POST
	default:
		logger.Debug("%s: unsupported method %q", c.addr, method)
		return false
	}

	target, version, ok := splitToken(rest)
	if !ok {
		return false
	}
	version = bytes.TrimRight(version, " \t")
	if !bytes.EqualFold(version, []byte("HTTP/1.1")) {
		return false
	}

	for _, prefix := range [][]byte{prefixHTTP, prefixHTTPS} {
		if len(target) >= len(prefix) && bytes.EqualFold(target[:len(prefix)], prefix) {
			target = target[len(prefix):]
			var slash = bytes.IndexByte(target, '/')
			if slash < 0 {
				return false
			}
			target = target[slash:]
			break
		}
	}
	if len(target) == 0 || target[0] != '/' {
		return false
	}

	c.version = string(version)
	if len(target) == 1 {
		c.target = "/" + c.site.DefaultPage
	} else {
		c.target = string(target)
	}
	return true
}

func hasPrefixFold(b, prefix []byte) bool {
	return len(b) >= len(prefix) && bytes.EqualFold(b[:len(prefix)], prefix)
}

func (c *Conn) parseHeader(line []byte) Outcome {
	if len(line) == 0 {
		if c.contentLength == 0 {
			c.consumed = c.checkedIdx
			return Complete
		}
		if c.contentLength > READ_BUFFER_SIZE-c.checkedIdx {
			logger.Debug("%s: body of %d bytes does not fit the read buffer", c.addr, c.contentLength)
			return BadRequest
		}
		c.checkState = StateContent
		return NeedMore
	}

	switch {
	case hasPrefixFold(line, headerConnection):
		var value = bytes.Trim(line[len(headerConnection):], " \t")
		c.keepAlive = bytes.EqualFold(value, []byte("keep-alive"))
	case hasPrefixFold(line, headerContentLength):
		var value = bytes.Trim(line[len(headerContentLength):], " \t")
		n, err := strconv.Atoi(string(value))
		if err != nil || n < 0 {
			return BadRequest
		}
		c.contentLength = n
	case hasPrefixFold(line, headerHost):
		c.host = string(bytes.Trim(line[len(headerHost):], " \t"))
	default:
		if logger.Enabled(logger.LevelDebug) {
			logger.Debug("%s: ignoring header %q", c.addr, line)
		}
	}
	return NeedMore
}

// parseContent completes once the declared body is buffered past the header
// boundary. Anything after it stays in the buffer for the next request.
func (c *Conn) parseContent() Outcome {
	if c.readIdx-c.checkedIdx < c.contentLength {
		return NeedMore
	}
	c.content = c.readBuf[c.checkedIdx : c.checkedIdx+c.contentLength]
	c.consumed = c.checkedIdx + c.contentLength
	return Complete
}
