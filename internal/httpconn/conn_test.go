package httpconn

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/gotcp/webserver/internal/docroot"
	"github.com/gotcp/webserver/internal/resource"
)

type fakeAccounts struct {
	users map[string]string
}

func (f *fakeAccounts) ID() int      { return 0 }
func (f *fakeAccounts) Close() error { return nil }

func (f *fakeAccounts) Verify(user, password string) (bool, error) {
	pw, ok := f.users[user]
	return ok && pw == password, nil
}

func (f *fakeAccounts) Register(user, password string) (bool, error) {
	if _, ok := f.users[user]; ok {
		return false, nil
	}
	f.users[user] = password
	return true, nil
}

// opaqueHandle is a resource handle with no credential support.
type opaqueHandle struct{}

func (opaqueHandle) ID() int      { return 1 }
func (opaqueHandle) Close() error { return nil }

var pages = map[string]string{
	"judge.html":         "<html>judge</html>",
	"welcome.html":       "<html>welcome</html>",
	"logError.html":      "<html>log error</html>",
	"log.html":           "<html>log</html>",
	"register.html":      "<html>register</html>",
	"registerError.html": "<html>register error</html>",
}

func newSite(t *testing.T) *Site {
	t.Helper()
	var dir = t.TempDir()
	require.NoError(t, os.Chmod(dir, 0755))
	for name, body := range pages {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.html"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "private.html"), []byte("secret"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "pages"), 0755))

	root, err := docroot.New(dir)
	require.NoError(t, err)
	return &Site{Root: root, DefaultPage: "judge.html", Aliases: DefaultAliases(), Pages: DefaultPages()}
}

// socketPair returns a connection bound to one end of a socketpair and the
// peer end, both non-blocking.
func socketPair(t *testing.T, site *Site) (*Conn, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})

	var c = New(site)
	c.Init(fds[0], "peer")
	return c, fds[1]
}

func send(t *testing.T, fd int, data string) {
	t.Helper()
	n, err := unix.Write(fd, []byte(data))
	require.NoError(t, err)
	require.Equal(t, len(data), n)
}

func drain(fd int) []byte {
	var out []byte
	var buf = make([]byte, 64*1024)
	for {
		n, err := unix.Read(fd, buf)
		if n <= 0 || err != nil {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

type response struct {
	status  string
	headers map[string]string
	body    string
}

func parseResponse(t *testing.T, raw []byte) response {
	t.Helper()
	head, body, ok := bytes.Cut(raw, []byte("\r\n\r\n"))
	require.True(t, ok, "response has no header terminator: %q", raw)

	var lines = strings.Split(string(head), "\r\n")
	var r = response{status: lines[0], headers: map[string]string{}, body: string(body)}
	for _, line := range lines[1:] {
		k, v, _ := strings.Cut(line, ":")
		r.headers[k] = strings.TrimSpace(v)
	}
	return r
}

// roundTrip sends one request and runs the connection through read,
// process and write.
func roundTrip(t *testing.T, c *Conn, peer int, request string, h resource.Handle) (response, WriteStatus) {
	t.Helper()
	send(t, peer, request)
	require.NoError(t, c.ReadOnce())
	require.NotEqual(t, NeedMore, c.Process(h))

	status, err := c.Write()
	require.NoError(t, err)
	require.NotEqual(t, WriteIncomplete, status)
	return parseResponse(t, drain(peer)), status
}

func TestProcessGet(t *testing.T) {
	var site = newSite(t)

	var tests = []struct {
		name   string
		target string
		status string
		body   string
	}{
		{"DefaultPage", "/", "HTTP/1.1 200 OK", pages["judge.html"]},
		{"Alias", "/0", "HTTP/1.1 200 OK", pages["register.html"]},
		{"EmptyFile", "/empty.html", "HTTP/1.1 200 OK", EMPTY_PAGE},
		{"Traversal", "/../secret", "HTTP/1.1 400 Bad Request", ERROR_400_FORM},
		{"Directory", "/pages", "HTTP/1.1 400 Bad Request", ERROR_400_FORM},
		{"NotReadable", "/private.html", "HTTP/1.1 403 Forbidden", ERROR_403_FORM},
		{"Missing", "/missing.html", "HTTP/1.1 404 Not Found", ERROR_404_FORM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c, peer = socketPair(t, site)
			resp, status := roundTrip(t, c, peer, "GET "+tt.target+" HTTP/1.1\r\nConnection: keep-alive\r\n\r\n", nil)

			assert.Equal(t, tt.status, resp.status)
			assert.Equal(t, tt.body, resp.body)
			assert.Equal(t, "text/html", resp.headers["Content-Type"])
			assert.Equal(t, "keep-alive", resp.headers["Connection"])
			assert.Equal(t, WriteKeepAlive, status)
		})
	}
}

func TestProcessBadRequestCloses(t *testing.T) {
	var c, peer = socketPair(t, newSite(t))
	resp, status := roundTrip(t, c, peer, "DELETE / HTTP/1.1\r\nConnection: keep-alive\r\n\r\n", nil)

	assert.Equal(t, "HTTP/1.1 400 Bad Request", resp.status)
	assert.Equal(t, "close", resp.headers["Connection"])
	assert.Equal(t, WriteClose, status)
}

func TestProcessForms(t *testing.T) {
	var site = newSite(t)
	var accounts = &fakeAccounts{users: map[string]string{"alice": "secret"}}

	var tests = []struct {
		name   string
		target string
		form   string
		body   string
	}{
		{"LoginOK", "/2CGISQL.cgi", "user=alice&password=secret", pages["welcome.html"]},
		{"LoginWrongPassword", "/2CGISQL.cgi", "user=alice&password=nope", pages["logError.html"]},
		{"RegisterNew", "/3CGISQL.cgi", "user=bob&password=pw", pages["log.html"]},
		{"RegisterTaken", "/3CGISQL.cgi", "user=alice&password=pw", pages["registerError.html"]},
		{"RegisterEmptyName", "/3CGISQL.cgi", "user=&password=pw", pages["registerError.html"]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c, peer = socketPair(t, site)
			var req = "POST " + tt.target + " HTTP/1.1\r\nContent-Length: " + strconv.Itoa(len(tt.form)) + "\r\n\r\n" + tt.form
			resp, status := roundTrip(t, c, peer, req, accounts)

			assert.Equal(t, "HTTP/1.1 200 OK", resp.status)
			assert.Equal(t, tt.body, resp.body)
			assert.Equal(t, WriteClose, status)
		})
	}

	t.Run("NoSessionIsUnavailable", func(t *testing.T) {
		var c, peer = socketPair(t, site)
		resp, _ := roundTrip(t, c, peer, "POST /2 HTTP/1.1\r\nContent-Length: 3\r\n\r\nx=y", opaqueHandle{})
		assert.Equal(t, "HTTP/1.1 503 Service Unavailable", resp.status)
		assert.Equal(t, ERROR_503_FORM, resp.body)
	})

	t.Run("GetIsNotAForm", func(t *testing.T) {
		var c, peer = socketPair(t, site)
		resp, _ := roundTrip(t, c, peer, "GET /2 HTTP/1.1\r\n\r\n", nil)
		assert.Equal(t, "HTTP/1.1 404 Not Found", resp.status)
	})
}

func TestKeepAliveLeftover(t *testing.T) {
	var c, peer = socketPair(t, newSite(t))
	var accounts = &fakeAccounts{users: map[string]string{}}

	resp, status := roundTrip(t, c, peer,
		"POST /3 HTTP/1.1\r\nConnection: keep-alive\r\nContent-Length: 5\r\n\r\nuser=GET", accounts)
	require.Equal(t, WriteKeepAlive, status)
	assert.Equal(t, pages["registerError.html"], resp.body)

	c.Reset()
	assert.Equal(t, 3, c.Buffered())

	send(t, peer, " / HTTP/1.1\r\n\r\n")
	require.NoError(t, c.ReadOnce())
	require.Equal(t, FileRequest, c.Process(nil))
	assert.Equal(t, "/judge.html", c.Target())
}

func TestPartialWriteResumes(t *testing.T) {
	var site = newSite(t)
	var big = bytes.Repeat([]byte("0123456789abcdef"), 64*1024)
	require.NoError(t, os.WriteFile(filepath.Join(site.Root.Dir(), "big.html"), big, 0644))

	var c, peer = socketPair(t, site)
	require.NoError(t, unix.SetsockoptInt(c.Fd(), unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

	send(t, peer, "GET /big.html HTTP/1.1\r\n\r\n")
	require.NoError(t, c.ReadOnce())
	require.Equal(t, FileRequest, c.Process(nil))
	var total = c.Pending()

	var received []byte
	var incomplete = 0
	for {
		status, err := c.Write()
		require.NoError(t, err)
		received = append(received, drain(peer)...)
		if status != WriteIncomplete {
			assert.Equal(t, WriteClose, status)
			break
		}
		incomplete++
		require.Less(t, incomplete, 100000)
	}
	received = append(received, drain(peer)...)

	assert.Greater(t, incomplete, 0)
	assert.Equal(t, total, len(received))
	var resp = parseResponse(t, received)
	assert.Equal(t, strconv.Itoa(len(big)), resp.headers["Content-Length"])
	assert.True(t, bytes.Equal(big, []byte(resp.body)))
}

func TestReadOnce(t *testing.T) {
	t.Run("PeerClosed", func(t *testing.T) {
		var c, peer = socketPair(t, newSite(t))
		require.NoError(t, unix.Shutdown(peer, unix.SHUT_WR))
		assert.ErrorIs(t, c.ReadOnce(), io.EOF)
	})

	t.Run("NothingAvailable", func(t *testing.T) {
		var c, _ = socketPair(t, newSite(t))
		assert.NoError(t, c.ReadOnce())
		assert.Equal(t, 0, c.Buffered())
	})

	t.Run("BufferFull", func(t *testing.T) {
		var c, peer = socketPair(t, newSite(t))
		send(t, peer, strings.Repeat("a", READ_BUFFER_SIZE+10))
		require.NoError(t, c.ReadOnce())
		assert.Equal(t, READ_BUFFER_SIZE, c.Buffered())
		assert.ErrorIs(t, c.ReadOnce(), ErrReadBufferFull)
	})
}

func TestBusyResponse(t *testing.T) {
	var resp = parseResponse(t, BusyResponse())
	assert.Equal(t, "HTTP/1.1 503 Service Unavailable", resp.status)
	assert.Equal(t, "close", resp.headers["Connection"])
	assert.Equal(t, strconv.Itoa(len(resp.body)), resp.headers["Content-Length"])
	assert.Equal(t, "Internal server busy\n", resp.body)
}
