package httpconn

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gotcp/webserver/internal/docroot"
	"github.com/gotcp/webserver/internal/logger"
	"github.com/gotcp/webserver/internal/resource"
)

// Credentials is what form submissions need from a borrowed resource handle.
type Credentials interface {
	Verify(user, password string) (bool, error)
	Register(user, password string) (bool, error)
}

const (
	FORM_LOGIN    = '2'
	FORM_REGISTER = '3'
)

// Process parses what has been read and, once a request is complete, builds
// its response. h is the resource handle borrowed for this call and may be
// nil. Every outcome except NeedMore leaves a complete response ready for
// Write.
func (c *Conn) Process(h resource.Handle) Outcome {
	var outcome = c.Parse()
	switch outcome {
	case NeedMore:
		return NeedMore
	case Complete:
		outcome = c.doRequest(h)
	default:
		c.keepAlive = false
	}

	if !c.buildResponse(outcome) {
		logger.Error("%s: response for %s %s does not fit the write buffer", c.addr, c.method, c.target)
		c.unmap()
		c.writeIdx = 0
		c.keepAlive = false
		outcome = InternalError
		c.buildResponse(outcome)
	}
	logger.Info("%s \"%s %s\" %d", c.addr, c.method, c.target, c.status)
	return outcome
}

func (c *Conn) doRequest(h resource.Handle) Outcome {
	var last = c.target[strings.LastIndexByte(c.target, '/')+1:]
	var target = c.target

	if c.method == POST && len(last) > 0 && (last[0] == FORM_LOGIN || last[0] == FORM_REGISTER) {
		page, outcome := c.submitForm(h, last[0])
		if outcome != Complete {
			return outcome
		}
		target = "/" + page
	} else if page, ok := c.site.Aliases[last]; ok {
		target = "/" + page
	}

	f, err := c.site.Root.Resolve(target)
	switch {
	case err == nil:
		c.file = f
		return FileRequest
	case errors.Is(err, docroot.ErrOutsideRoot), errors.Is(err, docroot.ErrIsDirectory):
		return BadRequest
	case errors.Is(err, docroot.ErrForbidden):
		return Forbidden
	case errors.Is(err, docroot.ErrNotFound):
		return NoResource
	default:
		logger.Error("%s: resolve %s: %v", c.addr, target, err)
		return InternalError
	}
}

// submitForm handles a login or register body of the form
// user=NAME&password=PASS and picks the result page.
func (c *Conn) submitForm(h resource.Handle, kind byte) (string, Outcome) {
	creds, ok := h.(Credentials)
	if !ok {
		logger.Warn("%s: no accounts session available", c.addr)
		return "", Unavailable
	}

	values, err := url.ParseQuery(string(c.content))
	if err != nil {
		return "", BadRequest
	}
	var user = values.Get("user")
	var password = values.Get("password")

	if kind == FORM_REGISTER {
		if user == "" {
			return c.site.Pages.RegisterError, Complete
		}
		created, err := creds.Register(user, password)
		if err != nil {
			logger.Error("%s: register %q: %v", c.addr, user, err)
			return "", InternalError
		}
		logger.Info("%s: register %q created=%t", c.addr, user, created)
		if created {
			return c.site.Pages.Registered, Complete
		}
		return c.site.Pages.RegisterError, Complete
	}

	valid, err := creds.Verify(user, password)
	if err != nil {
		logger.Error("%s: login %q: %v", c.addr, user, err)
		return "", InternalError
	}
	logger.Info("%s: login %q valid=%t", c.addr, user, valid)
	if valid {
		return c.site.Pages.Welcome, Complete
	}
	return c.site.Pages.LoginError, Complete
}
