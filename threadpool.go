package webserver

import (
	"time"

	"github.com/gotcp/webserver/internal/httpconn"
	"github.com/gotcp/webserver/internal/resource"
)

// process is the worker pool handler. The generation is checked before the
// connection is touched and again before the result is handed back.
func (ep *EP) process(tok Token, h resource.Handle) {
	var s = &ep.slots[tok.Slot]
	if s.gen.Load() != tok.Gen {
		ep.complete(completion{token: tok, stale: true})
		return
	}

	var start = time.Now()
	var outcome = s.conn.Process(h)
	var c = completion{
		token:   tok,
		outcome: outcome,
		status:  s.conn.Status(),
		elapsed: time.Since(start),
	}
	if s.gen.Load() != tok.Gen {
		c.stale = true
	}
	ep.complete(c)
}

func (ep *EP) processPanicked(tok Token, recovered any) {
	ep.complete(completion{token: tok, outcome: httpconn.InternalError, panicked: true})
}
