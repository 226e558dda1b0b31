package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/psantana5/euclid/pkg/tracing"
)

// Middleware counts requests and their sizes by route template
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter := &byteCounter{ResponseWriter: w}
		rw := &tracing.StatusRecorder{ResponseWriter: counter, Status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		in := r.ContentLength
		if in < 0 {
			in = 0
		}
		c.ObserveRequest(route, r.Method, rw.Status)
		c.ObserveTransfer(route, r.Method, in, counter.written)
	})
}

type byteCounter struct {
	http.ResponseWriter
	written int64
}

func (b *byteCounter) Write(p []byte) (int, error) {
	n, err := b.ResponseWriter.Write(p)
	b.written += int64(n)
	return n, err
}
