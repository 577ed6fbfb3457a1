// Package debug provides handler support for the debugging endpoints.
package debug

import (
	"expvar"
	"net/http"
	"net/http/pprof"

	"github.com/arl/statsviz"
)

// Mux registers all the debug routes into a new mux bypassing the
// DefaultServeMux, so a dependency can't inject a handler into the service
// without us knowing it. Serves pprof, expvar, and live runtime
// visualization under /debug/statsviz.
func Mux() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	if err := statsviz.Register(mux); err != nil {
		return nil, err
	}

	return mux, nil
}
