// Copyright 2026 The PCM Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rest exposes the supervisor over HTTP: application status and
// logs, start/stop/restart actions, and Prometheus metrics.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gdamore/pcm"
	"github.com/gdamore/pcm/ctl"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// Handler wraps a supervisor, adding http.Handler functionality.
type Handler struct {
	b       ctl.Backend
	r       *mux.Router
	user    string
	hash    []byte
	metrics http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithBasicAuth requires HTTP basic authentication as user, with a
// password matching the bcrypt hash.
func WithBasicAuth(user, hash string) Option {
	return func(h *Handler) {
		h.user = user
		h.hash = []byte(hash)
	}
}

// WithMetrics serves m at /metrics.
func WithMetrics(m http.Handler) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// fail maps a supervisor error onto an HTTP status.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, pcm.ErrNoSuchApp):
		code = http.StatusNotFound
	case errors.Is(err, pcm.ErrShutdown):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	h.writeError(w, &Error{code, err.Error()})
}

func (h *Handler) listApps(w http.ResponseWriter, r *http.Request) {
	if apps, e := h.b.List(r.Context()); e != nil {
		h.fail(w, e)
	} else {
		h.writeJson(w, apps)
	}
}

func (h *Handler) getApp(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["app"]
	if apps, e := h.b.Show(r.Context(), name); e != nil {
		h.fail(w, e)
	} else if name != pcm.AllApps && len(apps) == 1 {
		h.writeJson(w, apps[0])
	} else {
		h.writeJson(w, apps)
	}
}

func (h *Handler) action(verb string, fn func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["app"]
		if e := fn(r.Context(), name); e != nil {
			h.fail(w, e)
		} else {
			h.writeJson(w, &Result{Message: verb + " " + name})
		}
	}
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["app"]
	if recs, e := h.b.Log(r.Context(), name); e != nil {
		h.fail(w, e)
	} else {
		h.writeJson(w, recs)
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.hash == nil {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != h.user {
		return false
	}
	return bcrypt.CompareHashAndPassword(h.hash, []byte(pass)) == nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !h.authorized(req) {
		w.Header().Set("WWW-Authenticate", `Basic realm="pcm"`)
		h.writeError(w, &Error{http.StatusUnauthorized, "Unauthorized"})
		return
	}
	h.r.ServeHTTP(w, req)
}

func NewHandler(b ctl.Backend, opts ...Option) *Handler {
	r := mux.NewRouter()
	h := &Handler{b: b, r: r}
	for _, o := range opts {
		o(h)
	}
	r.HandleFunc("/apps", h.listApps).Methods("GET")
	r.HandleFunc("/apps/{app}", h.getApp).Methods("GET")
	r.HandleFunc("/apps/{app}/start", h.action("started", b.Start)).Methods("POST")
	r.HandleFunc("/apps/{app}/stop", h.action("stopped", b.Stop)).Methods("POST")
	r.HandleFunc("/apps/{app}/restart", h.action("restarted", b.Restart)).Methods("POST")
	r.HandleFunc("/apps/{app}/log", h.getLog).Methods("GET")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}
	return h
}
