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

package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gdamore/pcm"
	"github.com/google/uuid"
	"golang.org/x/net/netutil"
)

const (
	DefaultMaxSessions = 16
	DefaultMaxRequest  = 4096
	DefaultReadTimeout = time.Second * 5
	DefaultOpTimeout   = time.Second * 60
)

// InvalidVerb is the verb under which requests that never reach the
// backend are counted.
const InvalidVerb = "invalid"

// Backend carries out control commands.  *pcm.Supervisor is one.
type Backend interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Show(ctx context.Context, name string) ([]pcm.AppStatus, error)
	List(ctx context.Context) ([]pcm.AppStatus, error)
	Log(ctx context.Context, name string) ([]pcm.LogRecord, error)
	Exit(ctx context.Context) error
}

// Response is what the server writes back, as a single JSON object.
type Response struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Apps    []pcm.AppStatus `json:"apps,omitempty"`
	Log     []pcm.LogRecord `json:"log,omitempty"`
}

// Err returns the failure carried by the response, if any.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	return errors.New(r.Error)
}

// Server serves control sessions.
type Server struct {
	MaxSessions int
	MaxRequest  int64
	ReadTimeout time.Duration
	OpTimeout   time.Duration

	// Metrics counts rejected requests.  Accepted ones are counted by
	// the backend.
	Metrics pcm.MetricsCollector

	backend Backend
	logger  *log.Logger
	path    string
	ln      net.Listener
	wg      sync.WaitGroup
	mx      sync.Mutex
	closed  bool
}

// NewServer creates a server dispatching to b.  Session outcomes are
// logged to logger, which may be nil.
func NewServer(b Backend, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		MaxSessions: DefaultMaxSessions,
		MaxRequest:  DefaultMaxRequest,
		ReadTimeout: DefaultReadTimeout,
		OpTimeout:   DefaultOpTimeout,
		Metrics:     pcm.NewNoopMetricsCollector(),
		backend:     b,
		logger:      logger,
	}
}

// Listen creates the socket at path.  Whatever is left at path from an
// earlier run is removed first.
func (s *Server) Listen(path string) error {
	if fi, e := os.Lstat(path); e == nil {
		if fi.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		if e := os.Remove(path); e != nil {
			return e
		}
	}
	if e := os.MkdirAll(filepath.Dir(path), 0755); e != nil {
		return e
	}
	ln, e := net.Listen("unix", path)
	if e != nil {
		return e
	}
	if e := os.Chmod(path, 0600); e != nil {
		ln.Close()
		return e
	}
	if s.MaxSessions > 0 {
		ln = netutil.LimitListener(ln, s.MaxSessions)
	}
	s.mx.Lock()
	s.ln = ln
	s.path = path
	s.mx.Unlock()
	return nil
}

// Path returns the socket path, once listening.
func (s *Server) Path() string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.path
}

// Serve accepts sessions until ctx is canceled or Close is called.
// Sessions in progress are waited for.
func (s *Server) Serve(ctx context.Context) error {
	s.mx.Lock()
	ln := s.ln
	s.mx.Unlock()
	if ln == nil {
		return errors.New("ctl: not listening")
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		conn, e := ln.Accept()
		if e != nil {
			if s.isClosed() || errors.Is(e, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(e, &ne) && ne.Timeout() {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return e
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.session(ctx, conn)
		}()
	}
}

func (s *Server) isClosed() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.closed
}

// Close stops accepting sessions and removes the socket.
func (s *Server) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.closed || s.ln == nil {
		return nil
	}
	s.closed = true
	e := s.ln.Close()
	os.Remove(s.path)
	return e
}

// session reads the request until the client half-closes, then answers.
func (s *Server) session(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	id := uuid.NewString()

	var resp *Response
	conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	b, e := io.ReadAll(io.LimitReader(conn, s.MaxRequest+1))
	switch {
	case e != nil:
		resp = s.reject(fmt.Errorf("reading request: %w", e))
	case int64(len(b)) > s.MaxRequest:
		resp = s.reject(&ProtocolError{Reason: "request too long"})
	default:
		resp = s.Handle(ctx, string(b))
	}
	if resp.OK {
		s.logger.Printf("Session %s: %q ok", id, string(b))
	} else {
		s.logger.Printf("Session %s: %q failed: %s", id, string(b), resp.Error)
	}

	conn.SetWriteDeadline(time.Now().Add(s.ReadTimeout))
	if e := json.NewEncoder(conn).Encode(resp); e != nil {
		s.logger.Printf("Session %s: writing response: %v", id, e)
	}
}

func failure(e error) *Response {
	return &Response{Error: e.Error()}
}

func (s *Server) reject(e error) *Response {
	s.Metrics.Command(InvalidVerb, e)
	return failure(e)
}

// Handle parses and executes one command line.
func (s *Server) Handle(ctx context.Context, line string) *Response {
	cmd, e := ParseCommand(line)
	if e != nil {
		return s.reject(e)
	}
	if s.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.OpTimeout)
		defer cancel()
	}

	resp := &Response{}
	switch cmd.Verb {
	case VerbStart:
		e = s.backend.Start(ctx, cmd.Name)
		resp.Message = "started " + cmd.Name
	case VerbStop:
		e = s.backend.Stop(ctx, cmd.Name)
		resp.Message = "stopped " + cmd.Name
	case VerbRestart:
		e = s.backend.Restart(ctx, cmd.Name)
		resp.Message = "restarted " + cmd.Name
	case VerbShow:
		resp.Apps, e = s.backend.Show(ctx, cmd.Name)
	case VerbList:
		resp.Apps, e = s.backend.List(ctx)
	case VerbLog:
		resp.Log, e = s.backend.Log(ctx, cmd.Name)
	case VerbExit:
		e = s.backend.Exit(ctx)
		resp.Message = "shutting down"
	}
	if e != nil {
		return failure(e)
	}
	resp.OK = true
	return resp
}
