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

//go:build unix

// Command pcmdemo is a sample worker: an HTTP server whose instances
// all listen on one port, reporting their open connections to pcmd.
//
//	pcmd --app $(which pcmdemo) --name demo -n 4 --arg -a --arg :8080
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/gdamore/pcm/worker"
)

// listen binds addr with SO_REUSEPORT so that sibling workers share it.
func listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			e := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if e != nil {
				return e
			}
			return serr
		},
	}
	return lc.Listen(ctx, "tcp", addr)
}

// tracker counts open connections through the server's state hook.
func tracker(s *worker.Shim) func(net.Conn, http.ConnState) {
	return func(_ net.Conn, st http.ConnState) {
		switch st {
		case http.StateNew:
			s.AddConnections(1)
		case http.StateHijacked, http.StateClosed:
			s.AddConnections(-1)
		}
	}
}

func serve(ctx context.Context, s *worker.Shim, addr string) error {
	ln, e := listen(ctx, addr)
	if e != nil {
		return e
	}
	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "%s: served by pid %d\n", s.App(), os.Getpid())
		}),
		ConnState:         tracker(s),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	log.Printf("pid %d listening on %s", os.Getpid(), ln.Addr())
	if e := srv.Serve(ln); !errors.Is(e, http.ErrServerClosed) {
		return e
	}
	return nil
}

func main() {
	addr := pflag.StringP("addr", "a", ":8080", "listen address")
	pflag.Parse()

	if !worker.IsWorker() {
		log.Fatalf("pcmdemo must be started by pcmd")
	}
	worker.Run(func(ctx context.Context, s *worker.Shim) error {
		return serve(ctx, s, *addr)
	})
}
