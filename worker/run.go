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

package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// Exit codes used by Run.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitPanic  = 2
)

// Run runs fn as the body of a supervised worker and exits the process
// with its outcome.  It does not return.
func Run(fn func(ctx context.Context, s *Shim) error) {
	s, e := FromEnv()
	if e != nil {
		log.Fatalf("Cannot start worker: %v", e)
	}
	os.Exit(s.Run(fn))
}

// Run starts the shim and calls fn.  The context passed to fn is
// canceled on SIGTERM or SIGINT; after that a second signal terminates
// the process outright.  The exit notification is sent whichever way fn
// ends, including a panic, which is then propagated.  The return value
// is the exit code.
func (s *Shim) Run(fn func(ctx context.Context, s *Shim) error) (code int) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	s.Start()
	defer func() {
		if r := recover(); r != nil {
			s.Exit(ExitPanic)
			panic(r)
		}
	}()

	if e := fn(ctx, s); e != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", s.app, e)
		code = ExitFailed
	}
	s.Exit(code)
	return code
}
