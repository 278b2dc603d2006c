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

package pcm

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// channelFD is where the child finds its end of the message channel:
// the first of exec.Cmd.ExtraFiles.
const channelFD = 3

// ProcessLauncher forks workers as operating system processes, with a
// unix socketpair as the message channel.
type ProcessLauncher struct {
	SampleInterval time.Duration // passed to the worker, 0 for its default
	ReadyDelay     time.Duration // passed to the worker, 0 for its default
	Env            []string      // extra environment for every worker
}

// Process is a running worker process.
type Process struct {
	cmd  *exec.Cmd
	conn net.Conn
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

func (p *Process) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}

// lineWriter feeds process output into a logger a line at a time.
type lineWriter struct {
	logger *log.Logger
	prefix string
	buf    []byte
	mx     sync.Mutex
}

func (lw *lineWriter) Write(b []byte) (int, error) {
	lw.mx.Lock()
	defer lw.mx.Unlock()
	lw.buf = eachLine(append(lw.buf, b...), func(line string) {
		lw.logger.Print(lw.prefix, line)
	})
	return len(b), nil
}

func socketPair() (*os.File, *os.File, error) {
	// Hold the fork lock so that no other exec inherits these before
	// they are marked close-on-exec.
	syscall.ForkLock.RLock()
	fds, e := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if e == nil {
		unix.CloseOnExec(fds[0])
		unix.CloseOnExec(fds[1])
	}
	syscall.ForkLock.RUnlock()
	if e != nil {
		return nil, nil, os.NewSyscallError("socketpair", e)
	}
	return os.NewFile(uintptr(fds[0]), "pcm-parent"),
		os.NewFile(uintptr(fds[1]), "pcm-child"), nil
}

func (l *ProcessLauncher) environ(def Definition) []string {
	env := append(os.Environ(), l.Env...)
	env = append(env,
		EnvWorker+"=1",
		EnvApp+"="+def.Name,
		fmt.Sprintf("%s=%d", EnvChannelFD, channelFD))
	if l.SampleInterval > 0 {
		env = append(env, EnvSampleInterval+"="+l.SampleInterval.String())
	}
	if l.ReadyDelay > 0 {
		env = append(env, EnvReadyDelay+"="+l.ReadyDelay.String())
	}
	return env
}

// Launch forks def.Path with def.Args.
func (l *ProcessLauncher) Launch(def Definition, w *Worker, sink WorkerSink, logger *log.Logger) (Handle, error) {
	parent, child, e := socketPair()
	if e != nil {
		return nil, e
	}
	conn, e := net.FileConn(parent)
	parent.Close()
	if e != nil {
		child.Close()
		return nil, e
	}

	cmd := exec.Command(def.Path, def.Args...)
	cmd.Env = l.environ(def)
	cmd.ExtraFiles = []*os.File{child}
	cmd.Stdout = &lineWriter{logger: logger, prefix: "stdout> "}
	cmd.Stderr = &lineWriter{logger: logger, prefix: "stderr> "}
	// Grandchildren holding our pipes must not wedge Wait.
	cmd.WaitDelay = time.Second

	e = cmd.Start()
	child.Close()
	if e != nil {
		conn.Close()
		return nil, e
	}

	p := &Process{cmd: cmd, conn: conn}
	go p.readMessages(w, sink)
	go func() {
		e := cmd.Wait()
		conn.Close()
		sink.Exited(w, e)
	}()
	return p, nil
}

// readMessages forwards messages until the channel is severed.  Delivery
// is best effort: lines that cannot be decoded are dropped.
func (p *Process) readMessages(w *Worker, sink WorkerSink) {
	dec := NewDecoder(p.conn)
	for {
		m, e := dec.Decode()
		if e != nil {
			var se *json.SyntaxError
			var te *json.UnmarshalTypeError
			if errors.Is(e, ErrUnknownMessage) || errors.As(e, &se) || errors.As(e, &te) {
				continue
			}
			return
		}
		sink.Deliver(w, m)
	}
}

func defaultLauncher() Launcher {
	return &ProcessLauncher{}
}
