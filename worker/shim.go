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

// Package worker is the runtime linked into programs run under pcmd.  It
// reports resource usage to the supervisor over the channel the
// supervisor passed down, announces readiness once the process survived
// its grace period, and says goodbye when the process exits.
package worker

import (
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/pcm"
	"github.com/prometheus/procfs"
)

const (
	DefaultSampleInterval = time.Millisecond * 1024
	DefaultReadyDelay     = time.Second * 5
)

// Shim is the worker side of the supervisor channel.
type Shim struct {
	app      string
	w        io.WriteCloser
	enc      *pcm.Encoder
	interval time.Duration
	delay    time.Duration
	conns    atomic.Int64

	lastUser   uint64
	lastSystem uint64
	proc       *procfs.Proc
	mx         sync.Mutex

	stop      chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
	exitOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// IsWorker reports whether this process was forked by the supervisor.
func IsWorker() bool {
	return os.Getenv(pcm.EnvWorker) == "1"
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, e := time.ParseDuration(v)
	if e != nil || d <= 0 {
		return 0, fmt.Errorf("bad %s %q", name, v)
	}
	return d, nil
}

// FromEnv connects to the channel described by the environment.  It
// fails with pcm.ErrNotWorker when not running under the supervisor.
func FromEnv() (*Shim, error) {
	if !IsWorker() {
		return nil, pcm.ErrNotWorker
	}
	fd, e := strconv.Atoi(os.Getenv(pcm.EnvChannelFD))
	if e != nil {
		return nil, fmt.Errorf("bad %s: %w", pcm.EnvChannelFD, e)
	}
	interval, e := envDuration(pcm.EnvSampleInterval, DefaultSampleInterval)
	if e != nil {
		return nil, e
	}
	delay, e := envDuration(pcm.EnvReadyDelay, DefaultReadyDelay)
	if e != nil {
		return nil, e
	}
	f := os.NewFile(uintptr(fd), "pcm-channel")
	if f == nil {
		return nil, fmt.Errorf("bad %s: %d", pcm.EnvChannelFD, fd)
	}
	conn, e := net.FileConn(f)
	f.Close()
	if e != nil {
		return nil, e
	}
	return New(os.Getenv(pcm.EnvApp), conn, interval, delay), nil
}

// New creates a shim sending to w.  Zero durations select the defaults.
func New(app string, w io.WriteCloser, interval, delay time.Duration) *Shim {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	if delay <= 0 {
		delay = DefaultReadyDelay
	}
	s := &Shim{
		app:      app,
		w:        w,
		enc:      pcm.NewEncoder(w),
		interval: interval,
		delay:    delay,
		stop:     make(chan struct{}),
	}
	if p, e := procfs.Self(); e == nil {
		s.proc = &p
		if st, e := p.Stat(); e == nil {
			s.lastUser = uint64(st.UTime)
			s.lastSystem = uint64(st.STime)
		}
	}
	return s
}

// App returns the application name the worker runs as.
func (s *Shim) App() string {
	return s.app
}

// SetConnections sets the connection count reported in samples.
func (s *Shim) SetConnections(n int) {
	s.conns.Store(int64(n))
}

// AddConnections adjusts the connection count by delta.
func (s *Shim) AddConnections(delta int) {
	s.conns.Add(int64(delta))
}

// Sample captures usage since the previous sample.  Without procfs the
// CPU and RSS figures are zero.
func (s *Shim) Sample() pcm.LoadSample {
	ls := pcm.LoadSample{
		Pid:   os.Getpid(),
		Conns: int(s.conns.Load()),
	}
	s.mx.Lock()
	if s.proc != nil {
		if st, e := s.proc.Stat(); e == nil {
			user, system := uint64(st.UTime), uint64(st.STime)
			ls.CPUUser = user - s.lastUser
			ls.CPUSystem = system - s.lastSystem
			s.lastUser, s.lastSystem = user, system
			ls.RSS = uint64(st.ResidentMemory())
		}
	}
	s.mx.Unlock()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	ls.HeapTotal = ms.HeapSys
	ls.HeapUsed = ms.HeapAlloc
	return ls
}

// Start begins periodic sampling and arms the readiness announcement.
func (s *Shim) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
}

func (s *Shim) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	ready := time.NewTimer(s.delay)
	defer ready.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// The supervisor may be gone; nothing to do about it.
			_ = s.enc.Encode(&pcm.LoadMessage{LoadSample: s.Sample()})
		case <-ready.C:
			_ = s.enc.Encode(&pcm.RunningMessage{App: s.app})
		}
	}
}

// Exit sends the exit notification, once, and closes the channel.
func (s *Shim) Exit(code int) {
	s.exitOnce.Do(func() {
		s.halt()
		_ = s.enc.Encode(&pcm.ExitMessage{App: s.app, Code: code})
		s.Close()
	})
}

func (s *Shim) halt() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

// Close stops sampling and closes the channel without notification.
func (s *Shim) Close() error {
	var e error
	s.closeOnce.Do(func() {
		s.halt()
		e = s.w.Close()
	})
	return e
}
