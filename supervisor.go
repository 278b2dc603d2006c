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

package pcm

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"
)

// DefaultTick is the interval between supervision ticks.
const DefaultTick = time.Second * 2

// Supervisor runs the pools of every registered application.  All
// supervision state is owned by a single goroutine, the one calling Run;
// worker messages, exits, timers and control requests are all queued to
// it as functions and run one at a time.
type Supervisor struct {
	reg       *Registry
	pools     map[string]*Pool
	launcher  Launcher
	tick      time.Duration
	metrics   MetricsCollector
	hook      func(app string, snap LoadSnapshot)
	autoStart bool
	sink      WorkerSink

	queue   chan func()
	done    chan struct{}
	running atomic.Bool
	closing bool
	fatal   error

	mlog   *MultiLogger
	logger *log.Logger
	log    *Log
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLauncher replaces the process launcher.
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) {
		s.launcher = l
	}
}

// WithTick sets the supervision tick interval.
func WithTick(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(s *Supervisor) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSnapshotHook registers a function called, on the supervisor loop,
// with every completed telemetry snapshot.  It must not block.
func WithSnapshotHook(fn func(app string, snap LoadSnapshot)) Option {
	return func(s *Supervisor) {
		s.hook = fn
	}
}

// WithAutoStart starts every application when Run begins, and every
// application added while running.
func WithAutoStart(on bool) Option {
	return func(s *Supervisor) {
		s.autoStart = on
	}
}

// WithLogger adds a destination for the supervisor log.  Application
// logs are included.
func WithLogger(l *log.Logger) Option {
	return func(s *Supervisor) {
		s.mlog.AddLogger(l)
	}
}

// NewSupervisor creates a supervisor for the applications in reg.  From
// here on the registry must only be used through the supervisor.
func NewSupervisor(reg *Registry, opts ...Option) *Supervisor {
	s := &Supervisor{
		reg:      reg,
		pools:    make(map[string]*Pool),
		launcher: defaultLauncher(),
		tick:     DefaultTick,
		metrics:  NewNoopMetricsCollector(),
		queue:    make(chan func(), 256),
		done:     make(chan struct{}),
		mlog:     NewMultiLogger(),
		log:      NewLog(),
	}
	s.sink = &loopSink{s}
	s.logger = s.mlog.Logger()
	s.mlog.AddLogger(log.New(s.log, "", 0))
	for _, o := range opts {
		o(s)
	}
	for _, a := range reg.Apps() {
		s.addPool(a)
	}
	return s
}

func (s *Supervisor) addPool(a *Application) *Pool {
	a.mlog.AddLogger(s.logger)
	p := newPool(s, a)
	s.pools[a.Name()] = p
	return p
}

func (s *Supervisor) newAggregator() *Aggregator {
	return NewAggregator()
}

// Logger returns the supervisor logger.
func (s *Supervisor) Logger() *log.Logger {
	return s.logger
}

func (s *Supervisor) logf(format string, v ...interface{}) {
	s.logger.Printf(format, v...)
}

// Run runs the supervisor until Exit is called, ctx is canceled, or an
// application crash loops.  In every case all workers are stopped before
// Run returns.  The error is nil, or a *CrashLoopError.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.launcher == nil {
		return errors.New("pcm: no worker launcher on this platform")
	}
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("pcm: supervisor already running")
	}
	defer close(s.done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logf("Supervising %d applications", s.reg.Len())
	if s.autoStart {
		for _, a := range s.reg.Apps() {
			s.pools[a.Name()].start(func() {})
		}
	}

	cancel := ctx.Done()
	for !s.closing || !s.idle() {
		select {
		case fn := <-s.queue:
			fn()
		case <-ticker.C:
			s.tickAll()
		case <-cancel:
			cancel = nil
			s.logf("Canceled: %v", ctx.Err())
			s.shutdown()
		}
	}
	s.logf("Supervisor stopped")
	return s.fatal
}

func (s *Supervisor) idle() bool {
	for _, p := range s.pools {
		if len(p.workers) > 0 || p.stopping {
			return false
		}
	}
	return true
}

// post queues fn to the loop.  After Run returned fn is dropped.
func (s *Supervisor) post(fn func()) {
	select {
	case s.queue <- fn:
	case <-s.done:
	}
}

// after runs fn on the loop once d elapsed.  The returned function
// cancels it, and reports whether it did so before the timer fired.
func (s *Supervisor) after(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, func() {
		s.post(fn)
	})
	return t.Stop
}

// call runs fn on the loop and waits for it to reply.
func (s *Supervisor) call(ctx context.Context, fn func(reply func(error))) error {
	ch := make(chan error, 1)
	reply := func(e error) {
		select {
		case ch <- e:
		default:
		}
	}
	select {
	case s.queue <- func() { fn(reply) }:
	case <-s.done:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case e := <-ch:
		return e
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case e := <-ch:
			return e
		default:
			return ErrShutdown
		}
	}
}

func (s *Supervisor) tickAll() {
	for _, a := range s.reg.Apps() {
		if !s.tickPool(s.pools[a.Name()]) {
			return
		}
	}
}

// tickPool ticks one pool, escalating a crash loop.  It returns false
// once the supervisor is shutting down.
func (s *Supervisor) tickPool(p *Pool) bool {
	if s.closing {
		return false
	}
	if e := p.tick(); e != nil {
		s.crash(e)
		return false
	}
	return true
}

func (s *Supervisor) crash(e error) {
	var cl *CrashLoopError
	if errors.As(e, &cl) {
		s.metrics.CrashLoop(cl.App)
	}
	s.fatal = e
	s.logf("Fatal: %v", e)
	s.shutdown()
}

func (s *Supervisor) shutdown() {
	if s.closing {
		return
	}
	s.closing = true
	s.logf("Shutting down")
	for _, a := range s.reg.Apps() {
		s.pools[a.Name()].stop(func() {})
	}
}

func (s *Supervisor) snapshot(app string, snap LoadSnapshot) {
	s.metrics.Snapshot(app, snap)
	if s.hook != nil {
		s.hook(app, snap)
	}
}

func (s *Supervisor) deliver(w *Worker, m Message) {
	p := s.pools[w.App]
	if p == nil {
		return
	}
	switch m := m.(type) {
	case *LoadMessage:
		p.sample(w, m.LoadSample)
	case *RunningMessage:
		p.ready(w)
	case *ExitMessage:
		p.app.logf("Worker %d (pid %d) exiting with code %d", w.Seq, w.pid, m.Code)
	}
}

func (s *Supervisor) exited(w *Worker, err error) {
	if p := s.pools[w.App]; p != nil {
		p.exited(w, err)
	}
}

// loopSink hands worker events to the supervisor loop.
type loopSink struct {
	s *Supervisor
}

func (k *loopSink) Deliver(w *Worker, m Message) {
	k.s.post(func() { k.s.deliver(w, m) })
}

func (k *loopSink) Exited(w *Worker, err error) {
	k.s.post(func() { k.s.exited(w, err) })
}

// each applies op to every application matching name, replying once
// every one of them called done.
func (s *Supervisor) each(name string, reply func(error), op func(p *Pool, done func())) {
	if s.closing {
		reply(ErrShutdown)
		return
	}
	apps, e := s.reg.Lookup(name)
	if e != nil {
		reply(e)
		return
	}
	pending := len(apps)
	if pending == 0 {
		reply(nil)
		return
	}
	for _, a := range apps {
		op(s.pools[a.Name()], func() {
			if pending--; pending == 0 {
				reply(nil)
			}
		})
	}
}

func (s *Supervisor) command(verb string, e error) error {
	s.metrics.Command(verb, e)
	return e
}

// Start starts the named application, or all of them.  It returns once
// the first workers were forked.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	e := s.call(ctx, func(reply func(error)) {
		s.each(name, reply, func(p *Pool, done func()) {
			p.start(done)
		})
	})
	return s.command("start", e)
}

// Stop stops the named application, or all of them.  It returns once
// every worker exited.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	e := s.call(ctx, func(reply func(error)) {
		s.each(name, reply, func(p *Pool, done func()) {
			p.stop(done)
		})
	})
	return s.command("stop", e)
}

// Restart stops then starts the named application, or all of them.
func (s *Supervisor) Restart(ctx context.Context, name string) error {
	e := s.call(ctx, func(reply func(error)) {
		s.each(name, reply, func(p *Pool, done func()) {
			p.stop(func() {
				p.start(done)
			})
		})
	})
	return s.command("restart", e)
}

func (s *Supervisor) statuses(ctx context.Context, name string, snaps bool) ([]AppStatus, error) {
	var rv []AppStatus
	e := s.call(ctx, func(reply func(error)) {
		apps, e := s.reg.Lookup(name)
		for _, a := range apps {
			rv = append(rv, s.pools[a.Name()].status(snaps))
		}
		reply(e)
	})
	return rv, e
}

// Show returns the status and latest telemetry snapshot of the named
// application, or of all of them.
func (s *Supervisor) Show(ctx context.Context, name string) ([]AppStatus, error) {
	rv, e := s.statuses(ctx, name, true)
	return rv, s.command("show", e)
}

// List returns the status of every application.
func (s *Supervisor) List(ctx context.Context) ([]AppStatus, error) {
	rv, e := s.statuses(ctx, AllApps, false)
	return rv, s.command("list", e)
}

// Log returns the log of the named application, or the supervisor log
// (which includes every application) when name is empty or "all".
func (s *Supervisor) Log(ctx context.Context, name string) ([]LogRecord, error) {
	if name == "" || name == AllApps {
		recs, _ := s.log.GetRecords(0)
		return recs, s.command("log", nil)
	}
	var recs []LogRecord
	e := s.call(ctx, func(reply func(error)) {
		apps, e := s.reg.Lookup(name)
		if e == nil {
			recs, _ = apps[0].GetLog(0)
		}
		reply(e)
	})
	return recs, s.command("log", e)
}

// Exit begins shutting the supervisor down.  It does not wait for the
// workers to stop; Run returns once they did.
func (s *Supervisor) Exit(ctx context.Context) error {
	e := s.call(ctx, func(reply func(error)) {
		s.shutdown()
		reply(nil)
	})
	if errors.Is(e, ErrShutdown) {
		e = nil
	}
	return s.command("exit", e)
}

// Done is closed when Run returned.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Register adds an application while running.  With auto start, it is
// started as well.
func (s *Supervisor) Register(ctx context.Context, def Definition) (string, error) {
	var name string
	e := s.call(ctx, func(reply func(error)) {
		if s.closing {
			reply(ErrShutdown)
			return
		}
		a, e := s.reg.Register(def)
		if e != nil {
			reply(e)
			return
		}
		name = a.Name()
		s.added(a)
		reply(nil)
	})
	return name, e
}

// Load registers the records not known yet, by name.  Records without a
// name are skipped, as they cannot be told apart from ones loaded
// before.  It returns the names added; err aggregates the records that
// failed to register.
func (s *Supervisor) Load(ctx context.Context, recs []Record) ([]string, error) {
	var names []string
	var lerr error
	e := s.call(ctx, func(reply func(error)) {
		if s.closing {
			reply(ErrShutdown)
			return
		}
		var fresh []Record
		for _, rec := range recs {
			if rec.Err() == nil && (rec.Name == "" || s.pools[rec.Name] != nil) {
				continue
			}
			fresh = append(fresh, rec)
		}
		apps, e := s.reg.Load(fresh)
		for _, a := range apps {
			names = append(names, a.Name())
			s.added(a)
		}
		lerr = e
		reply(nil)
	})
	if e != nil {
		return nil, e
	}
	return names, lerr
}

func (s *Supervisor) added(a *Application) {
	p := s.addPool(a)
	s.logf("Added application %s (%s)", a.Name(), a.def.Path)
	if s.autoStart {
		p.start(func() {})
	}
}
