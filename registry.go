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
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// maxNameAttempts bounds the retries when a generated name collides.
const maxNameAttempts = 64

// StatFunc verifies that an executable path can be used.  It returns
// nil if the path exists and is readable.
type StatFunc func(path string) error

func statReadable(path string) error {
	fi, e := os.Stat(path)
	if e != nil {
		return e
	}
	if fi.IsDir() {
		return errors.New("is a directory")
	}
	f, e := os.Open(path)
	if e != nil {
		return e
	}
	return f.Close()
}

// Registry holds the registered applications, in registration order.
// It is not safe for concurrent use: before the supervisor runs it
// belongs to the caller, afterwards only the supervisor loop touches it.
type Registry struct {
	apps   map[string]*Application
	order  []*Application
	stat   StatFunc
	cpus   int
	intn   func(int) int
	stop   time.Duration // stop time for definitions without one
	logger *log.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithStatFunc replaces the filesystem check done at registration.
func WithStatFunc(fn StatFunc) RegistryOption {
	return func(r *Registry) {
		r.stat = fn
	}
}

// WithCPUs overrides the CPU count used to resolve worker counts.
func WithCPUs(n int) RegistryOption {
	return func(r *Registry) {
		r.cpus = n
	}
}

// WithRegistryLogger sets where skipped records are reported.
func WithRegistryLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithStopTime sets the stop time given to definitions that carry none,
// manifest records included.
func WithStopTime(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.stop = d
		}
	}
}

func withIntn(fn func(int) int) RegistryOption {
	return func(r *Registry) {
		r.intn = fn
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		apps:   make(map[string]*Application),
		stat:   statReadable,
		cpus:   runtime.NumCPU(),
		intn:   rand.IntN,
		stop:   DefaultStopTime,
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) generateName() string {
	var sb strings.Builder
	for i := 0; i < nameLength; i++ {
		sb.WriteByte(nameAlphabet[r.intn(len(nameAlphabet))])
	}
	return sb.String()
}

// checkName is the single uniqueness check, shared by explicit and
// generated names.
func (r *Registry) checkName(name string) error {
	if name == AllApps {
		return &ValidationError{Name: name, Reason: "name is reserved"}
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return &ValidationError{Name: name, Reason: "name contains whitespace"}
	}
	if _, ok := r.apps[name]; ok {
		return &DuplicateNameError{Name: name}
	}
	return nil
}

// Register validates and inserts a definition.  On success the
// application is STOPPED.  Nothing is modified on failure.
func (r *Registry) Register(def Definition) (*Application, error) {
	def.Name = strings.TrimSpace(def.Name)
	def.Path = strings.TrimSpace(def.Path)
	if def.Path == "" {
		return nil, &ValidationError{Name: def.Name, Reason: "missing app path"}
	}
	if e := r.stat(def.Path); e != nil {
		return nil, &ValidationError{Name: def.Name,
			Reason: fmt.Sprintf("app %s: %v", def.Path, e)}
	}

	if def.Name == "" {
		var e error
		for i := 0; i < maxNameAttempts; i++ {
			def.Name = r.generateName()
			if e = r.checkName(def.Name); e == nil {
				break
			}
		}
		if e != nil {
			return nil, &ValidationError{Reason: "cannot generate a unique name"}
		}
	} else if e := r.checkName(def.Name); e != nil {
		return nil, e
	}

	def.Workers = ResolveWorkerCount(def.Workers, r.cpus)
	if def.RestartLimit <= 0 {
		def.RestartLimit = DefaultRestartLimit
	}
	if def.StopTime <= 0 {
		def.StopTime = r.stop
	}
	def.Args = append([]string{}, def.Args...)

	a := newApplication(def)
	r.apps[def.Name] = a
	r.order = append(r.order, a)
	return a, nil
}

// Load registers a batch of manifest records.  Bad records are logged
// and skipped; the returned error collects all of them.
func (r *Registry) Load(recs []Record) ([]*Application, error) {
	var errs *multierror.Error
	added := make([]*Application, 0, len(recs))
	for _, rec := range recs {
		e := rec.err
		if e == nil {
			var a *Application
			if a, e = r.Register(rec.Definition()); e == nil {
				added = append(added, a)
				continue
			}
		}
		r.logger.Printf("Skipping %s: %v", rec.Source, e)
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", rec.Source, e))
	}
	return added, errs.ErrorOrNil()
}

// Lookup resolves a name, or AllApps, to applications.
func (r *Registry) Lookup(name string) ([]*Application, error) {
	if name == AllApps {
		return r.Apps(), nil
	}
	if a, ok := r.apps[name]; ok {
		return []*Application{a}, nil
	}
	return nil, ErrNoSuchApp
}

// Apps returns every application in registration order.
func (r *Registry) Apps() []*Application {
	return append([]*Application{}, r.order...)
}

// Len returns the number of registered applications.
func (r *Registry) Len() int {
	return len(r.order)
}
