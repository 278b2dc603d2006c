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
	"bytes"
	"log"
	"sync"
)

// MultiLogger fans a single log.Logger out to several destinations.
// Each application has one, feeding its own ring Log and the
// supervisor's MultiLogger; the supervisor's in turn feeds stderr and
// the supervisor Log.  Destinations keep their own prefix and flags.
type MultiLogger struct {
	log     *log.Logger
	dests   []*log.Logger
	partial []byte // text after the last newline
	lock    sync.Mutex
}

// eachLine calls fn for every complete line in buf, and returns the
// unterminated remainder.
func eachLine(buf []byte, fn func(line string)) []byte {
	for {
		line, rest, ok := bytes.Cut(buf, []byte{'\n'})
		if !ok {
			return buf
		}
		fn(string(line))
		buf = rest
	}
}

// Write delivers every complete line to each destination.  Text not
// yet terminated by a newline is held until it is.
func (l *MultiLogger) Write(b []byte) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.partial = eachLine(append(l.partial, b...), func(line string) {
		for _, d := range l.dests {
			d.Print(line)
		}
	})
	return len(b), nil
}

// AddLogger adds a destination.  Adding one twice has no effect.
func (l *MultiLogger) AddLogger(logger *log.Logger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.index(logger) < 0 {
		l.dests = append(l.dests, logger)
	}
}

// DelLogger removes a destination.
func (l *MultiLogger) DelLogger(logger *log.Logger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if i := l.index(logger); i >= 0 {
		l.dests = append(l.dests[:i], l.dests[i+1:]...)
	}
}

func (l *MultiLogger) index(logger *log.Logger) int {
	for i, d := range l.dests {
		if d == logger {
			return i
		}
	}
	return -1
}

// Logger returns the logger writing to every destination.
func (l *MultiLogger) Logger() *log.Logger {
	return l.log
}

func NewMultiLogger() *MultiLogger {
	m := &MultiLogger{}
	m.log = log.New(m, "", 0)
	return m
}
