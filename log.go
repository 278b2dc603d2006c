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
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 1000
)

type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log is a bounded ring of log lines.  It is an io.Writer, so it can sit
// behind a log.Logger, and it is safe for concurrent use: worker output
// is written from pipe copying goroutines while control sessions read.
type Log struct {
	records    []LogRecord
	numRecords int
	id         int64
	mx         sync.Mutex
}

// Write implements the Writer interface consumed by Logger.
func (l *Log) Write(b []byte) (int, error) {
	str := strings.Trim(string(b), "\n")
	now := time.Now()
	l.mx.Lock()
	for _, line := range strings.Split(str, "\n") {
		idx := l.numRecords % len(l.records)
		l.id++
		l.records[idx] = LogRecord{Id: l.id, Time: now, Text: line}
		// NB: numRecords keeps counting past the ring size; it is
		// really the index of the next slot.
		l.numRecords++
	}
	l.mx.Unlock()
	return len(b), nil
}

// GetRecords returns the stored records, oldest first, and an ID
// suitable for use as an Etag.  If last matches the current ID the log
// has not changed, and nil is returned without copying anything.
func (l *Log) GetRecords(last int64) ([]LogRecord, int64) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.id == last {
		return nil, last
	}
	cnt := l.numRecords
	if cnt > len(l.records) {
		cnt = len(l.records)
	}
	recs := make([]LogRecord, 0, cnt)
	for index := l.numRecords - cnt; index < l.numRecords; index++ {
		recs = append(recs, l.records[index%len(l.records)])
	}
	return recs, l.id
}

// NewLog returns a Log holding up to MaxLogRecords lines.
func NewLog() *Log {
	return NewLogSize(MaxLogRecords)
}

// NewLogSize returns a Log holding up to n lines.
func NewLogSize(n int) *Log {
	if n <= 0 {
		n = MaxLogRecords
	}
	// We start IDs at the current timestamp so that clients caching
	// by Etag notice a restarted supervisor.
	return &Log{
		records: make([]LogRecord, n),
		id:      time.Now().UnixNano(),
	}
}
