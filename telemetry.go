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
	"sort"
	"time"

	"github.com/prometheus/procfs"
)

// LoadSample is one worker's resource usage over a sampling interval.
// CPU figures are clock ticks consumed since the previous sample.
type LoadSample struct {
	Pid       int    `json:"pid"`
	CPUUser   uint64 `json:"cpuUser"`
	CPUSystem uint64 `json:"cpuSystem"`
	RSS       uint64 `json:"rss"`
	HeapTotal uint64 `json:"heapTotal"`
	HeapUsed  uint64 `json:"heapUsed"`
	Conns     int    `json:"conn"`
}

// LoadAverage is the host wide 1, 5 and 15 minute load average.
type LoadAverage [3]float64

// LoadSnapshot is a batch of samples, one per live worker, in pid order.
type LoadSnapshot struct {
	Time    time.Time    `json:"time"`
	LoadAvg LoadAverage  `json:"loadavg"`
	Samples []LoadSample `json:"samples"`
}

// HostLoadAverage reads the load average.  Platforms without procfs
// report zeros.
func HostLoadAverage() LoadAverage {
	fs, e := procfs.NewDefaultFS()
	if e != nil {
		return LoadAverage{}
	}
	la, e := fs.LoadAvg()
	if e != nil {
		return LoadAverage{}
	}
	return LoadAverage{la.Load1, la.Load5, la.Load15}
}

// Aggregator batches samples until every live worker has reported.
//
// There is no cycle counter.  Samples are buffered in arrival order, and
// the first sample that arrives once the buffer already holds one entry
// per live worker flushes the buffer and seeds the next batch.  Workers
// joining or leaving between cycles only shift where the cut happens.
type Aggregator struct {
	buf     []LoadSample
	loadavg func() LoadAverage
	now     func() time.Time
}

// NewAggregator returns an Aggregator reading the host load average.
func NewAggregator() *Aggregator {
	return &Aggregator{loadavg: HostLoadAverage, now: time.Now}
}

// Add buffers a sample.  live is the number of workers currently alive.
// When a batch completes it is returned with ok set.
func (ag *Aggregator) Add(s LoadSample, live int) (snap LoadSnapshot, ok bool) {
	if len(ag.buf) == 0 || len(ag.buf) < live {
		ag.buf = append(ag.buf, s)
		return snap, false
	}
	batch := ag.buf
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Pid < batch[j].Pid
	})
	snap = LoadSnapshot{
		Time:    ag.now(),
		LoadAvg: ag.loadavg(),
		Samples: batch,
	}
	ag.buf = []LoadSample{s}
	return snap, true
}

// Pending returns the number of buffered samples.
func (ag *Aggregator) Pending() int {
	return len(ag.buf)
}

// Reset drops any buffered samples.
func (ag *Aggregator) Reset() {
	ag.buf = nil
}
