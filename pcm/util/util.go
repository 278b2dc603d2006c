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

// Package util holds the formatting bits shared by the pcm CLI and its
// full-screen view.
package util

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/pcm"
)

// ClockTick is the length of one CPU accounting tick as reported by
// procfs (USER_HZ).
const ClockTick = 10 * time.Millisecond

func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

// Uptime is how long ago the status last changed, to the second.
func Uptime(s pcm.AppStatus, now time.Time) string {
	d := now.Sub(s.Since)
	d -= d % time.Second
	return FormatDuration(d)
}

// Workers renders ready/live/target, e.g. "2/3/4".
func Workers(s pcm.AppStatus) string {
	return fmt.Sprintf("%d/%d/%d", s.Ready, s.Workers, s.Target)
}

// CPUPercent converts the ticks a sample accumulated over one sampling
// interval into a percentage of one CPU.
func CPUPercent(s pcm.LoadSample, interval time.Duration) float64 {
	if interval <= 0 {
		return 0
	}
	busy := time.Duration(s.CPUUser+s.CPUSystem) * ClockTick
	return 100 * float64(busy) / float64(interval)
}

func megabytes(n uint64) float64 {
	return float64(n) / (1024 * 1024)
}

// LoadTable renders a snapshot as a small table, one line per worker.
func LoadTable(snap *pcm.LoadSnapshot, interval time.Duration) []string {
	if snap == nil {
		return nil
	}
	la := snap.LoadAvg
	lines := []string{
		fmt.Sprintf("CPU Loadavg  1m: %.2f  5m: %.2f  15m: %.2f",
			la[0], la[1], la[2]),
		fmt.Sprintf("%-9s %9s   %-22s %5s",
			"PID", "CPU", "MEM, HEAP, HEAPUSED", "CONN"),
	}
	for _, s := range snap.Samples {
		mem := fmt.Sprintf("%.1f, %.1f, %.1fM",
			megabytes(s.RSS), megabytes(s.HeapTotal), megabytes(s.HeapUsed))
		lines = append(lines, fmt.Sprintf("%-9d %8.2f%%   %-22s %5d",
			s.Pid, CPUPercent(s, interval), mem, s.Conns))
	}
	return lines
}

// Summary is a one line rendering of an application.
func Summary(s pcm.AppStatus, now time.Time) string {
	return fmt.Sprintf("%-16s %-8s %8s %10s %7d  %s",
		s.Name, s.Status, Workers(s), Uptime(s, now), s.Pid, s.Reason)
}

// Header labels the columns of Summary.
func Header() string {
	return fmt.Sprintf("%-16s %-8s %8s %10s %7s  %s",
		"NAME", "STATUS", "WORKERS", "SINCE", "PID", "REASON")
}

func rank(s pcm.Status) int {
	switch s {
	case pcm.StatusStopped:
		return 0
	case pcm.StatusReady:
		return 1
	}
	return 2
}

type sorted []pcm.AppStatus

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := s[i]
	b := s[j]

	// Applications needing attention come first.
	if ra, rb := rank(a.Status), rank(b.Status); ra != rb {
		return ra < rb
	}
	return strings.Compare(a.Name, b.Name) < 0
}

func SortApps(items []pcm.AppStatus) {
	sort.Sort(sorted(items))
}
