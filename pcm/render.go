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

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gdamore/pcm"
	"github.com/gdamore/pcm/pcm/util"
)

var (
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	readyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func statusStyle(s pcm.Status) lipgloss.Style {
	switch s {
	case pcm.StatusRunning:
		return runningStyle
	case pcm.StatusReady:
		return readyStyle
	}
	return stoppedStyle
}

// renderList prints one line per application.
func renderList(w io.Writer, apps []pcm.AppStatus, now time.Time) {
	util.SortApps(apps)
	fmt.Fprintln(w, headerStyle.Render(util.Header()))
	for _, s := range apps {
		fmt.Fprintln(w, statusStyle(s.Status).Render(util.Summary(s, now)))
	}
}

// renderShow prints each application followed by its load table.
func renderShow(w io.Writer, apps []pcm.AppStatus, now time.Time, interval time.Duration) {
	util.SortApps(apps)
	for i, s := range apps {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, statusStyle(s.Status).Render(util.Summary(s, now)))
		fmt.Fprintf(w, "  restarts %d of %d\n", s.Budget.Count, s.Budget.Limit)
		lines := util.LoadTable(s.Snapshot, interval)
		if s.Snapshot == nil || len(s.Snapshot.Samples) == 0 {
			fmt.Fprintln(w, subtleStyle.Render("  no load reported"))
			continue
		}
		for _, l := range lines {
			fmt.Fprintln(w, "  "+l)
		}
	}
}

func renderLog(w io.Writer, records []pcm.LogRecord) {
	for _, r := range records {
		fmt.Fprintf(w, "%s %s\n",
			subtleStyle.Render(r.Time.Format(time.StampMilli)), r.Text)
	}
}
