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

package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/gdamore/pcm/ctl"
	"github.com/gdamore/pcm/pcm/util"
)

// InfoPanel shows one application with its latest load snapshot.
type InfoPanel struct {
	text *views.TextArea
	name string

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}
	p.Panel.Init(app)

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)
	p.SetKeys([]string{"[ESC] Main"})
	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) SetName(name string) {
	p.SetTitle("Loading")
	p.text.SetLines(nil)
	p.name = name
}

func (p *InfoPanel) Name() string {
	return p.name
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
	app := p.App()
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'L', 'l':
				app.ShowLog(p.name)
				return true
			case 'S', 's':
				app.Do(ctl.VerbStart, p.name)
				return true
			case 'X', 'x':
				app.Do(ctl.VerbStop, p.name)
				return true
			case 'R', 'r':
				app.Do(ctl.VerbRestart, p.name)
				return true
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) update() {
	p.SetTitle("Details for " + p.name)
	s, e := p.App().GetItem(p.name)
	if s == nil {
		p.SetStatus(fmt.Sprintf("No data: %v", e))
		p.SetError()
		p.text.SetLines(nil)
		p.SetKeys([]string{"[ESC] Main"})
		return
	}

	p.SetStatus(p.App().Notice())
	p.ShowState(s.Status)

	now := time.Now()
	lines := []string{
		fmt.Sprintf("%10s %s", "Name:", s.Name),
		fmt.Sprintf("%10s %s", "Path:", s.Path),
		fmt.Sprintf("%10s %s", "Status:", s.Status),
		fmt.Sprintf("%10s %s (%s)", "Since:", util.Uptime(*s, now), s.Reason),
		fmt.Sprintf("%10s %d", "Pid:", s.Pid),
		fmt.Sprintf("%10s %s ready/live/target", "Workers:", util.Workers(*s)),
		fmt.Sprintf("%10s %d of %d", "Restarts:", s.Budget.Count, s.Budget.Limit),
		"",
	}
	if s.Snapshot != nil && len(s.Snapshot.Samples) > 0 {
		for _, l := range util.LoadTable(s.Snapshot, p.App().interval) {
			lines = append(lines, "  "+l)
		}
	} else {
		lines = append(lines, "  No load reported yet")
	}
	p.text.SetLines(lines)

	p.SetKeys([]string{"[ESC] Main", "[L] Log",
		"[S] Start", "[X] Stop", "[R] Restart"})
}
