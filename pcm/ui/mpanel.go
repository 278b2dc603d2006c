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

	"github.com/gdamore/pcm"
	"github.com/gdamore/pcm/ctl"
	"github.com/gdamore/pcm/pcm/util"
)

// MainPanel lists every application, one per line.  A line can be
// selected with the cursor keys, and acted on.
type MainPanel struct {
	content  *views.CellView
	selected string // name of the selected application
	nrunning int
	nready   int
	nstopped int
	width    int
	height   int
	curx     int
	cury     int
	lines    []string
	styles   []tcell.Style
	items    []pcm.AppStatus

	Panel
}

// mainModel provides the model for a CellView.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App, socket string) *MainPanel {
	m := &MainPanel{}

	m.Panel.Init(app)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	m.SetTitle(socket)
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	app := m.App()
	sel := m.selected
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyEnter:
			if sel != "" {
				app.ShowInfo(sel)
				return true
			}
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.Quit()
				return true
			case 'I', 'i':
				if sel != "" {
					app.ShowInfo(sel)
					return true
				}
			case 'L', 'l':
				app.ShowLog(sel)
				return true
			case 'S', 's':
				if sel != "" {
					app.Do(ctl.VerbStart, sel)
					return true
				}
			case 'X', 'x':
				if sel != "" {
					app.Do(ctl.VerbStop, sel)
					return true
				}
			case 'R', 'r':
				if sel != "" {
					app.Do(ctl.VerbRestart, sel)
					return true
				}
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	m := model.m

	if y < 0 || y >= len(m.lines) {
		return ' ', StyleNormal, nil, 1
	}
	ch := ' '
	if x >= 0 && x < len(m.lines[y]) {
		ch = rune(m.lines[y][x])
	}
	style := m.styles[y]
	if m.items[y].Name == m.selected {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	// All content is single width runes.
	m := model.m
	return m.width, m.height
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.cury = 0
	m.curx = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	if m.curx > m.width-1 {
		m.curx = m.width - 1
	}
	if m.cury > m.height-1 {
		m.cury = m.height - 1
	}
	if m.curx < 0 {
		m.curx = 0
	}
	if m.cury < 0 {
		m.cury = 0
	}
	if selected && m.height > 0 {
		if m.selected == "" {
			m.curx = 0
			m.cury = 0
		}
		m.selected = m.items[m.cury].Name
	} else {
		m.selected = ""
	}
}

// update rebuilds the content from the latest poll.  It runs on the UI
// goroutine.
func (m *MainPanel) update() {
	items, err := m.App().GetItems()
	m.items = items

	// keep the selection on the same application
	if m.selected != "" {
		found := false
		for i, item := range m.items {
			if item.Name == m.selected {
				m.cury = i
				found = true
			}
		}
		if !found {
			m.selected = ""
		}
	}
	if err != nil {
		m.SetError()
		m.SetStatus(fmt.Sprintf("Cannot load status: %v", err))
		m.items = nil
		m.lines = nil
		m.styles = nil
		m.width, m.height = 0, 0
		return
	}

	lines := make([]string, 0, len(items))
	styles := make([]tcell.Style, 0, len(items))

	m.nrunning = 0
	m.nready = 0
	m.nstopped = 0
	m.height = 0
	m.width = 0

	now := time.Now()
	for _, info := range items {
		line := util.Summary(info, now)
		if len(line) > m.width {
			m.width = len(line)
		}
		m.height++
		lines = append(lines, line)
		styles = append(styles, StatusStyle(info.Status))

		switch info.Status {
		case pcm.StatusRunning:
			m.nrunning++
		case pcm.StatusReady:
			m.nready++
		default:
			m.nstopped++
		}
	}
	m.lines = lines
	m.styles = styles

	status := fmt.Sprintf("%6d Apps %6d Running %6d Starting %6d Stopped",
		len(items), m.nrunning, m.nready, m.nstopped)
	if n := m.App().Notice(); n != "" {
		status += "   " + n
	}
	m.SetStatus(status)

	switch {
	case m.nstopped > 0:
		m.SetError()
	case m.nready > 0:
		m.SetWarn()
	case m.nrunning > 0:
		m.SetGood()
	default:
		m.SetNormal()
	}

	words := []string{"[Q] Quit", "[L] Log"}
	if m.selected != "" {
		words = append(words, "[I] Info", "[S] Start", "[X] Stop", "[R] Restart")
	}
	m.SetKeys(words)
}
