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

// Package ui is the full-screen view behind "pcm top".
package ui

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"

	"github.com/gdamore/pcm"
	"github.com/gdamore/pcm/ctl"
	"github.com/gdamore/pcm/pcm/util"
)

// Source answers control commands, normally a *ctl.Client.
type Source interface {
	Command(ctx context.Context, verb string, args ...string) (*ctl.Response, error)
}

// PollInterval is how often the view asks for fresh status.
const PollInterval = time.Second

const opTimeout = 5 * time.Second

type App struct {
	app      *views.Application
	view     views.View
	panel    views.Widget
	info     *InfoPanel
	log      *LogPanel
	main     *MainPanel
	src      Source
	socket   string
	logger   *log.Logger
	interval time.Duration // worker sampling interval, for CPU figures
	err      error
	items    []pcm.AppStatus
	detail   *pcm.AppStatus // the application shown by the info panel
	lines    []pcm.LogRecord
	notice   string // outcome of the last command

	// Names the poller fetches details for, shared with its goroutine.
	mx       sync.Mutex
	infoName string
	logName  string

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) watched() (string, string) {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.infoName, a.logName
}

func (a *App) ShowInfo(name string) {
	a.mx.Lock()
	a.infoName = name
	a.mx.Unlock()
	a.info.SetName(name)
	a.detail = nil
	a.show(a.info)
	go a.poll()
}

func (a *App) ShowLog(name string) {
	a.mx.Lock()
	a.logName = name
	a.mx.Unlock()
	a.log.SetName(name)
	a.lines = nil
	a.show(a.log)
	go a.poll()
}

func (a *App) ShowMain() {
	a.show(a.main)
}

// Do runs a command in the background.  Its outcome shows up in the
// status bar.
func (a *App) Do(verb, name string) {
	a.notice = fmt.Sprintf("%s %s ...", verb, name)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ctl.DefaultOpTimeout)
		defer cancel()
		resp, e := a.src.Command(ctx, verb, name)
		a.app.PostFunc(func() {
			switch {
			case e != nil:
				a.notice = fmt.Sprintf("%s %s: %v", verb, name, e)
			case resp.Message != "":
				a.notice = resp.Message
			default:
				a.notice = fmt.Sprintf("%s %s: done", verb, name)
			}
			a.Logf("%s", a.notice)
			a.app.Update()
		})
		a.poll()
	}()
}

func (a *App) Quit() {
	a.app.Quit()
}

func (a *App) SetLogger(logger *log.Logger) {
	a.logger = logger
}

func (a *App) Logf(fmt string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(fmt, v...)
	}
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}

	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) GetAppName() string {
	return "pcm top"
}

// NewApp builds the view.  interval is the workers' sampling interval.
func NewApp(src Source, socket string, interval time.Duration) *App {
	app := &App{
		app:      &views.Application{},
		src:      src,
		socket:   socket,
		interval: interval,
	}
	app.info = NewInfoPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app, socket)
	app.panel = app.main
	return app
}

// poll fetches the list, plus whatever the current panel looks at.
// It runs off the UI goroutine.
func (a *App) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	resp, err := a.src.Command(ctx, ctl.VerbList)
	var items []pcm.AppStatus
	if err == nil {
		items = resp.Apps
		util.SortApps(items)
	}

	infoName, logName := a.watched()
	var detail *pcm.AppStatus
	if infoName != "" {
		if r, e := a.src.Command(ctx, ctl.VerbShow, infoName); e == nil && len(r.Apps) == 1 {
			detail = &r.Apps[0]
		}
	}
	var lines []pcm.LogRecord
	if r, e := a.src.Command(ctx, ctl.VerbLog, logName); e == nil {
		lines = append([]pcm.LogRecord{}, r.Log...)
	}

	a.app.PostFunc(func() {
		a.items = items
		a.err = err
		cur, curLog := a.watched()
		if detail != nil && detail.Name == cur {
			a.detail = detail
		}
		if logName == curLog {
			a.lines = lines
		}
		a.app.Update()
	})
}

func (a *App) refresh(ctx context.Context) {
	t := time.NewTicker(PollInterval)
	defer t.Stop()
	for {
		a.poll()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (a *App) GetItems() ([]pcm.AppStatus, error) {
	return a.items, a.err
}

// GetItem returns the detailed status of an application, once loaded.
func (a *App) GetItem(name string) (*pcm.AppStatus, error) {
	if a.err != nil {
		return nil, a.err
	}
	if a.detail != nil && a.detail.Name == name {
		return a.detail, nil
	}
	for i := range a.items {
		if a.items[i].Name == name {
			return &a.items[i], nil
		}
	}
	return nil, pcm.ErrNoSuchApp
}

func (a *App) GetLog() []pcm.LogRecord {
	return a.lines
}

// Notice returns the outcome of the last command.
func (a *App) Notice() string {
	return a.notice
}

// Run shows the view until the user quits.
func (a *App) Run() error {
	a.Logf("Starting up user interface")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.app.SetRootWidget(a)
	a.ShowMain()
	go a.refresh(ctx)
	return a.app.Run()
}
