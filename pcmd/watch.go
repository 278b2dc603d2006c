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
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gdamore/pcm"
)

// settle is how long a manifest must stay unchanged before it is read.
const settle = time.Millisecond * 250

// loader registers the applications of manifest files with a running
// supervisor.
type loader struct {
	sup    *pcm.Supervisor
	files  []string
	logger *log.Logger
}

func (l *loader) reload(ctx context.Context) {
	for _, f := range l.files {
		recs, e := pcm.ReadManifestFile(f)
		if e != nil {
			l.logger.Printf("Cannot read %s: %v", f, e)
			continue
		}
		names, _ := l.sup.Load(ctx, recs)
		for _, n := range names {
			l.logger.Printf("Registered %s from %s", n, f)
		}
	}
}

// watch reloads the manifests whenever one of them is written.  The
// directories are watched rather than the files, so editors that
// replace the file are noticed too.
func (l *loader) watch(ctx context.Context) error {
	w, e := fsnotify.NewWatcher()
	if e != nil {
		return e
	}
	defer w.Close()

	wanted := make(map[string]bool)
	for _, f := range l.files {
		abs, e := filepath.Abs(f)
		if e != nil {
			return e
		}
		wanted[abs] = true
		if e := w.Add(filepath.Dir(abs)); e != nil {
			return e
		}
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !wanted[ev.Name] || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(settle, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			l.reload(ctx)
		case e, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.logger.Printf("Watching manifests: %v", e)
		}
	}
}
