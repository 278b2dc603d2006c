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
	"errors"
	"strconv"
	"strings"

	"github.com/gdamore/pcm"
	"github.com/spf13/pflag"
)

// appGroups collects applications given on the command line.  Each
// --app starts a new definition; --name, --num and --arg refine the
// most recent one.
type appGroups struct {
	defs []pcm.Definition
}

var errNoApp = errors.New("must follow --app")

func (g *appGroups) last() (*pcm.Definition, error) {
	if len(g.defs) == 0 {
		return nil, errNoApp
	}
	return &g.defs[len(g.defs)-1], nil
}

// groupFlag is one of the flags feeding appGroups.
type groupFlag struct {
	g    *appGroups
	kind string
	set  func(g *appGroups, v string) error
}

func (f *groupFlag) String() string { return "" }
func (f *groupFlag) Type() string   { return f.kind }
func (f *groupFlag) Set(v string) error {
	return f.set(f.g, v)
}

func (g *appGroups) addFlags(fs *pflag.FlagSet) {
	fs.Var(&groupFlag{g, "path", func(g *appGroups, v string) error {
		g.defs = append(g.defs, pcm.Definition{Path: v})
		return nil
	}}, "app", "application executable; may be repeated")

	fs.Var(&groupFlag{g, "name", func(g *appGroups, v string) error {
		d, e := g.last()
		if e == nil {
			d.Name = v
		}
		return e
	}}, "name", "name of the preceding --app")

	fs.VarP(&groupFlag{g, "count", func(g *appGroups, v string) error {
		d, e := g.last()
		if e != nil {
			return e
		}
		n, e := strconv.Atoi(v)
		if e != nil {
			return errors.New("not a number")
		}
		d.Workers = n
		return nil
	}}, "num", "n", "worker count of the preceding --app, 0 for one per CPU")

	fs.Var(&groupFlag{g, "arg", func(g *appGroups, v string) error {
		d, e := g.last()
		if e == nil {
			d.Args = append(d.Args, v)
		}
		return e
	}}, "arg", "argument for the preceding --app; may be repeated")

	fs.Var(&groupFlag{g, "path", func(g *appGroups, v string) error {
		d, e := g.last()
		if e == nil {
			d.PidFile = strings.TrimSpace(v)
		}
		return e
	}}, "pid-file", "pid file of the preceding --app")
}

// Definitions returns the collected definitions, in command line order.
func (g *appGroups) Definitions() []pcm.Definition {
	return append([]pcm.Definition{}, g.defs...)
}
