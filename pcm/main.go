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

// Command pcm talks to a running pcmd over its control socket.
//
// The flags are
//
//	-s <path>	- the control socket, default as for pcmd
//	-i <duration>	- the workers' sampling interval, for CPU figures
//
// Subcommands are
//
//	list                  - one line per application
//	show <app|all>        - status and the latest load of applications
//	start <app|all>       - start applications
//	stop <app|all>        - stop applications
//	restart <app|all>     - restart applications
//	log [<app>]           - an application's log, or pcmd's own
//	exit                  - stop everything and terminate pcmd
//	top                   - a full-screen view, refreshed every second
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/gdamore/pcm/ctl"
	"github.com/gdamore/pcm/pcm/ui"
	"github.com/gdamore/pcm/worker"
)

var (
	socket   = ctl.DefaultSocketPath()
	interval = worker.DefaultSampleInterval
	timeout  = ctl.DefaultOpTimeout
)

func usage() {
	log.Fatalf("Usage: %s [-s <socket>] list|show|start|stop|restart|log|exit|top [<app>]",
		os.Args[0])
}

// run executes one subcommand, printing to w.
func run(ctx context.Context, c *ctl.Client, w io.Writer, args []string) error {
	now := time.Now()
	switch args[0] {
	case ctl.VerbList:
		resp, e := c.Command(ctx, ctl.VerbList)
		if e != nil {
			return e
		}
		renderList(w, resp.Apps, now)

	case ctl.VerbShow:
		resp, e := c.Command(ctx, ctl.VerbShow, args[1:]...)
		if e != nil {
			return e
		}
		renderShow(w, resp.Apps, now, interval)

	case ctl.VerbLog:
		resp, e := c.Command(ctx, ctl.VerbLog, args[1:]...)
		if e != nil {
			return e
		}
		renderLog(w, resp.Log)

	default:
		resp, e := c.Command(ctx, args[0], args[1:]...)
		if e != nil {
			return e
		}
		if resp.Message != "" {
			fmt.Fprintln(w, resp.Message)
		}
	}
	return nil
}

func main() {
	log.SetFlags(0)
	if env := os.Getenv("PCM_SOCKET"); env != "" {
		socket = env
	}
	pflag.StringVarP(&socket, "socket", "s", socket, "pcmd control socket")
	pflag.DurationVarP(&interval, "interval", "i", interval, "worker sampling interval")
	pflag.DurationVarP(&timeout, "timeout", "t", timeout, "command timeout")
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		usage()
	}
	c := ctl.NewClient(socket)

	if args[0] == "top" {
		if len(args) != 1 {
			usage()
		}
		app := ui.NewApp(c, socket, interval)
		if e := app.Run(); e != nil {
			log.Fatalf("Failed: %v", e)
		}
		return
	}
	if _, e := ctl.ParseCommand(strings.Join(args, " ")); e != nil {
		log.Printf("%v", e)
		usage()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if e := run(ctx, c, os.Stdout, args); e != nil {
		log.Fatalf("Failed: %v", e)
	}
}
