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

// Package ctl implements the pcmd control plane: one command line per
// connection on a local unix socket, answered with one JSON response.
package ctl

import (
	"fmt"
	"strings"
)

// Verbs understood by the control plane.
const (
	VerbStart   = "start"
	VerbStop    = "stop"
	VerbRestart = "restart"
	VerbShow    = "show"
	VerbList    = "list"
	VerbExit    = "exit"
	VerbLog     = "log"
)

// Command is a parsed control request.
type Command struct {
	Verb string
	Name string // application name or "all", empty if the verb takes none
}

func (c Command) String() string {
	if c.Name == "" {
		return c.Verb
	}
	return c.Verb + " " + c.Name
}

// ProtocolError reports a request that is not a valid command.  It only
// fails the session it arrived on.
type ProtocolError struct {
	Line   string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Line == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %q", e.Reason, e.Line)
}

// argument counts, minimum and maximum
var verbs = map[string][2]int{
	VerbStart:   {1, 1},
	VerbStop:    {1, 1},
	VerbRestart: {1, 1},
	VerbShow:    {1, 1},
	VerbList:    {0, 0},
	VerbExit:    {0, 0},
	VerbLog:     {0, 1},
}

// ParseCommand parses a whitespace separated command line.
func ParseCommand(line string) (Command, error) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return Command{}, &ProtocolError{Reason: "empty command"}
	}
	nargs, ok := verbs[toks[0]]
	if !ok {
		return Command{}, &ProtocolError{Line: line, Reason: "unknown command"}
	}
	args := toks[1:]
	switch {
	case len(args) < nargs[0]:
		return Command{}, &ProtocolError{Line: line, Reason: "missing application name"}
	case len(args) > nargs[1]:
		return Command{}, &ProtocolError{Line: line, Reason: "too many arguments"}
	}
	c := Command{Verb: toks[0]}
	if len(args) > 0 {
		c.Name = args[0]
	}
	return c, nil
}
