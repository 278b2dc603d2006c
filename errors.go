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
	"errors"
	"fmt"
)

var (
	ErrNoSuchApp      = errors.New("No such application")
	ErrInvalid        = errors.New("Invalid application definition")
	ErrDuplicateName  = errors.New("Application name already registered")
	ErrCrashLoop      = errors.New("Restarting too quickly")
	ErrShutdown       = errors.New("Supervisor is shutting down")
	ErrNotWorker      = errors.New("Not running as a worker")
	ErrUnknownMessage = errors.New("Unknown message type")
)

// ValidationError reports a definition that could not be accepted.
// It matches ErrInvalid with errors.Is.
type ValidationError struct {
	Name   string // may be empty, e.g. for an unnamed manifest record
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return "invalid application: " + e.Reason
	}
	return fmt.Sprintf("invalid application %s: %s", e.Name, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// DuplicateNameError is returned when registering a name that is
// already present.  The registry is left untouched.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("application %s already registered", e.Name)
}

func (e *DuplicateNameError) Is(target error) bool {
	return target == ErrDuplicateName
}

// CrashLoopError is fatal for the whole supervisor.  It carries the
// budget that was exhausted, for the benefit of the final log line.
type CrashLoopError struct {
	App    string
	Budget RestartBudget
}

func (e *CrashLoopError) Error() string {
	return fmt.Sprintf("application %s restarting too quickly (%d/%d)",
		e.App, e.Budget.Count, e.Budget.Limit)
}

func (e *CrashLoopError) Unwrap() error {
	return ErrCrashLoop
}
