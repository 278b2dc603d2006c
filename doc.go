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

// Package pcm keeps local applications running as pools of worker
// processes.  It is similar in spirit to a cluster master: each
// registered application is forked a configured number of times, dead
// workers are replaced, and a restart budget stops an application that
// crashes faster than it can become ready.
//
// Workers report load samples and a "running" announcement over a
// private socket (see package worker).  The supervisor folds samples
// into per-application snapshots, one sample per live worker.
//
// All supervision happens on the single goroutine running
// Supervisor.Run; the exported methods post work to it and wait for
// the answer.  Package ctl exposes those methods on a unix socket, and
// package rest over HTTP.
package pcm
