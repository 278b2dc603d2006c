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

// RestartBudget bounds how many forks an application may issue before
// it is considered to be crash looping.
//
// Every fork charges one unit.  A worker that survives the readiness
// grace period credits back a whole PerWorker allowance, so healthy
// pools hover near zero while a pool whose workers die before becoming
// ready climbs until Count reaches Limit.  Limit is recomputed on every
// tick from the number of missing workers.
type RestartBudget struct {
	PerWorker int `json:"perWorker"`
	Count     int `json:"count"`
	Limit     int `json:"limit"`
}

// Recompute sets the window limit for a tick with missing workers.
func (b *RestartBudget) Recompute(missing int) {
	b.Limit = missing * b.PerWorker
}

// Exhausted reports whether another fork would be a crash loop.
func (b *RestartBudget) Exhausted() bool {
	return b.Count >= b.Limit
}

// Charge records a fork.
func (b *RestartBudget) Charge() {
	b.Count++
}

// Credit pays down one worker allowance.  Count never goes negative.
func (b *RestartBudget) Credit() {
	b.Count -= b.PerWorker
	if b.Count < 0 {
		b.Count = 0
	}
}

// Reset clears the budget, e.g. when an operator starts the application.
func (b *RestartBudget) Reset() {
	b.Count = 0
	b.Limit = 0
}
