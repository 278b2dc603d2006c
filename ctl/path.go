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

package ctl

import (
	"os"
	"path/filepath"
	"runtime"
)

// SocketName is the file name of the control socket.
const SocketName = "pcm.sock"

// DefaultSocketPath returns where pcmd listens unless told otherwise:
// in $PCM_DIR if set, in /var/run for root, else as ~/.pcm.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("PCM_DIR"); dir != "" {
		return filepath.Join(dir, SocketName)
	}
	if runtime.GOOS != "windows" && os.Geteuid() == 0 {
		return filepath.Join("/var/run", SocketName)
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, "."+SocketName)
	}
	return SocketName
}
