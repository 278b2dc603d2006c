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
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Environment understood by workers.  Workers run arbitrary executables,
// so everything they need from the supervisor travels this way.
const (
	EnvWorker         = "PCM_WORKER"          // "1" in a forked worker
	EnvApp            = "PCM_APP"             // application name
	EnvChannelFD      = "PCM_CHANNEL_FD"      // message channel descriptor
	EnvSampleInterval = "PCM_SAMPLE_INTERVAL" // time.Duration string
	EnvReadyDelay     = "PCM_READY_DELAY"     // time.Duration string
)

// Message is one of *LoadMessage, *RunningMessage or *ExitMessage.
// The set is closed; a type switch over those three is exhaustive.
type Message interface {
	messageType() string
}

// LoadMessage carries a periodic usage sample.
type LoadMessage struct {
	LoadSample
}

// RunningMessage announces that a worker survived its grace period.
type RunningMessage struct {
	App string `json:"appname,omitempty"`
}

// ExitMessage is the last thing a worker sends before it terminates.
type ExitMessage struct {
	App  string `json:"appname"`
	Code int    `json:"code"`
}

func (*LoadMessage) messageType() string    { return "load" }
func (*RunningMessage) messageType() string { return "running" }
func (*ExitMessage) messageType() string    { return "exit" }

// Encoder writes messages, one JSON object per line.  It is safe for
// concurrent use, as a worker sends from timers and exit paths alike.
type Encoder struct {
	w  io.Writer
	mx sync.Mutex
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (enc *Encoder) Encode(m Message) error {
	b, e := json.Marshal(m)
	if e != nil {
		return e
	}
	// Splice the tag into the object rather than wrapping it.
	tag := fmt.Sprintf(`{"type":%q`, m.messageType())
	if len(b) > 2 {
		tag += ","
	}
	line := make([]byte, 0, len(tag)+len(b)+1)
	line = append(line, tag...)
	line = append(line, b[1:]...)
	line = append(line, '\n')

	enc.mx.Lock()
	defer enc.mx.Unlock()
	_, e = enc.w.Write(line)
	return e
}

// Decoder reads messages written by an Encoder.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode returns the next message.  A line with an unrecognized type
// yields ErrUnknownMessage; the caller may continue reading after it.
func (dec *Decoder) Decode() (Message, error) {
	line, e := dec.r.ReadBytes('\n')
	if len(line) == 0 && e != nil {
		return nil, e
	}
	var hdr struct {
		Type string `json:"type"`
	}
	if e := json.Unmarshal(line, &hdr); e != nil {
		return nil, e
	}
	var m Message
	switch hdr.Type {
	case "load":
		m = &LoadMessage{}
	case "running":
		m = &RunningMessage{}
	case "exit":
		m = &ExitMessage{}
	default:
		return nil, ErrUnknownMessage
	}
	if e := json.Unmarshal(line, m); e != nil {
		return nil, e
	}
	return m, nil
}
