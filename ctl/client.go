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
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
)

// Client sends commands to a pcmd control socket.
type Client struct {
	path string
}

func NewClient(path string) *Client {
	return &Client{path: path}
}

// Do sends one command line and returns the response.  The error is set
// when the exchange failed, or when the command did.
func (c *Client) Do(ctx context.Context, line string) (*Response, error) {
	var d net.Dialer
	conn, e := d.DialContext(ctx, "unix", c.path)
	if e != nil {
		return nil, e
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, e := conn.Write([]byte(strings.TrimSpace(line) + "\n")); e != nil {
		return nil, e
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if e := uc.CloseWrite(); e != nil {
			return nil, e
		}
	}
	resp := &Response{}
	if e := json.NewDecoder(conn).Decode(resp); e != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading response: %w", e)
	}
	return resp, resp.Err()
}

// Command runs verb with optional arguments.
func (c *Client) Command(ctx context.Context, verb string, args ...string) (*Response, error) {
	return c.Do(ctx, strings.Join(append([]string{verb}, args...), " "))
}
