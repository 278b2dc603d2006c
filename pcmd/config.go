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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gdamore/pcm"
	"github.com/gdamore/pcm/ctl"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the daemon settings.  They come from flags, PCM_*
// environment variables, or a pcmd.yaml config file, in that order of
// precedence.
type Config struct {
	Socket         string
	HTTP           string
	HTTPUser       string
	HTTPHash       string
	Files          []string
	Watch          bool
	Start          bool
	Tick           time.Duration
	StopTime       time.Duration
	SampleInterval time.Duration
	ReadyDelay     time.Duration
	MaxSessions    int
	Quiet          bool
}

func addConfigFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "config file (default ./pcmd.yaml)")
	fs.StringP("socket", "s", "", "control socket path")
	fs.String("http", "", "HTTP listen address, e.g. 127.0.0.1:8321")
	fs.String("http-user", "", "HTTP basic auth user")
	fs.String("http-hash", "", "bcrypt hash of the HTTP basic auth password")
	fs.StringSliceP("file", "f", nil, "application manifest (JSON or YAML); may be repeated")
	fs.Bool("watch", false, "register applications added to the manifests")
	fs.Bool("start", true, "start applications when registered")
	fs.Duration("tick", pcm.DefaultTick, "supervision interval")
	fs.Duration("stop-time", pcm.DefaultStopTime, "how long workers get to exit before SIGKILL")
	fs.Duration("sample-interval", 0, "worker load sampling interval (default 1.024s)")
	fs.Duration("ready-delay", 0, "worker readiness grace period (default 5s)")
	fs.Int("max-sessions", ctl.DefaultMaxSessions, "concurrent control sessions")
	fs.BoolP("quiet", "q", false, "do not log to stderr")
}

// loadConfig merges the sources into a Config.
func loadConfig(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	if e := v.BindPFlags(fs); e != nil {
		return nil, e
	}
	v.SetEnvPrefix("PCM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if f := v.GetString("config"); f != "" {
		v.SetConfigFile(f)
		if e := v.ReadInConfig(); e != nil {
			return nil, fmt.Errorf("reading %s: %w", f, e)
		}
	} else {
		v.SetConfigName("pcmd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if e := v.ReadInConfig(); e != nil {
			if _, ok := e.(viper.ConfigFileNotFoundError); !ok {
				return nil, e
			}
		}
	}

	c := &Config{
		Socket:         v.GetString("socket"),
		HTTP:           v.GetString("http"),
		HTTPUser:       v.GetString("http-user"),
		HTTPHash:       v.GetString("http-hash"),
		Files:          v.GetStringSlice("file"),
		Watch:          v.GetBool("watch"),
		Start:          v.GetBool("start"),
		Tick:           v.GetDuration("tick"),
		StopTime:       v.GetDuration("stop-time"),
		SampleInterval: v.GetDuration("sample-interval"),
		ReadyDelay:     v.GetDuration("ready-delay"),
		MaxSessions:    v.GetInt("max-sessions"),
		Quiet:          v.GetBool("quiet"),
	}
	if c.Socket == "" {
		c.Socket = ctl.DefaultSocketPath()
	}
	if len(c.Files) == 0 {
		if _, e := os.Stat(pcm.DefaultManifest); e == nil {
			c.Files = []string{pcm.DefaultManifest}
		}
	}
	if c.HTTPHash != "" && c.HTTPUser == "" {
		return nil, fmt.Errorf("http-hash needs http-user")
	}
	return c, nil
}
