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
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gdamore/pcm"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func parse(args ...string) (*appGroups, *pflag.FlagSet, error) {
	g := &appGroups{}
	fs := pflag.NewFlagSet("pcmd", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	g.addFlags(fs)
	addConfigFlags(fs)
	return g, fs, fs.Parse(args)
}

func TestAppGroups(t *testing.T) {
	Convey("Application flags group in order", t, func() {
		g, _, e := parse(
			"--app", "/bin/web", "--name", "web", "-n", "4", "--arg", "-p", "--arg=80",
			"--app", "/bin/mail", "--num=2", "--pid-file", "/run/mail.pid")
		So(e, ShouldBeNil)
		So(g.Definitions(), ShouldResemble, []pcm.Definition{
			{Path: "/bin/web", Name: "web", Workers: 4, Args: []string{"-p", "80"}},
			{Path: "/bin/mail", Workers: 2, PidFile: "/run/mail.pid"},
		})
	})

	Convey("Refinements need a preceding --app", t, func() {
		_, _, e := parse("--name", "web", "--app", "/bin/web")
		So(e, ShouldNotBeNil)
		_, _, e = parse("-n", "2")
		So(e, ShouldNotBeNil)
	})

	Convey("Worker counts must be numbers", t, func() {
		_, _, e := parse("--app", "/bin/web", "-n", "many")
		So(e, ShouldNotBeNil)
	})
}

func TestConfig(t *testing.T) {
	Convey("Given a clean working directory", t, func() {
		dir := t.TempDir()
		wd, _ := os.Getwd()
		So(os.Chdir(dir), ShouldBeNil)
		Reset(func() {
			os.Chdir(wd)
		})

		Convey("Defaults apply", func() {
			t.Setenv("PCM_DIR", dir)
			_, fs, e := parse()
			So(e, ShouldBeNil)
			c, e := loadConfig(viper.New(), fs)
			So(e, ShouldBeNil)
			So(c.Socket, ShouldEqual, filepath.Join(dir, "pcm.sock"))
			So(c.Tick, ShouldEqual, pcm.DefaultTick)
			So(c.Start, ShouldBeTrue)
			So(len(c.Files), ShouldEqual, 0)
		})

		Convey("The default manifest is picked up", func() {
			So(os.WriteFile("apps.json", []byte("[]"), 0644), ShouldBeNil)
			_, fs, _ := parse()
			c, e := loadConfig(viper.New(), fs)
			So(e, ShouldBeNil)
			So(c.Files, ShouldResemble, []string{pcm.DefaultManifest})
		})

		Convey("Environment and config file are read, flags win", func() {
			t.Setenv("PCM_HTTP_USER", "admin")
			So(os.WriteFile("pcmd.yaml", []byte("tick: 5s\nhttp: 127.0.0.1:9000\nsocket: /tmp/a.sock\n"), 0644), ShouldBeNil)
			_, fs, _ := parse("--socket", "/tmp/b.sock")
			c, e := loadConfig(viper.New(), fs)
			So(e, ShouldBeNil)
			So(c.Tick, ShouldEqual, 5*time.Second)
			So(c.HTTP, ShouldEqual, "127.0.0.1:9000")
			So(c.HTTPUser, ShouldEqual, "admin")
			So(c.Socket, ShouldEqual, "/tmp/b.sock")
		})

		Convey("A password hash needs a user", func() {
			_, fs, _ := parse("--http-hash", "$2a$10$abc")
			_, e := loadConfig(viper.New(), fs)
			So(e, ShouldNotBeNil)
		})
	})
}

func TestRegister(t *testing.T) {
	Convey("Command line and manifest applications are registered", t, func() {
		dir := t.TempDir()
		exe := filepath.Join(dir, "server")
		So(os.WriteFile(exe, []byte("#!/bin/sh\n"), 0755), ShouldBeNil)
		manifest := filepath.Join(dir, "apps.json")
		doc := `[{"app": "` + exe + `", "name": "api"}, {"name": "broken"}]`
		So(os.WriteFile(manifest, []byte(doc), 0644), ShouldBeNil)

		var buf bytes.Buffer
		logger := log.New(&buf, "", 0)
		cfg := &Config{Files: []string{manifest}, StopTime: time.Second}
		reg := newRegistry(cfg, logger)
		register(reg, cfg, []pcm.Definition{
			{Path: exe, Name: "web"},
			{Path: filepath.Join(dir, "missing")},
		}, logger)

		So(reg.Len(), ShouldEqual, 2)
		apps, e := reg.Lookup("web")
		So(e, ShouldBeNil)
		So(apps[0].Definition().StopTime, ShouldEqual, time.Second)
		apps, e = reg.Lookup("api")
		So(e, ShouldBeNil)
		So(apps[0].Definition().StopTime, ShouldEqual, time.Second)
		So(buf.String(), ShouldContainSubstring, "Skipping --app")
		So(buf.String(), ShouldContainSubstring, "apps.json[1]")
	})
}
