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

// Command pcmd supervises clusters of worker processes.
//
//	pcmd --app ./server --name web -n 4 --app ./mailer -f apps.json
//
// Applications given on the command line and in manifests are started
// right away.  Use the pcm command to control them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/pcm"
	"github.com/gdamore/pcm/ctl"
	"github.com/gdamore/pcm/rest"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	apps := &appGroups{}
	cmd := &cobra.Command{
		Use:   "pcmd [flags]",
		Short: "Process cluster supervisor",
		Long: `pcmd keeps each application running as a pool of worker processes,
restarting workers that die, and exits if an application keeps crashing.
It is controlled through a unix socket, see pcm.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, e := loadConfig(viper.New(), cmd.Flags())
			if e != nil {
				return e
			}
			return run(cmd.Context(), cfg, apps.Definitions())
		},
	}
	apps.addFlags(cmd.Flags())
	addConfigFlags(cmd.Flags())
	return cmd
}

func newLogger(cfg *Config) *log.Logger {
	if cfg.Quiet {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

// register adds the command line and manifest applications.  Bad ones
// are logged and skipped.
func register(reg *pcm.Registry, cfg *Config, defs []pcm.Definition, logger *log.Logger) {
	for _, def := range defs {
		if _, e := reg.Register(def); e != nil {
			logger.Printf("Skipping --app %s: %v", def.Path, e)
		}
	}
	for _, f := range cfg.Files {
		recs, e := pcm.ReadManifestFile(f)
		if e != nil {
			logger.Printf("Cannot read %s: %v", f, e)
			continue
		}
		reg.Load(recs)
	}
}

// newRegistry applies the daemon defaults to every application, however
// it is registered.
func newRegistry(cfg *Config, logger *log.Logger) *pcm.Registry {
	return pcm.NewRegistry(
		pcm.WithRegistryLogger(logger),
		pcm.WithStopTime(cfg.StopTime))
}

func run(ctx context.Context, cfg *Config, defs []pcm.Definition) error {
	logger := newLogger(cfg)
	reg := newRegistry(cfg, logger)
	register(reg, cfg, defs, logger)

	metrics := pcm.NewPrometheusMetricsCollector("pcm")
	sup := pcm.NewSupervisor(reg,
		pcm.WithLauncher(&pcm.ProcessLauncher{
			SampleInterval: cfg.SampleInterval,
			ReadyDelay:     cfg.ReadyDelay,
		}),
		pcm.WithTick(cfg.Tick),
		pcm.WithMetrics(metrics),
		pcm.WithAutoStart(cfg.Start),
		pcm.WithLogger(logger))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := ctl.NewServer(sup, sup.Logger())
	srv.MaxSessions = cfg.MaxSessions
	srv.Metrics = metrics
	if e := srv.Listen(cfg.Socket); e != nil {
		return fmt.Errorf("control socket: %w", e)
	}
	defer srv.Close()
	go srv.Serve(ctx)
	logger.Printf("Control socket is %s", cfg.Socket)

	if cfg.HTTP != "" {
		opts := []rest.Option{rest.WithMetrics(metrics.Handler())}
		if cfg.HTTPHash != "" {
			opts = append(opts, rest.WithBasicAuth(cfg.HTTPUser, cfg.HTTPHash))
		}
		hs := &http.Server{
			Addr:              cfg.HTTP,
			Handler:           rest.NewHandler(sup, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if e := hs.ListenAndServe(); e != nil && !errors.Is(e, http.ErrServerClosed) {
				logger.Printf("HTTP server: %v", e)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			hs.Shutdown(sctx)
		}()
	}

	ld := &loader{sup: sup, files: cfg.Files, logger: logger}
	if cfg.Watch && len(cfg.Files) > 0 {
		go func() {
			if e := ld.watch(ctx); e != nil {
				logger.Printf("Cannot watch manifests: %v", e)
			}
		}()
	}
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-hup:
				logger.Printf("Reloading manifests")
				ld.reload(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	e := sup.Run(ctx)
	var cl *pcm.CrashLoopError
	if errors.As(e, &cl) {
		// Crash loops end pcmd with status 0.
		logger.Printf("Exiting: %v", e)
		return nil
	}
	return e
}

func main() {
	if e := newRootCmd().Execute(); e != nil {
		fmt.Fprintf(os.Stderr, "pcmd: %v\n", e)
		os.Exit(1)
	}
}
