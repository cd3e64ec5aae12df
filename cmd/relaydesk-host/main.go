/*
 * Copyright (c) 2014, Yawning Angel <yawning at torproject dot org>
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions are met:
 *
 *  * Redistributions of source code must retain the above copyright notice,
 *    this list of conditions and the following disclaimer.
 *
 *  * Redistributions in binary form must reproduce the above copyright notice,
 *    this list of conditions and the following disclaimer in the documentation
 *    and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
 * AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
 * IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
 * ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
 * LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
 * CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
 * SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
 * INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
 * CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
 * ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

// relaydesk-host runs the host side of a relay session: it binds the video
// and control listeners and serves one viewer at a time until terminated.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yawning/relaydesk/internal/capture"
	"github.com/yawning/relaydesk/internal/config"
	"github.com/yawning/relaydesk/internal/hostsvc"
	"github.com/yawning/relaydesk/internal/inject"
	"github.com/yawning/relaydesk/internal/keystore"
)

var (
	configPath  string
	keyPath     string
	videoAddr   string
	controlAddr string
	fps         int
	scale       float64
	jpegQuality int
	logLevel    string
)

func main() {
	cmd := &cobra.Command{
		Use:   "relaydesk-host",
		Short: "Serve a remote-desktop session as the host",
		RunE:  run,
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&keyPath, "key", "", "path to the pre-shared key (overrides config)")
	flags.StringVar(&videoAddr, "video-addr", "", "video listener address (overrides config)")
	flags.StringVar(&controlAddr, "control-addr", "", "control listener address (overrides config)")
	flags.IntVar(&fps, "fps", 0, "capture rate in frames per second (overrides config)")
	flags.Float64Var(&scale, "scale", 0, "downscale factor in (0,1] (overrides config)")
	flags.IntVar(&jpegQuality, "jpeg-quality", 0, "JPEG quality 1-100 (overrides config)")
	flags.StringVar(&logLevel, "log-level", "info", "logrus level: debug, info, warn, error")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyHostOverrides(&cfg, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return err
	}

	resolvedKeyPath := cfg.KeyPath
	if keyPath != "" {
		resolvedKeyPath = keyPath
	}
	key, err := keystore.Load(resolvedKeyPath)
	if err != nil {
		return fmt.Errorf("relaydesk-host: loading key: %w", err)
	}

	// Platform screen capture and input injection are external
	// collaborators (spec §1): this binary wires the synthetic/recording
	// test doubles so the relay loop is complete end to end; a real
	// deployment substitutes platform-specific Capturer/Injector
	// implementations built outside this module.
	w, h := 1920, 1080
	capturer := capture.NewSynthetic(w, h)
	injector := inject.NewRecording()

	srv := hostsvc.New(cfg, key, capturer, injector, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithField("signal", sig).Info("shutting down")
		srv.Stop()
		cancel()

		// A second signal forces an immediate exit, mirroring the
		// teacher's double-signal shutdown in obfs4proxy.go.
		<-sigChan
		log.Warn("second signal received, exiting immediately")
		os.Exit(1)
	}()

	return srv.Run(ctx)
}

func applyHostOverrides(cfg *config.SessionConfig, flags *pflag.FlagSet) {
	if flags.Changed("video-addr") {
		cfg.VideoAddr = videoAddr
	}
	if flags.Changed("control-addr") {
		cfg.ControlAddr = controlAddr
	}
	if flags.Changed("fps") {
		cfg.FPS = fps
	}
	if flags.Changed("scale") {
		cfg.Scale = scale
	}
	if flags.Changed("jpeg-quality") {
		cfg.JPEGQuality = jpegQuality
	}
}
