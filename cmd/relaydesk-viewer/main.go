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

// relaydesk-viewer connects to a relaydesk-host and either drives a
// headless session (--send-file) or streams frame-received counts to the
// log while idle, since the GUI front end that would paint frames is out
// of scope (spec §1).
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yawning/relaydesk/internal/config"
	"github.com/yawning/relaydesk/internal/keystore"
	"github.com/yawning/relaydesk/internal/viewer"
)

var (
	configPath   string
	keyPath      string
	videoAddr    string
	controlAddr  string
	sendFile     string
	logLevel     string
	hostsPath    string
	hostName     string
	preferPublic bool
)

// loadHostsCSV reads the hostname,privateip,publicip table named in spec
// §6 and builds the StaticResolver the core consumes through its narrow
// Resolver interface; the core itself never parses this file.
func loadHostsCSV(path string) (viewer.StaticResolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("relaydesk-viewer: parsing hosts file: %w", err)
	}

	resolver := make(viewer.StaticResolver, len(records))
	for _, rec := range records {
		resolver[rec[0]] = viewer.HostAddrs{Private: rec[1], Public: rec[2]}
	}
	return resolver, nil
}

// logDisplay is the headless Display used when no GUI is wired in: it
// counts frames and logs every 30th at debug level, standing in for the
// out-of-scope front end.
type logDisplay struct {
	log   *logrus.Entry
	count int
}

func (d *logDisplay) ShowFrame(img image.Image) {
	d.count++
	if d.count%30 == 0 {
		b := img.Bounds()
		d.log.WithFields(logrus.Fields{"frames": d.count, "w": b.Dx(), "h": b.Dy()}).Debug("received frame")
	}
}

func main() {
	cmd := &cobra.Command{
		Use:   "relaydesk-viewer",
		Short: "Connect to a relaydesk-host and relay its display",
		RunE:  run,
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&keyPath, "key", "", "path to the pre-shared key (overrides config)")
	flags.StringVar(&videoAddr, "video-addr", "", "host video address (overrides config)")
	flags.StringVar(&controlAddr, "control-addr", "", "host control address (overrides config)")
	flags.StringVar(&sendFile, "send-file", "", "send a local file to the host once connected")
	flags.StringVar(&logLevel, "log-level", "info", "logrus level: debug, info, warn, error")
	flags.StringVar(&hostsPath, "hosts-file", "", "path to a hostname,privateip,publicip CSV")
	flags.StringVar(&hostName, "host-name", "", "hostname to resolve via --hosts-file instead of --video-addr/--control-addr")
	flags.BoolVar(&preferPublic, "prefer-public", false, "prefer the public address when resolving --host-name")

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
	applyViewerOverrides(&cfg, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return err
	}

	resolvedKeyPath := cfg.KeyPath
	if keyPath != "" {
		resolvedKeyPath = keyPath
	}
	key, err := keystore.Load(resolvedKeyPath)
	if err != nil {
		return fmt.Errorf("relaydesk-viewer: loading key: %w", err)
	}

	display := &logDisplay{log: log.WithField("component", "display")}
	client := viewer.New(cfg, key, display, log)

	if hostName != "" {
		if hostsPath == "" {
			return fmt.Errorf("relaydesk-viewer: --host-name requires --hosts-file")
		}
		resolver, err := loadHostsCSV(hostsPath)
		if err != nil {
			return err
		}
		client.SetResolver(resolver, hostName, preferPublic)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, viewer.ConnectTimeout)
	defer connectCancel()
	if err := client.Connect(connectCtx); err != nil {
		return fmt.Errorf("relaydesk-viewer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithField("signal", sig).Info("disconnecting")
		client.Stop()
		cancel()

		// A second signal forces an immediate exit, as in relaydesk-host.
		<-sigChan
		log.Warn("second signal received, exiting immediately")
		os.Exit(1)
	}()

	if sendFile != "" {
		go func() {
			if err := client.SendFile(sendFile); err != nil {
				log.WithError(err).Error("send-file failed")
			} else {
				log.WithField("path", sendFile).Info("send-file complete")
			}
		}()
	}

	return client.Run(ctx)
}

func applyViewerOverrides(cfg *config.SessionConfig, flags *pflag.FlagSet) {
	if flags.Changed("video-addr") {
		cfg.VideoAddr = videoAddr
	}
	if flags.Changed("control-addr") {
		cfg.ControlAddr = controlAddr
	}
}
