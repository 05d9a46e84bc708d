// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command trc inspects Micromed TRC recordings and decodes their live streams.
package main

import (
	"fmt"
	"os"

	"github.com/OpenPSG/trc/internal/cli"
	"github.com/OpenPSG/trc/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// envPrefix prefixes the environment variable of every flag, e.g. TRC_ADDR.
const envPrefix = "trc"

func main() {
	cmd, err := newRootCommand(cli.NewViper(envPrefix))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the state shared by every subcommand.
type app struct {
	v      *viper.Viper
	logCfg logger.Config
	log    *zap.Logger
}

func newRootCommand(v *viper.Viper) (*cobra.Command, error) {
	a := &app{v: v, log: zap.NewNop()}

	cmd := &cobra.Command{
		Use:          "trc",
		Short:        "Inspect Micromed TRC recordings and decode their live streams",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.New(cmd.ErrOrStderr(), a.logCfg)
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.log.Sync()
		},
	}

	defaults := logger.NewConfig()
	err := cli.BindPersistentOptions(v, cmd, []cli.Opt{
		cli.NewOpt(&a.logCfg.Level, "log-level", defaults.Level, "log level: debug, info, warn or error"),
		cli.NewOpt(&a.logCfg.Format, "log-format", defaults.Format, "log format: console or json"),
	})
	if err != nil {
		return nil, err
	}

	for _, newCmd := range []func(*app) (*cobra.Command, error){
		newInfoCommand,
		newServeCommand,
		newEmulateCommand,
	} {
		sub, err := newCmd(a)
		if err != nil {
			return nil, err
		}
		cmd.AddCommand(sub)
	}

	return cmd, nil
}
