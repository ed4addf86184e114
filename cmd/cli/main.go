// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main contains the gateway CLI. It talks to a running gateway
// over its HTTP health endpoint and the message broker queues.
package main

import (
	"log"

	"github.com/absmach/smppgate/cli"
	cc "github.com/ivanpirog/coloredcobra"
	"github.com/spf13/cobra"
)

func main() {
	gwConf := cli.GatewayConfig{
		BrokerURL: "nats://localhost:4222",
	}

	// Root
	rootCmd := &cobra.Command{
		Use: "smppgate-cli",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			conf, err := cli.ParseConfig(gwConf)
			if err != nil {
				log.Fatalf("Failed to parse config: %s", err)
			}

			cli.SetGateway(cli.NewGateway(conf))
		},
	}

	// API commands
	healthCmd := cli.NewHealthCmd()
	messageCmd := cli.NewMessageCmd()
	configCmd := cli.NewConfigCmd()

	// Root Commands
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(configCmd)

	// Root Flags
	rootCmd.PersistentFlags().StringVarP(
		&gwConf.BrokerURL,
		"broker-url",
		"b",
		gwConf.BrokerURL,
		"Message broker URL",
	)

	rootCmd.PersistentFlags().StringVarP(
		&cli.ConfigPath,
		"config",
		"c",
		cli.ConfigPath,
		"Config path",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&cli.RawOutput,
		"raw",
		"r",
		cli.RawOutput,
		"Enables raw output mode for easier parsing of output",
	)

	cc.Init(&cc.Config{
		RootCmd:  rootCmd,
		Commands: cc.HiCyan + cc.Bold,
		Example:  cc.HiYellow + cc.Italic,
		ExecName: cc.HiGreen + cc.Bold,
		Flags:    cc.HiMagenta + cc.Bold,
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
