// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// solvaultd is the custodial multisig daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solvault-io/solvaultd/config"
	"github.com/solvault-io/solvaultd/node"
	"github.com/solvault-io/solvaultd/version"
)

func main() {
	cmd := runCommand()
	cmd.AddCommand(versionCommand())
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		os.Exit(1)
	}
}

func runCommand() *cobra.Command {
	fs := config.BuildFlagSet()
	c := &cobra.Command{
		Use:          version.Client,
		Short:        "Runs the custody daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.BuildViper(fs, os.Args[1:])
			if err != nil {
				return err
			}
			cfg, err := config.GetConfig(v)
			if err != nil {
				return err
			}

			n, err := node.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(
				cmd.Context(),
				syscall.SIGINT, syscall.SIGTERM,
			)
			defer stop()
			go func() {
				<-ctx.Done()
				n.Shutdown()
			}()

			return n.Dispatch(ctx)
		},
	}
	c.Flags().AddFlagSet(fs)
	return c
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the version and exits",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("%s %s\n", version.Client, version.Current)
		},
	}
}
