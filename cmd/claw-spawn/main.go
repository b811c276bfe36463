package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cedros/claw-spawn/internal/version"
)

func main() {
	cmd := &cobra.Command{
		Use:          "claw-spawn",
		Short:        "Control plane for OpenClaw trading bots on DigitalOcean",
		SilenceUsage: true,
		Version:      version.Version,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd.AddCommand(NewStartCommand())
	cmd.AddCommand(NewMigrateCommand())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
