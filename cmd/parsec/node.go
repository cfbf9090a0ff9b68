package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oriys/parsec/internal/config"
	"github.com/oriys/parsec/internal/logging"
	"github.com/oriys/parsec/internal/observability"
	"github.com/spf13/cobra"
)

// nodeCmd runs a pure dispatcher node: it joins the cluster, listens for
// FISH/SCHEDULE/EXECUTE/RPUT/HEARTBEAT/QUIESCE/SHUTDOWN traffic, and runs
// whatever sparks land on it. It never originates a Par program itself;
// that is the main node's job (see runCmd).
func nodeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Join the cluster as a worker/dispatcher node",
		Long:  "Start a node that listens for remote work (FISH, EXECUTE, RPUT) and runs it, without originating a Par program of its own.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := initAmbientStack(cfg); err != nil {
				return err
			}
			defer observability.Shutdown(context.Background())

			rt, err := bootRuntime(cfg)
			if err != nil {
				return err
			}

			addr := listenAddr
			if addr == "" {
				addr = selfAddress(cfg)
			}
			boundAddr, err := rt.Listen(addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			logging.Op().Info("node listening", "node_id", cfg.NodeID, "addr", boundAddr.String())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go rt.Scheduler().Start(ctx)
			startHeartbeatLoop(ctx, rt, cfg.Heartbeat.Interval)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logging.Op().Info("shutdown signal received", "node_id", cfg.NodeID)
			rt.Scheduler().Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Address to listen on (defaults to this node's entry in peers)")
	return cmd
}

// selfAddress finds this node's own advertised address among cfg.Peers so
// a bare "parsec node --config ..." invocation can omit --listen entirely.
func selfAddress(cfg *config.Config) string {
	for _, p := range cfg.Peers {
		if peerNodeID(p) == cfg.NodeID {
			return peerAddr(p)
		}
	}
	return ""
}
