package main

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/parsec/internal/logging"
	"github.com/oriys/parsec/internal/observability"
	"github.com/oriys/parsec/internal/strategies"
	"github.com/spf13/cobra"
)

// runCmd is the main-node entry point: it brings up the same Runtime a
// node would, then originates a Par program against it using the
// strategies skeletons, waits for the program's results, probes cluster
// quiescence once, and at debug level 1 or above logs final stats. It does
// not wait for the cluster to become quiescent. Everything it computes could instead
// be issued from any long-lived process embedding this module; run exists
// so the behavior can be exercised end to end from the command line.
func runCmd() *cobra.Command {
	var fibN int
	var sumTo int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bundled demo Par program on this node",
		Long:  "Bring up a Runtime, originate a divide-and-conquer Fibonacci and a threshold map-reduce sum as Par programs, log each result as it completes, then probe cluster quiescence once.",
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

			addr := selfAddress(cfg)
			if addr != "" {
				boundAddr, err := rt.Listen(addr)
				if err != nil {
					return fmt.Errorf("listen on %s: %w", addr, err)
				}
				logging.Op().Info("main node listening", "node_id", cfg.NodeID, "addr", boundAddr.String())
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go rt.Scheduler().Start(ctx)
			startHeartbeatLoop(ctx, rt, cfg.Heartbeat.Interval)

			start := time.Now()

			fib := strategies.SolveDivideConquer(rt, fibSpec, fibN)
			logging.Op().Info("fibonacci result", "n", fibN, "result", fib)

			sum := strategies.MapReduceRangeThresh(rt, sumSquareSpec, 1, sumTo, 64)
			logging.Op().Info("sum-of-squares result", "to", sumTo, "result", sum)

			doubled, err := strategies.ParMap[int, int](rt, labelDouble, []int{1, 2, 3, 4, 5})
			if err != nil {
				return fmt.Errorf("parMap demo: %w", err)
			}
			logging.Op().Info("parMap result", "input", []int{1, 2, 3, 4, 5}, "output", doubled)

			elapsed := time.Since(start)
			clusterQuiescent := rt.ProbeClusterQuiescence(ctx, 1)

			if cfg.DebugLevel >= 1 {
				logging.Op().Info("final stats",
					"elapsed", elapsed,
					"tasks_run", rt.Scheduler().TasksRun(),
					"spark_pool_depth", rt.Scheduler().SparkPoolDepth(),
					"active_workers", rt.Scheduler().ActiveWorkers(),
					"quiescent", rt.Scheduler().IsQuiescent(),
					"cluster_quiescent", clusterQuiescent,
				)
			}

			rt.Scheduler().Stop()
			return nil
		},
	}

	cmd.Flags().IntVar(&fibN, "fib", 10, "fibonacci index to compute via divide-and-conquer")
	cmd.Flags().IntVar(&sumTo, "sum-to", 1000, "upper bound of the 1..n sum-of-squares map-reduce")
	return cmd
}
