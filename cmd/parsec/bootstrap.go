package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/oriys/parsec/internal/cluster"
	"github.com/oriys/parsec/internal/comm"
	"github.com/oriys/parsec/internal/config"
	"github.com/oriys/parsec/internal/location"
	"github.com/oriys/parsec/internal/logging"
	"github.com/oriys/parsec/internal/metrics"
	"github.com/oriys/parsec/internal/observability"
	"github.com/oriys/parsec/internal/par"
	"github.com/oriys/parsec/internal/registry"
)

// loadConfig starts from config.DefaultConfig, overlays --config if given,
// then overlays PARSEC_* environment variables, mirroring the teacher's
// daemon start sequence (file first, env as the final override).
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initAmbientStack wires up structured logging, the hot-path debug line
// channel, tracing, and Prometheus metrics from cfg, in the order the
// teacher's daemon start sequence uses.
func initAmbientStack(cfg *config.Config) error {
	logging.SetDebugLevel(cfg.DebugLevel)
	logging.SetLevelFromString(cfg.Logging.Level)
	logging.InitStructured(cfg.Logging.Format, cfg.Logging.Level)

	if err := observability.Init(context.Background(), observability.Config{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
	}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitPrometheus(cfg.Metrics.Namespace, nil)
		startMetricsServer(cfg.Metrics.Addr)
	}
	return nil
}

// startMetricsServer serves the Prometheus registry on addr in the
// background, the way the teacher's daemon mounts its metrics endpoint
// alongside the rest of its HTTP surface. A scrape failure here never
// brings a node down; it's only logged.
func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.PrometheusHandler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logging.Op().Warn("metrics server exited", "addr", addr, "error", err)
		}
	}()
}

// bootRuntime brings up a par.Runtime for this node: it sets the process's
// node identity and peer list in internal/location, builds a cluster
// registry seeded with every peer from cfg.Peers except this node itself
// (so it never fishes itself), starts the registry's health checker in the
// background, and constructs the Runtime around it.
func bootRuntime(cfg *config.Config) (*par.Runtime, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("parsec: node_id must be set")
	}

	me := location.NewNodeId(cfg.NodeID)
	location.SetMyNode(me)

	ids := make([]location.NodeId, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		ids = append(ids, location.NewNodeId(peerNodeID(p)))
	}
	location.SetAllNodes(ids)

	clusterCfg := cluster.DefaultConfig(cfg.NodeID)
	clusterCfg.HeartbeatTimeout = cfg.Heartbeat.Timeout

	rt := par.NewRuntime(par.Config{
		NumWorkers:     cfg.NumWorkers,
		NodeTag:        cfg.NodeID,
		RequestTimeout: cfg.Heartbeat.Timeout,
		FishBackoffMin: cfg.Fishing.BackoffMin,
		FishBackoffMax: cfg.Fishing.BackoffMax,
		ClusterConfig:  clusterCfg,
	})

	for _, addr := range cfg.Peers {
		id := peerNodeID(addr)
		if id == cfg.NodeID {
			continue
		}
		rt.ClusterRegistry().RegisterNode(&cluster.Node{
			ID:      id,
			Address: peerAddr(addr),
			State:   cluster.NodeStateActive,
		})
	}
	go rt.ClusterRegistry().StartHealthChecker(cfg.Heartbeat.Interval)

	if err := rt.WarmPeerConnections(cfg.Heartbeat.Timeout); err != nil {
		logging.Op().Warn("warm peer connections failed", "error", err)
	}

	registerDemoClosures(rt)
	registry.Seal()

	if cfg.Chaos.Enabled && (cfg.Chaos.DropProb > 0 || cfg.Chaos.MaxDelay > 0) {
		comm.EnableChaos(cfg.Chaos.DropProb, cfg.Chaos.MaxDelay)
	}
	maybeScheduleChaosKill(cfg, rt)

	return rt, nil
}

// maybeScheduleChaosKill implements the ChaosMonkey knob: if this node is
// named in cfg.Chaos.KillTargets, it simulates a crash after KillAfter by
// stopping its scheduler and dropping its outbound connections, without
// exiting the process — enough for a PeerUnreachable/dispatch-failure
// scenario to play out against the rest of the cluster in a single-host
// test run.
func maybeScheduleChaosKill(cfg *config.Config, rt *par.Runtime) {
	if !cfg.Chaos.Enabled {
		return
	}
	isTarget := false
	for _, id := range cfg.Chaos.KillTargets {
		if id == cfg.NodeID {
			isTarget = true
			break
		}
	}
	if !isTarget {
		return
	}

	time.AfterFunc(cfg.Chaos.KillAfter, func() {
		logging.Op().Warn("chaos monkey killing node", "node_id", cfg.NodeID)
		rt.Scheduler().Stop()
	})
}

// peerNodeID and peerAddr split a "node-id@host:port" peer entry; a bare
// "host:port" entry uses the address itself as its node id, which is
// enough for a quick local multi-process run.
func peerNodeID(entry string) string {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '@' {
			return entry[:i]
		}
	}
	return entry
}

func peerAddr(entry string) string {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '@' {
			return entry[i+1:]
		}
	}
	return entry
}

func startHeartbeatLoop(ctx context.Context, rt *par.Runtime, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rt.Heartbeat()
			}
		}
	}()
}
