package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	rungroup "github.com/oklog/run"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chitchatlabs/chitchat/internal/chitchat"
	"github.com/chitchatlabs/chitchat/internal/gossipconfig"
	"github.com/chitchatlabs/chitchat/internal/statusapi"
	"github.com/chitchatlabs/chitchat/internal/transport"
	"github.com/chitchatlabs/chitchat/pkg/backoff"
	"github.com/chitchatlabs/chitchat/pkg/config"
	"github.com/chitchatlabs/chitchat/pkg/log"
)

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chitchatd [flags]",
		Short: "run a chitchat gossip node",
		Long: `Run a chitchat gossip node.

chitchatd maintains a Scuttlebutt anti-entropy gossip membership view and a
Phi-Accrual failure detector, exposing the result over an HTTP status API.

Examples:
  # Start a node listening for gossip on :7280.
  chitchatd --chitchat.bind-addr :7280

  # Join an existing cluster via a seed node.
  chitchatd --chitchat.bind-addr :7281 --chitchat.seed-nodes 10.0.0.1:7280
`,
	}

	gossipConf := gossipconfig.Default()
	gossipConf.RegisterFlags(cmd.Flags(), "chitchat")

	logConf := &log.Config{Level: "info"}
	logConf.RegisterFlags(cmd.Flags())

	var fileConf config.Config
	fileConf.RegisterFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := fileConf.Load(gossipConf); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := gossipConf.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := logConf.Validate(); err != nil {
			return fmt.Errorf("invalid log config: %w", err)
		}

		logger, err := log.NewLogger(logConf.Level, logConf.Subsystems)
		if err != nil {
			return fmt.Errorf("setup logger: %w", err)
		}

		return run(gossipConf, logger)
	}

	return cmd
}

// waitForSeeds resolves seedResolver a handful of times with backoff before
// the transport starts, so a node joining a cluster of DNS-named seeds
// doesn't send its first gossip round into an empty peer set. It never
// fails the node's startup: if every attempt comes up empty, the transport's
// own periodic re-resolution tick keeps trying afterward.
func waitForSeeds(seedResolver *transport.SeedResolver, logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b := backoff.New(5, 200*time.Millisecond, 2*time.Second)
	for {
		addrs, err := seedResolver.Resolve(ctx)
		if err == nil && len(addrs) > 0 {
			logger.Info("resolved seed nodes", zap.Int("count", len(addrs)))
			return
		}
		if err != nil {
			logger.Warn("failed to resolve seed nodes", zap.Error(err))
		}
		if !b.Wait(ctx) {
			logger.Warn("giving up on initial seed resolution, will keep retrying in the background")
			return
		}
	}
}

func run(conf *gossipconfig.Config, logger log.Logger) error {
	logger.Info("starting chitchat node", zap.String("node_id", conf.NodeID), zap.String("cluster_id", conf.ClusterID))

	advertiseAddr, err := transport.ResolveAdvertiseAddr(conf.AdvertiseAddr, conf.BindAddr)
	if err != nil {
		return fmt.Errorf("resolve advertise addr: %w", err)
	}

	self := chitchat.ID{
		NodeID:              conf.NodeID,
		GenerationID:        uint64(time.Now().UnixNano()),
		GossipAdvertiseAddr: advertiseAddr,
	}

	conn, err := net.ListenPacket("udp", conf.BindAddr)
	if err != nil {
		return fmt.Errorf("listen udp: %s: %w", conf.BindAddr, err)
	}

	statusLn, err := net.Listen("tcp", conf.StatusAddr)
	if err != nil {
		return fmt.Errorf("listen tcp: %s: %w", conf.StatusAddr, err)
	}

	registry := prometheus.NewRegistry()
	metrics := chitchat.NewMetrics()
	metrics.Register(registry)

	rng := chitchat.NewRand(time.Now().UnixNano())
	clock := &chitchat.SystemClock{}

	failureDetector := chitchat.NewFailureDetector(chitchat.FailureDetectorConfig{
		PhiThreshold:        conf.FailureDetector.PhiThreshold,
		SamplingWindowSize:  conf.FailureDetector.SamplingWindowSize,
		InitialInterval:     conf.FailureDetector.InitialInterval,
		MaxInterval:         conf.FailureDetector.MaxInterval,
		DeadNodeGracePeriod: conf.FailureDetector.DeadNodeGracePeriod,
	})

	state := chitchat.NewClusterState(chitchat.ClusterStateConfig{
		ClusterID:                    conf.ClusterID,
		SelfID:                       self,
		MarkedForDeletionGracePeriod: conf.MarkedForDeletionGracePeriod,
	}, clock, rng, failureDetector, metrics)

	coordinator := chitchat.NewCoordinator(state, chitchat.CoordinatorConfig{
		GossipCount:   conf.GossipCount,
		MaxPacketSize: conf.MaxPacketSize,
	}, rng, clock)

	var seedResolver *transport.SeedResolver
	if len(conf.SeedNodes) > 0 {
		seedResolver, err = transport.NewSeedResolver(conf.SeedNodes, conf.BindAddr)
		if err != nil {
			return fmt.Errorf("build seed resolver: %w", err)
		}
		waitForSeeds(seedResolver, logger)
	}

	tr := transport.New(conn, coordinator, metrics, seedResolver, transport.Config{
		GossipInterval:         conf.GossipInterval,
		SeedReresolveInterval:  conf.SeedReresolveInterval,
		MaxPacketSize:          conf.MaxPacketSize,
		MarkedForDeletionGrace: conf.MarkedForDeletionGracePeriod,
	}, logger)

	statusServer := statusapi.NewServer(state, registry, logger)

	var group rungroup.Group

	group.Add(func() error {
		if err := tr.Serve(); err != nil {
			return fmt.Errorf("transport serve: %w", err)
		}
		return nil
	}, func(error) {
		if err := tr.Close(); err != nil {
			logger.Warn("failed to close transport", zap.Error(err))
		}
		logger.Info("transport closed")
	})

	group.Add(func() error {
		if err := statusServer.Serve(statusLn); err != nil {
			return fmt.Errorf("status server serve: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to gracefully shutdown status server", zap.Error(err))
		}
		logger.Info("status server shut down")
	})

	signalCtx, signalCancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	group.Add(func() error {
		select {
		case sig := <-signalCh:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			return nil
		case <-signalCtx.Done():
			return nil
		}
	}, func(error) {
		signalCancel()
	})

	if err := group.Run(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
