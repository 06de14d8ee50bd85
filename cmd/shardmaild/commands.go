package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/cuemby/shardmail/pkg/config"
	"github.com/cuemby/shardmail/pkg/rpc"
	"github.com/cuemby/shardmail/pkg/types"
	"github.com/spf13/cobra"
)

func init() {
	for _, cmd := range []*cobra.Command{bootstrapCmd, joinCmd, statusCmd, peersCmd} {
		cmd.Flags().String("config", "shardmail.yaml", "Path to the node's YAML config file")
	}
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Initialize a new cluster with this node as the first member",
	Long: `bootstrap creates a fresh root certificate authority for the
cluster, issues this node its own peer certificate, and starts it as a
single-node cluster ready for others to join.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadNodeConfig(cmd)
		if err != nil {
			return err
		}

		n, err := startNode(cfg, true)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		defer n.db.Close()

		fmt.Printf("Cluster %q bootstrapped. Root CA issued; node %d ready.\n", cfg.ClusterID, cfg.NodeID)
		return n.run(cmd)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join this node to an existing cluster",
	Long: `join starts this node against an already-bootstrapped cluster's
data. The operator must first copy the bootstrap node's CA material
(data_dir's security bucket) to this node's data_dir, and list this
node in the config's peers so existing members can reach it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadNodeConfig(cmd)
		if err != nil {
			return err
		}

		n, err := startNode(cfg, false)
		if err != nil {
			return fmt.Errorf("join: %w", err)
		}
		defer n.db.Close()

		fmt.Printf("Node %d joining cluster %q.\n", cfg.NodeID, cfg.ClusterID)
		return n.run(cmd)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report this node's CA material and configured peer list",
	Long: `status reads the local config and data directory without
starting the node's RPC listener or election loop, useful for
confirming a join's CA copy landed correctly before running join.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadNodeConfig(cmd)
		if err != nil {
			return err
		}

		db, _, ca, err := openNodeSecurity(cfg, false)
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		defer db.Close()

		fmt.Printf("Node ID:     %d\n", cfg.NodeID)
		fmt.Printf("Shard ID:    %d\n", cfg.ShardID)
		fmt.Printf("Cluster ID:  %s\n", cfg.ClusterID)
		fmt.Printf("Bind addr:   %s\n", cfg.BindAddr)
		fmt.Printf("Data dir:    %s\n", cfg.DataDir)
		fmt.Printf("Root CA:     loaded (%d bytes DER)\n", len(ca.GetRootCACert()))
		fmt.Printf("Peers:       %d configured\n", len(cfg.Peers))
		for _, p := range cfg.Peers {
			fmt.Printf("  - %d @ %s\n", p.PeerID, p.Addr)
		}
		return nil
	},
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Ping every configured peer and report reachability",
	Long: `peers dials each peer in the config over the cluster's mTLS
transport and sends a ReqPing, reporting which peers answer with
RespPong within the timeout. This does not require the local node's
own coordinator to be running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadNodeConfig(cmd)
		if err != nil {
			return err
		}

		db, _, ca, err := openNodeSecurity(cfg, false)
		if err != nil {
			return fmt.Errorf("peers: %w", err)
		}
		defer db.Close()

		tlsConfig, err := buildTLSConfig(ca, cfg)
		if err != nil {
			return fmt.Errorf("peers: %w", err)
		}

		for _, p := range cfg.Peers {
			status := pingPeer(p.Addr, tlsConfig, cfg.NodeID)
			fmt.Printf("  %d @ %s: %s\n", p.PeerID, p.Addr, status)
		}
		return nil
	},
}

func loadNodeConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// pingPeer dials addr and sends a ReqPing, returning a short
// human-readable reachability status. Mirrors the one-shot request
// pattern pkg/cluster/coordinator.go uses for peerClient calls, but
// builds and tears down its own Client rather than reusing a
// long-lived one since the CLI process exits right after.
func pingPeer(addr string, tlsConfig *tls.Config, from types.PeerID) string {
	client := rpc.NewClient(addr, tlsConfig)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp := client.Call(ctx, rpc.Request{Kind: rpc.ReqPing, From: from})
	if resp.IsNone() {
		return "unreachable"
	}
	if resp.Kind == rpc.RespPong {
		return "reachable"
	}
	return fmt.Sprintf("unexpected response (kind %d)", resp.Kind)
}
