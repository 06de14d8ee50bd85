package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cuemby/shardmail/pkg/cluster"
	"github.com/cuemby/shardmail/pkg/config"
	"github.com/cuemby/shardmail/pkg/metrics"
	"github.com/cuemby/shardmail/pkg/raftlog"
	"github.com/cuemby/shardmail/pkg/security"
	"github.com/cuemby/shardmail/pkg/service"
	"github.com/cuemby/shardmail/pkg/storage"
	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"
)

// node bundles the long-lived handles a running shardmaild process holds,
// mirroring the teacher's cluster.Manager/scheduler/reconciler bundle in
// cmd/warren/main.go's clusterInitCmd, adapted to this domain's
// coordinator/storage/CA/metrics set.
type node struct {
	cfg       *config.Config
	db        *bolt.DB
	store     storage.Store
	raftLog   *raftlog.Store
	ca        *security.CertAuthority
	coord     *cluster.Coordinator
	collector *metrics.Collector
}

// openNodeSecurity opens the node's database and storage, installs the
// cluster's at-rest encryption key, and loads or initializes its CA,
// without touching the raft log or binding any listener. Used both by
// startNode and by CLI commands (status, peers) that only need this
// node's CA or to dial out as this node's identity.
func openNodeSecurity(cfg *config.Config, bootstrap bool) (*bolt.DB, storage.Store, *security.CertAuthority, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := bolt.Open(filepath.Join(cfg.DataDir, "shardmail.db"), 0600, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}

	store, err := storage.NewBoltStoreFromDB(db)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("open storage: %w", err)
	}

	if err := security.SetClusterEncryptionKey(security.DeriveKeyFromClusterID(cfg.ClusterID)); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("install cluster encryption key: %w", err)
	}

	ca := security.NewCertAuthority(store)
	if bootstrap {
		if err := ca.Initialize(); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("initialize CA: %w", err)
		}
		if err := ca.SaveToStore(); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("save CA: %w", err)
		}
	} else {
		if err := ca.LoadFromStore(); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("load CA: %w (copy the bootstrap node's CA into this node's data dir first)", err)
		}
	}

	return db, store, ca, nil
}

// startNode opens the node's on-disk state, a CA (initializing one fresh
// only if bootstrap is true), and wires a cluster.Coordinator around it.
// Run must be called to actually start the coordinator's background
// loops.
func startNode(cfg *config.Config, bootstrap bool) (*node, error) {
	db, store, ca, err := openNodeSecurity(cfg, bootstrap)
	if err != nil {
		return nil, err
	}

	raftLog, err := raftlog.Open(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open raft log: %w", err)
	}

	tlsConfig, err := buildTLSConfig(ca, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build tls config: %w", err)
	}

	preparer := service.NewPreparer(store)
	applyEntries := newApplyEntries(store)

	coord, err := cluster.NewCoordinator(cluster.Config{
		NodeID:               cfg.NodeID,
		ShardID:              cfg.ShardID,
		BindAddr:             cfg.BindAddr,
		Peers:                cfg.ToPeers(),
		TLSConfig:            tlsConfig,
		PrepareChanges:       preparer.PrepareChanges,
		PrepareBlobs:         preparer.PrepareBlobs,
		ApplyEntries:         applyEntries,
		WorkerPoolSize:       cfg.WorkerPoolSize,
		ElectionPollInterval: cfg.ElectionPollInterval,
	}, raftLog)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	return &node{
		cfg:     cfg,
		db:      db,
		store:   store,
		raftLog: raftLog,
		ca:      ca,
		coord:   coord,
	}, nil
}

// buildTLSConfig issues this node a cert from ca and builds a mutual-TLS
// config trusting only the cluster's own root, satisfying spec.md §5's
// "authenticated channels" assumption.
func buildTLSConfig(ca *security.CertAuthority, cfg *config.Config) (*tls.Config, error) {
	nodeID := fmt.Sprintf("%d", cfg.NodeID)
	cert, err := ca.IssueNodeCertificate(nodeID, "peer", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("issue node certificate: %w", err)
	}

	rootCert, err := x509.ParseCertificate(ca.GetRootCACert())
	if err != nil {
		return nil, fmt.Errorf("parse root CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(rootCert)

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      pool,
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// run starts the coordinator, the metrics collector, and the metrics/
// health HTTP server, then blocks until an interrupt signal arrives.
func (n *node) run(cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go n.coord.Run(ctx)

	n.collector = metrics.NewCollector(n.coord)
	n.collector.Start()
	metrics.SetVersion(versionString())
	metrics.RegisterComponent("raftlog", true, "opened")
	metrics.RegisterComponent("cluster", true, "running")
	metrics.RegisterComponent("rpc", n.cfg.BindAddr != "", "listening")

	if n.cfg.MetricsAddr != "" {
		go serveMetrics(n.cfg.MetricsAddr)
	}

	fmt.Printf("shardmaild node %d running (shard %d, bind %s)\n", n.cfg.NodeID, n.cfg.ShardID, n.cfg.BindAddr)
	fmt.Println("Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	n.collector.Stop()
	cancel()
	time.Sleep(100 * time.Millisecond) // let Run's deferred broker Stop settle
	return n.db.Close()
}

const version = "0.1.0"

func versionString() string { return version }
