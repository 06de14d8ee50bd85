package cluster

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/cuemby/shardmail/pkg/errs"
	"github.com/cuemby/shardmail/pkg/log"
	"github.com/cuemby/shardmail/pkg/rpc"
)

// Serve binds cfg.BindAddr and accepts peer connections until ctx is
// cancelled, handing each one to rpc.ServeConn with HandleRequest as the
// dispatch target. One call per node process; spec.md §6's "framed over a
// TCP connection per peer" is symmetric -- the same Request/Response
// vocabulary flows whichever side dialed.
func (c *Coordinator) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.cfg.BindAddr)
	if err != nil {
		return errs.NewInternal("cluster.Serve: listen", err)
	}
	if c.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, c.cfg.TLSConfig)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errs.NewInternal("cluster.Serve: accept", err)
			}
		}
		go func() {
			if err := rpc.ServeConn(conn, c.HandleRequest); err != nil {
				log.Errorf("cluster: peer connection ended", err)
			}
		}()
	}
}
