package nodebuilder

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	datastore "github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log"
	"github.com/shibukawa/configdir"

	"github.com/quorumcontrol/ownable/ledger"
	"github.com/quorumcontrol/ownable/proxy"
	"github.com/quorumcontrol/ownable/rpcserver"
	"github.com/quorumcontrol/ownable/tracing"
)

var logger = logging.Logger("nodebuilder")

// NodeBuilder assembles a running node out of a Config: storage, the ledger
// and, when a listen address is set, the rpc server.
type NodeBuilder struct {
	Config *Config

	ds       datastore.Batching
	ledger   *ledger.Ledger
	server   *rpcserver.Server
	listener net.Listener

	// stopServing ends the rpc server and the tls proxy, served is closed
	// once the rpc server has finished its in-flight requests
	stopServing context.CancelFunc
	served      chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func (nb *NodeBuilder) Ledger() *ledger.Ledger {
	return nb.ledger
}

// Addr is the address the rpc server is bound to, nil if it isn't running.
func (nb *NodeBuilder) Addr() net.Addr {
	if nb.listener == nil {
		return nil
	}
	return nb.listener.Addr()
}

func (nb *NodeBuilder) Start(ctx context.Context) error {
	err := nb.configAssertions()
	if err != nil {
		return err
	}

	if err := tracing.Start(nb.Config.TracingSystem, "ownable-"+nb.Config.Namespace); err != nil {
		return fmt.Errorf("error starting tracing: %w", err)
	}

	ds, err := nb.Config.Storage.ToDatastore("ledger") // defaults to memory
	if err != nil {
		return fmt.Errorf("error converting to datastore: %w", err)
	}
	nb.ds = ds

	l, err := ledger.New(&ledger.NewLedgerOptions{
		Datastore:    ds,
		Name:         "ledger-" + nb.Config.Namespace,
		CacheSize:    nb.Config.CacheSize,
		Timeout:      nb.Config.Timeout,
		Capabilities: nb.Config.Capabilities,
	})
	if err != nil {
		return fmt.Errorf("error creating ledger: %w", err)
	}
	// Stop decides when the ledger goes away, not ctx, so that it outlives
	// the requests the rpc server is still finishing
	if err := l.Start(context.Background()); err != nil {
		return fmt.Errorf("error starting ledger: %w", err)
	}
	nb.ledger = l

	if nb.Config.ListenAddress == "" {
		logger.Debug("no listen address, rpc server disabled")
		nb.stopWhenDone(ctx)
		return nil
	}

	ln, err := net.Listen("tcp", nb.Config.ListenAddress)
	if err != nil {
		if stopErr := nb.Stop(); stopErr != nil {
			logger.Errorf("error stopping: %v", stopErr)
		}
		return fmt.Errorf("error listening on %s: %w", nb.Config.ListenAddress, err)
	}
	nb.listener = ln
	nb.server = rpcserver.NewServer(l)

	serveCtx, stopServing := context.WithCancel(ctx)
	nb.stopServing = stopServing
	nb.served = make(chan struct{})
	go func() {
		defer close(nb.served)
		if err := nb.server.Serve(serveCtx, ln); err != nil {
			logger.Errorf("rpc server exited: %v", err)
		}
	}()

	if nb.Config.TLSDomain != "" {
		tlsProxy := &proxy.Server{
			BindDomain:    nb.Config.TLSDomain,
			CertDirectory: nb.Config.CertDirectory,
			Backend:       proxy.Backend{Addr: ln.Addr().String()},
		}
		go func() {
			if err := tlsProxy.Run(serveCtx); err != nil {
				logger.Errorf("tls proxy exited: %v", err)
			}
		}()
	}
	nb.stopWhenDone(ctx)
	return nil
}

func (nb *NodeBuilder) stopWhenDone(ctx context.Context) {
	go func() {
		<-ctx.Done()
		if err := nb.Stop(); err != nil {
			logger.Errorf("error stopping: %v", err)
		}
	}()
}

// Stop is also called when the context passed to Start is done. It stops
// taking requests first, then lets the ledger finish the ones it has, and
// only then closes storage.
func (nb *NodeBuilder) Stop() error {
	nb.stopOnce.Do(func() {
		if nb.stopServing != nil {
			nb.stopServing()
			<-nb.served
		}
		if nb.ledger != nil {
			nb.ledger.Stop()
		}
		tracing.Stop()
		if nb.ds != nil {
			nb.stopErr = nb.ds.Close()
		}
	})
	return nb.stopErr
}

func (nb *NodeBuilder) configAssertions() error {
	conf := nb.Config
	if conf == nil {
		return fmt.Errorf("error: a Config is required")
	}
	if conf.Namespace == "" {
		return fmt.Errorf("error: must specify a Namespace")
	}
	if conf.TLSDomain != "" && conf.ListenAddress == "" {
		return fmt.Errorf("error: TLSDomain needs a ListenAddress to forward to")
	}
	if conf.CacheSize < 0 {
		return fmt.Errorf("error: CacheSize must not be negative")
	}
	return nil
}

// DefaultConfigPath is where the cli looks for a config when none is given.
func DefaultConfigPath(namespace string) string {
	return filepath.Join(configDir(namespace), "config.toml")
}

func configDir(namespace string) string {
	conf := configdir.New("quorumcontrol", filepath.Join("ownable", namespace))
	folders := conf.QueryFolders(configdir.Global)
	if err := os.MkdirAll(folders[0].Path, 0700); err != nil {
		panic(err)
	}
	return folders[0].Path
}
