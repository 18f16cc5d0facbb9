package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quorumcontrol/ownable/nodebuilder"
)

var listenAddress string

// nodebuilderConfig loads --config, then the namespace's default config file,
// then falls back to an in-memory node.
func nodebuilderConfig() (*nodebuilder.Config, error) {
	path := cfgFile
	if path == "" {
		defaultPath := nodebuilder.DefaultConfigPath(configNamespace)
		if _, err := os.Stat(defaultPath); err == nil {
			path = defaultPath
		}
	}

	var (
		c   *nodebuilder.Config
		err error
	)
	if path == "" {
		c, err = nodebuilder.HumanConfigToConfig(nodebuilder.HumanConfig{Namespace: configNamespace})
	} else {
		c, err = nodebuilder.LoadConfig(path)
	}
	if err != nil {
		return nil, err
	}

	if listenAddress != "" {
		c.ListenAddress = listenAddress
	}
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	return c, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a node hosting owned entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		config, err := nodebuilderConfig()
		if err != nil {
			return fmt.Errorf("error getting node config: %v", err)
		}

		nb := &nodebuilder.NodeBuilder{Config: config}
		if err := nb.Start(ctx); err != nil {
			return fmt.Errorf("error starting node: %v", err)
		}
		fmt.Printf("Node running on %s\n", nb.Addr())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		return nb.Stop()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&listenAddress, "listen", "l", "", "address for the rpc server (overrides the config)")
}
