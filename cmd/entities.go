package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/quorumcontrol/ownable/capability"
	"github.com/quorumcontrol/ownable/eventlog"
	"github.com/quorumcontrol/ownable/ownership"
	"github.com/quorumcontrol/ownable/rpcserver"
)

var (
	fromAddress   string
	privateKeyHex string
	initialOwner  string
	previousOwner string
	newOwner      string
	callTimeout   time.Duration
)

func apiClient() *rpcserver.Client {
	return rpcserver.NewClient(apiAddress, nil)
}

func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout)
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a new entity; the creator owns it unless --owner is given",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creator, err := callerIdentity(fromAddress, privateKeyHex)
		if err != nil {
			return err
		}
		owner := creator
		if initialOwner != "" {
			if owner, err = parseIdentity(initialOwner); err != nil {
				return err
			}
		}

		ctx, cancel := callContext()
		defer cancel()
		addr, err := apiClient().Deploy(ctx, creator, owner)
		if err != nil {
			return err
		}
		return printJSON(&rpcserver.DeployResponse{Address: addr.Hex()})
	},
}

var ownerCmd = &cobra.Command{
	Use:   "owner [entity]",
	Short: "Print the current owner of an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, err := parseIdentity(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := callContext()
		defer cancel()
		owner, err := apiClient().Owner(ctx, entity)
		if err != nil {
			return err
		}
		return printJSON(&rpcserver.OwnerResponse{Owner: owner.Hex(), Owned: owner != ownership.Zero})
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer [entity] [new owner]",
	Short: "Transfer ownership of an entity; only its current owner can",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, err := parseIdentity(args[0])
		if err != nil {
			return err
		}
		to, err := parseIdentity(args[1])
		if err != nil {
			return err
		}
		caller, err := callerIdentity(fromAddress, privateKeyHex)
		if err != nil {
			return err
		}

		ctx, cancel := callContext()
		defer cancel()
		if err := apiClient().TransferOwnership(ctx, entity, caller, to); err != nil {
			return err
		}
		return printJSON(&rpcserver.OwnerResponse{Owner: to.Hex(), Owned: to != ownership.Zero})
	},
}

var renounceCmd = &cobra.Command{
	Use:   "renounce [entity]",
	Short: "Give up ownership of an entity for good",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, err := parseIdentity(args[0])
		if err != nil {
			return err
		}
		caller, err := callerIdentity(fromAddress, privateKeyHex)
		if err != nil {
			return err
		}

		ctx, cancel := callContext()
		defer cancel()
		if err := apiClient().RenounceOwnership(ctx, entity, caller); err != nil {
			return err
		}
		return printJSON(&rpcserver.OwnerResponse{Owner: ownership.Zero.Hex(), Owned: false})
	},
}

var supportsCmd = &cobra.Command{
	Use:   "supports [entity] [interface id]",
	Short: "Check whether an entity supports an ERC-165 interface id (eg 0x7f5828d0)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, err := parseIdentity(args[0])
		if err != nil {
			return err
		}
		id, err := capability.ParseInterfaceID(args[1])
		if err != nil {
			return err
		}

		ctx, cancel := callContext()
		defer cancel()
		supported, err := apiClient().SupportsInterface(ctx, entity, id)
		if err != nil {
			return err
		}
		return printJSON(&rpcserver.SupportsResponse{InterfaceID: id.String(), Supported: supported})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [entity]",
	Short: "Print the OwnershipTransferred events of an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, err := parseIdentity(args[0])
		if err != nil {
			return err
		}

		filter := eventlog.Filter{}
		if previousOwner != "" {
			id, err := parseIdentity(previousOwner)
			if err != nil {
				return err
			}
			filter.PreviousOwner = &id
		}
		if newOwner != "" {
			id, err := parseIdentity(newOwner)
			if err != nil {
				return err
			}
			filter.NewOwner = &id
		}

		ctx, cancel := callContext()
		defer cancel()
		events, err := apiClient().History(ctx, entity, filter)
		if err != nil {
			return err
		}
		return printJSON(&rpcserver.EventsResponse{Topic: ownership.EventTopic.Hex(), Events: events})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every entity the node hosts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := callContext()
		defer cancel()
		entities, err := apiClient().Entities(ctx)
		if err != nil {
			return err
		}
		resp := &rpcserver.EntitiesResponse{Entities: make([]string, len(entities))}
		for i, e := range entities {
			resp.Entities[i] = e.Hex()
		}
		return printJSON(resp)
	},
}

func init() {
	for _, c := range []*cobra.Command{deployCmd, transferCmd, renounceCmd} {
		c.Flags().StringVarP(&fromAddress, "from", "f", "", "address to act as")
		c.Flags().StringVarP(&privateKeyHex, "key", "k", "", "hex private key to act as (overrides --from)")
	}
	deployCmd.Flags().StringVarP(&initialOwner, "owner", "o", "", "initial owner, defaults to the creator")
	historyCmd.Flags().StringVar(&previousOwner, "previous-owner", "", "only events transferring away from this address")
	historyCmd.Flags().StringVar(&newOwner, "new-owner", "", "only events transferring to this address")

	for _, c := range []*cobra.Command{deployCmd, ownerCmd, transferCmd, renounceCmd, supportsCmd, historyCmd, listCmd} {
		c.Flags().DurationVarP(&callTimeout, "timeout", "t", 10*time.Second, "how long to wait for the node")
		rootCmd.AddCommand(c)
	}
}
