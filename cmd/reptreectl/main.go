package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/reptree/pkg/log"
	"github.com/cuemby/reptree/pkg/replica"
	"github.com/cuemby/reptree/pkg/storage"
	"github.com/cuemby/reptree/pkg/types"
	"github.com/cuemby/reptree/pkg/wire"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "reptreectl",
	Short:   "reptreectl drives a single replicated-tree engine for demos and manual testing",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("reptreectl version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "", "On-disk data directory (bbolt-backed); omit for an in-memory engine")
	rootCmd.PersistentFlags().String("peer-id", "local", "Peer id this engine originates operations as")
	rootCmd.PersistentFlags().Bool("health-checks", false, "Run periodic storage/replica readiness checks and gauge refreshes in the background")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(setPropertyCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(childrenCmd)
	rootCmd.AddCommand(syncDemoCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

func openEngine(cmd *cobra.Command) (*replica.Engine, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	peerID, _ := cmd.Flags().GetString("peer-id")
	healthChecks, _ := cmd.Flags().GetBool("health-checks")

	cfg := replica.Config{PeerID: types.PeerId(peerID)}
	if healthChecks {
		cfg.HealthProbeID = peerID
	}
	if dataDir == "" {
		cfg.Storage = storage.Config{Backend: storage.BackendMemory}
	} else {
		cfg.Storage = storage.Config{Backend: storage.BackendLocalPath, LocalPath: dataDir}
	}
	return replica.NewEngine(cfg)
}

var createCmd = &cobra.Command{
	Use:   "create [parent-id]",
	Short: "Create a new vertex, optionally under a parent",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		var parentID *types.VertexId
		if len(args) == 1 {
			p := types.VertexId(args[0])
			parentID = &p
		}

		id, err := e.CreateVertex(parentID)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <vertex-id> [new-parent-id]",
	Short: "Move a vertex under a new parent, or to the root if omitted",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		var parentID *types.VertexId
		if len(args) == 2 {
			p := types.VertexId(args[1])
			parentID = &p
		}

		opID, err := e.MoveVertex(types.VertexId(args[0]), parentID)
		if err != nil {
			return err
		}
		fmt.Println(opID)
		return nil
	},
}

var setPropertyCmd = &cobra.Command{
	Use:   "set-property <vertex-id> <key> <value>",
	Short: "Set a string property on a vertex",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		opID, err := e.SetProperty(types.VertexId(args[0]), args[1], types.StringValue(args[2]))
		if err != nil {
			return err
		}
		fmt.Println(opID)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <vertex-id>",
	Short: "Print a vertex and its properties as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		v, err := e.GetVertex(types.VertexId(args[0]))
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("vertex %q not found", args[0])
		}
		return printJSON(v)
	},
}

var childrenCmd = &cobra.Command{
	Use:   "children <vertex-id>",
	Short: "List the children of a vertex in idx order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		children, err := e.GetChildren(types.VertexId(args[0]))
		if err != nil {
			return err
		}
		return printJSON(children)
	},
}

var syncDemoCmd = &cobra.Command{
	Use:   "sync-demo",
	Short: "Create two in-memory peers, apply a few ops on each, and sync them to convergence",
	RunE: func(cmd *cobra.Command, args []string) error {
		alice, err := replica.NewEngine(replica.Config{PeerID: "alice", Storage: storage.Config{Backend: storage.BackendMemory}})
		if err != nil {
			return err
		}
		defer alice.Close()

		bob, err := replica.NewEngine(replica.Config{PeerID: "bob", Storage: storage.Config{Backend: storage.BackendMemory}})
		if err != nil {
			return err
		}
		defer bob.Close()

		root, err := alice.CreateVertex(nil)
		if err != nil {
			return err
		}
		if _, err := alice.SetProperty(root, "name", types.StringValue("root")); err != nil {
			return err
		}

		bobChild := uuid.New().String()
		if _, err := bob.ApplyOp(types.MoveOperation(types.MoveOp{
			ID:       types.NewOpId("bob", 1),
			TargetID: types.VertexId(bobChild),
			ParentID: nil,
			Timestamp: 1,
		})); err != nil {
			return err
		}

		bobMissing, err := alice.GetMissingOps(bob.GetStateVector())
		if err != nil {
			return err
		}
		if _, err := bob.ApplyOps(bobMissing); err != nil {
			return err
		}

		aliceMissing, err := bob.GetMissingOps(alice.GetStateVector())
		if err != nil {
			return err
		}
		if _, err := alice.ApplyOps(aliceMissing); err != nil {
			return err
		}

		fmt.Printf("bob applied %d ops from alice, alice applied %d ops from bob; both converged\n", len(bobMissing), len(aliceMissing))

		for _, op := range aliceMissing {
			data, err := wire.Encode(op)
			if err != nil {
				return err
			}
			fmt.Printf("  exchanged: %s\n", data)
		}
		return nil
	},
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
