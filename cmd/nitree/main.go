// Command nitree maintains a nested-interval tree in a local badger or
// SQLite store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/suhasHere/nitree"
)

var (
	// Global flags
	configPath   string
	flagBackend  string
	flagPath     string
	flagRootMode string
	flagLogLevel string
	flagScope    string
	jsonOutput   bool

	// Command-specific
	insertParent int64
	moveParent   int64
	moveToRoot   bool
	exportOut    string
	exportFormat string
	vectorsOut   string
)

var rootCmd = &cobra.Command{
	Use:   "nitree",
	Short: "Maintain a nested-interval tree",
	Long: `Maintain a tree whose nodes are encoded as nested intervals on the
Stern-Brocot tree, so that ancestors, descendants and subtree moves are each
answered by a single query against the store.

Settings are read from --config (YAML) and can be overridden by flags.

Examples:
  nitree init --backend sqlite --path tree.db
  nitree insert
  nitree insert --parent 1
  nitree move 2 --parent 5
  nitree descendants 1 --json`,
	SilenceUsage: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the config file and create the store",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var insertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Append a node under --parent, or a new root",
	Args:  cobra.NoArgs,
	RunE:  runInsert,
}

var moveCmd = &cobra.Command{
	Use:   "move ID",
	Short: "Move a node and its subtree under --parent, or to the top with --root",
	Args:  cobra.ExactArgs(1),
	RunE:  runMove,
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a node without children",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var ancestorsCmd = &cobra.Command{
	Use:   "ancestors ID",
	Short: "List the ancestors of a node, nearest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runAncestors,
}

var descendantsCmd = &cobra.Command{
	Use:   "descendants ID",
	Short: "List the subtree below a node in preorder",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescendants,
}

var preorderCmd = &cobra.Command{
	Use:   "preorder",
	Short: "List every node of --scope in preorder",
	Args:  cobra.NoArgs,
	RunE:  runPreorder,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute every node's coordinates from parent links",
	Args:  cobra.NoArgs,
	RunE:  runRebuild,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every stored node against the interval invariants",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the whole collection as a binary snapshot or JSON",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var vectorsCmd = &cobra.Command{
	Use:   "vectors",
	Short: "Generate test vectors into --out",
	Args:  cobra.NoArgs,
	RunE:  runVectors,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "nitree.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "store backend: badger or sqlite")
	rootCmd.PersistentFlags().StringVar(&flagPath, "path", "", "badger directory or SQLite file")
	rootCmd.PersistentFlags().StringVar(&flagRootMode, "root-mode", "", "single or virtual")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "zerolog level")
	rootCmd.PersistentFlags().StringVar(&flagScope, "scope", "", "tree family to operate on")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON")

	insertCmd.Flags().Int64Var(&insertParent, "parent", 0, "parent node ID (0 for a root)")
	moveCmd.Flags().Int64Var(&moveParent, "parent", 0, "new parent node ID")
	moveCmd.Flags().BoolVar(&moveToRoot, "root", false, "make the node a root")
	exportCmd.Flags().StringVar(&exportOut, "out", "-", "output file, - for stdout")
	exportCmd.Flags().StringVar(&exportFormat, "format", "binary", "binary or json")
	vectorsCmd.Flags().StringVar(&vectorsOut, "out", ".", "output directory")

	rootCmd.AddCommand(initCmd, insertCmd, moveCmd, deleteCmd)
	rootCmd.AddCommand(ancestorsCmd, descendantsCmd, preorderCmd)
	rootCmd.AddCommand(rebuildCmd, verifyCmd, exportCmd, vectorsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// settings returns the config file with flag overrides applied.
func settings(cmd *cobra.Command) (FileConfig, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return FileConfig{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = flagBackend
	}
	if flags.Changed("path") {
		cfg.Path = flagPath
	}
	if flags.Changed("root-mode") {
		cfg.RootMode = flagRootMode
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	return cfg, nil
}

// withTree opens the configured tree around fn.
func withTree(cmd *cobra.Command, fn func(ctx context.Context, tree *nitree.Tree) error) error {
	cfg, err := settings(cmd)
	if err != nil {
		return err
	}
	tree, closer, err := cfg.openTree()
	if err != nil {
		return err
	}
	defer closer.Close()

	return fn(cmd.Context(), tree)
}

func parseID(arg string) (nitree.NodeID, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid node id %q", arg)
	}
	return nitree.NodeID(id), nil
}

func optionalID(id int64) *nitree.NodeID {
	if id == 0 {
		return nil
	}
	n := nitree.NodeID(id)
	return &n
}

type nodeView struct {
	ID     nitree.NodeID   `json:"id"`
	Parent *nitree.NodeID  `json:"parent,omitempty"`
	Scope  string          `json:"scope,omitempty"`
	Left   nitree.Fraction `json:"left"`
	Right  nitree.Fraction `json:"right"`
}

func printNodes(w io.Writer, nodes ...nitree.Node) error {
	if jsonOutput {
		views := make([]nodeView, len(nodes))
		for i, n := range nodes {
			views[i] = nodeView{n.ID, n.Parent, n.Scope, n.Left, n.Right}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	for _, n := range nodes {
		fmt.Fprintln(w, n)
	}
	return nil
}
