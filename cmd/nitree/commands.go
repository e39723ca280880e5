package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/suhasHere/nitree"
	vectors "github.com/suhasHere/nitree/test-vectors"
)

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := settings(cmd)
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeConfig(configPath, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
	}

	log, err := cfg.logger()
	if err != nil {
		return err
	}
	store, err := cfg.openStore(log)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s store ready at %s\n", cfg.Backend, cfg.Path)
	return store.Close()
}

func runInsert(cmd *cobra.Command, args []string) error {
	return withTree(cmd, func(ctx context.Context, tree *nitree.Tree) error {
		n, err := tree.Insert(ctx, flagScope, optionalID(insertParent))
		if err != nil {
			return err
		}
		return printNodes(cmd.OutOrStdout(), n)
	})
}

func runMove(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if moveToRoot == (moveParent != 0) {
		return fmt.Errorf("exactly one of --parent and --root is required")
	}

	return withTree(cmd, func(ctx context.Context, tree *nitree.Tree) error {
		n, err := tree.Move(ctx, id, optionalID(moveParent))
		if err != nil {
			return err
		}
		return printNodes(cmd.OutOrStdout(), n)
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withTree(cmd, func(ctx context.Context, tree *nitree.Tree) error {
		return tree.Delete(ctx, id)
	})
}

func runAncestors(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withTree(cmd, func(ctx context.Context, tree *nitree.Tree) error {
		nodes, err := tree.Ancestors(ctx, id)
		if err != nil {
			return err
		}
		return printNodes(cmd.OutOrStdout(), nodes...)
	})
}

func runDescendants(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withTree(cmd, func(ctx context.Context, tree *nitree.Tree) error {
		nodes, err := tree.Descendants(ctx, id)
		if err != nil {
			return err
		}
		return printNodes(cmd.OutOrStdout(), nodes...)
	})
}

func runPreorder(cmd *cobra.Command, args []string) error {
	return withTree(cmd, func(ctx context.Context, tree *nitree.Tree) error {
		nodes, err := tree.Preorder(ctx, flagScope)
		if err != nil {
			return err
		}
		return printNodes(cmd.OutOrStdout(), nodes...)
	})
}

func runRebuild(cmd *cobra.Command, args []string) error {
	return withTree(cmd, func(ctx context.Context, tree *nitree.Tree) error {
		report, err := tree.Rebuild(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "assigned %d nodes, changed=%v\n", report.Assigned, report.Changed())
		fmt.Fprintf(out, "before %s\nafter  %s\n", report.Before, report.After)
		if report.Failures != nil {
			fmt.Fprintln(out, report.Failures)
			return fmt.Errorf("some nodes could not be placed")
		}
		return nil
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	return withTree(cmd, func(ctx context.Context, tree *nitree.Tree) error {
		err := tree.Verify(ctx)
		if merr, ok := err.(*multierror.Error); ok {
			fmt.Fprintln(cmd.OutOrStdout(), merr)
			return fmt.Errorf("%d problems found", len(merr.Errors))
		}
		if err != nil {
			return err
		}

		fp, err := tree.Fingerprint(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", fp)
		return nil
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	return withTree(cmd, func(ctx context.Context, tree *nitree.Tree) error {
		data, err := tree.Snapshot(ctx)
		if err != nil {
			return err
		}

		switch exportFormat {
		case "binary":
		case "json":
			nodes, err := nitree.ReadSnapshot(data)
			if err != nil {
				return err
			}
			if data, err = json.MarshalIndent(nodes, "", "  "); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown format %q", exportFormat)
		}

		if exportOut == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return os.WriteFile(exportOut, data, 0644)
	})
}

func runVectors(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(vectorsOut, 0755); err != nil {
		return err
	}

	modInv, err := vectors.NewModInverse(97)
	if err != nil {
		return err
	}
	alloc, err := vectors.NewAllocation(nitree.SingleRoot, []int{-1, 0, 1, 1, 0})
	if err != nil {
		return err
	}
	anc, err := vectors.NewAncestry(alloc.Lefts)
	if err != nil {
		return err
	}
	pacific := alloc.Lefts[4]
	move, err := vectors.NewMove(nitree.SingleRoot, alloc.Lefts[1], &pacific, nil, alloc.Lefts[2:4])
	if err != nil {
		return err
	}

	files := map[string]interface{}{
		"mod_inverse.json": []vectors.ModInverse{modInv},
		"allocation.json":  []vectors.Allocation{alloc},
		"ancestry.json":    anc,
		"move.json":        []vectors.Move{move},
	}
	for name, vec := range files {
		data, err := json.MarshalIndent(vec, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(vectorsOut, name), data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", filepath.Join(vectorsOut, name))
	}
	return nil
}
