package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/colorfulnotion/cloudop/common"
	"github.com/colorfulnotion/cloudop/config"
	"github.com/colorfulnotion/cloudop/log"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/colorfulnotion/cloudop/rollback"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"
)

type globalFlags struct {
	configPath string
	nodeRoot   string
	logLevel   string
	debug      string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "cloudop",
		Short:         "Offline rollback and backup tool for chain nodes",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := log.InitLogger(g.logLevel); err != nil {
				return fmt.Errorf("%v: %w", err, operrors.ErrConfig)
			}
			log.EnableModules(g.debug)
			return nil
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "config.toml", "node config file, relative to the node root")
	pf.StringVarP(&g.nodeRoot, "node-root", "n", ".", "node directory")
	pf.StringVar(&g.logLevel, "log-level", "info", "trace, debug, info, warn, error or crit")
	pf.StringVar(&g.debug, "debug", "", "comma separated modules to log at debug level")

	rootCmd.AddCommand(
		newRollbackCmd(g),
		newCloudRollbackCmd(g),
		newRecoverCmd(g),
		newBackupCmd(g),
		newExportCmd(g),
		newStatusCmd(g),
	)
	return rootCmd
}

// open reads the node config and opens a coordinator over the node directory.
func (g *globalFlags) open() (*rollback.Coordinator, error) {
	path := g.configPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.nodeRoot, path)
	}
	cfg, err := config.Read(path, g.nodeRoot)
	if err != nil {
		return nil, err
	}
	return rollback.Open(cfg)
}

func (g *globalFlags) run(cmd *cobra.Command, fn func(ctx context.Context, c *rollback.Coordinator) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	c, err := g.open()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func parseHeight(s string) (uint64, error) {
	h, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("height %q: %v: %w", s, err, operrors.ErrConfig)
	}
	return h, nil
}

func printReport(w io.Writer, r *rollback.Report) {
	fmt.Fprintf(w, "run %s\n", r.RunID)
	fmt.Fprintf(w, "  before: %s\n", r.Before)
	fmt.Fprintf(w, "  after:  %s\n", r.After)
	for _, o := range r.Locks {
		fmt.Fprintf(w, "  lock %d: %s hops=%d tx=%s\n", o.LockID, o.Action, o.Hops, common.Bytes2Hex(o.TxHash))
	}
	if r.StateInstalled {
		fmt.Fprintf(w, "  executor state installed from snapshot\n")
	}
}

func newRollbackCmd(g *globalFlags) *cobra.Command {
	var opts rollback.Options
	cmd := &cobra.Command{
		Use:   "rollback <height>",
		Short: "Roll the node back to height",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := parseHeight(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, c *rollback.Coordinator) error {
				r, err := c.Rollback(ctx, h, opts)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.CleanConsensusData, "clean-consensus-data", false, "also remove the consensus wal dirs")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "accept the current height to finish an interrupted rollback")
	return cmd
}

func newCloudRollbackCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cloud-rollback <backup_height>",
		Short: "Restart cloud backup after backup_height",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := parseHeight(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, c *rollback.Coordinator) error {
				return c.CloudRollback(ctx, h)
			})
		},
	}
}

func newRecoverCmd(g *globalFlags) *cobra.Command {
	var opts rollback.Options
	cmd := &cobra.Command{
		Use:   "recover <height>",
		Short: "Roll the node back to height, taking the executor state from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := parseHeight(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, c *rollback.Coordinator) error {
				r, err := c.Rollback(ctx, h, opts)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&opts.StateSnapshotRoot, "path", "p", "backup", "backup root holding <height>/data/statedb")
	cmd.Flags().BoolVar(&opts.CleanConsensusData, "clean-consensus-data", false, "also remove the consensus wal dirs")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "accept the current height to finish an interrupted recover")
	return cmd
}

func newBackupCmd(g *globalFlags) *cobra.Command {
	var (
		path       string
		height     uint64
		exportData bool
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a self-contained backup of the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var h *uint64
			if cmd.Flags().Changed("height") {
				h = &height
			}
			return g.run(cmd, func(ctx context.Context, c *rollback.Coordinator) error {
				m, err := c.Backup(ctx, path, h, exportData)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s backup %s at height %d in %s\n", m.Mode, m.RunID, m.Height, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "backup", "backup root")
	cmd.Flags().Uint64Var(&height, "height", 0, "backup height, the current height when unset")
	cmd.Flags().BoolVar(&exportData, "export", false, "extract the state and replay blocks instead of copying dirs")
	return cmd
}

func newExportCmd(g *globalFlags) *cobra.Command {
	var (
		path       string
		begin, end uint64
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the state at end and blocks begin..end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *rollback.Coordinator) error {
				m, err := c.Export(ctx, path, begin, end)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "export %s of blocks %d..%d in %s\n", m.RunID, m.Begin, m.Height, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "export", "export root")
	cmd.Flags().Uint64VarP(&begin, "begin", "b", 0, "first block")
	cmd.Flags().Uint64VarP(&end, "end", "e", 0, "last block")
	cmd.MarkFlagRequired("end")
	return cmd
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the ledger and every lock slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *rollback.Coordinator) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), statusTree(st).String())
				return nil
			})
		},
	}
}

func statusTree(st *rollback.Status) treeprint.Tree {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("%s backend", st.Kind))
	ledger := tree.AddBranch("ledger")
	ledger.AddNode(fmt.Sprintf("height: %d", st.Record.Height))
	if st.Record.Hash != nil {
		ledger.AddNode("hash: " + common.Bytes2Hex(st.Record.Hash))
	}
	if st.Record.HasWatermark {
		ledger.AddNode(fmt.Sprintf("delete height: %d", st.Record.Watermark))
	}
	if st.Backup != nil {
		ledger.AddNode(fmt.Sprintf("backup pointer: %d (index %d)", st.Backup.Height, st.Backup.Index))
	}
	locks := tree.AddBranch("locks")
	for _, l := range st.Locks {
		if !l.Present {
			locks.AddNode(fmt.Sprintf("%d: -", l.LockID))
			continue
		}
		locks.AddNode(fmt.Sprintf("%d: %s", l.LockID, common.Bytes2Hex(l.Value)))
	}
	return tree
}
