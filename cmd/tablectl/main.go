// cmd/tablectl is the CLI client for a tablecrdt node, built with Cobra.
//
// Usage:
//
//	tablectl set users alice name --str Alice          --server http://localhost:8080
//	tablectl get users alice name                       --server http://localhost:8080
//	tablectl del users alice name                       --server http://localhost:8080
//	tablectl del-row users alice                        --server http://localhost:8080
//	tablectl del-table users                            --server http://localhost:8080
//	tablectl version                                    --server http://localhost:8080
//	tablectl export-snapshot > backup.bin               --server http://localhost:8080
//	tablectl import-snapshot < backup.bin               --server http://localhost:8080
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tablecrdt/internal/client"
	"tablecrdt/internal/crdt"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "tablectl",
		Short: "CLI client for a tablecrdt node",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "tablecrdt node address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(
		setCmd(), getCmd(), delCmd(), delRowCmd(), delTableCmd(), versionCmd(),
		exportSnapshotCmd(), importSnapshotCmd(), exportDeltaCmd(), importDeltaCmd(),
		clusterCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── value flags shared by set ────────────────────────────────────────────────

type valueFlags struct {
	str    string
	i64    int64
	f64    float64
	isTrue bool
	isFalse bool
	isNull bool
}

func (f *valueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.str, "str", "", "write a string value")
	cmd.Flags().Int64Var(&f.i64, "i64", 0, "write an integer value")
	cmd.Flags().Float64Var(&f.f64, "f64", 0, "write a floating-point value")
	cmd.Flags().BoolVar(&f.isTrue, "true", false, "write the boolean true")
	cmd.Flags().BoolVar(&f.isFalse, "false", false, "write the boolean false")
	cmd.Flags().BoolVar(&f.isNull, "null", false, "write null")
}

func (f *valueFlags) resolve(cmd *cobra.Command) (crdt.Value, error) {
	switch {
	case cmd.Flags().Changed("str"):
		return crdt.Str(f.str), nil
	case cmd.Flags().Changed("i64"):
		return crdt.I64(f.i64), nil
	case cmd.Flags().Changed("f64"):
		return crdt.Double(f.f64), nil
	case f.isTrue:
		return crdt.True, nil
	case f.isFalse:
		return crdt.False, nil
	case f.isNull:
		return crdt.Null, nil
	default:
		return crdt.Value{}, fmt.Errorf("one of --str, --i64, --f64, --true, --false, --null is required")
	}
}

// ─── set ──────────────────────────────────────────────────────────────────────

func setCmd() *cobra.Command {
	var vf valueFlags
	cmd := &cobra.Command{
		Use:   "set <table> <row> <col>",
		Short: "Write a cell value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := vf.resolve(cmd)
			if err != nil {
				return err
			}
			c := client.New(serverAddr, timeout)
			result, err := c.Set(context.Background(), args[0], args[1], args[2], value)
			if err != nil {
				return err
			}
			fmt.Printf("ok (lamport=%d peer=%d)\n", result.Lamport, result.Peer)
			return nil
		},
	}
	vf.register(cmd)
	return cmd
}

// ─── get ──────────────────────────────────────────────────────────────────────

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <row> <col>",
		Short: "Read a cell value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			value, err := c.Get(context.Background(), args[0], args[1], args[2])
			if err == client.ErrNotFound {
				fmt.Println("cell not found")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println(value.String())
			return nil
		},
	}
}

// ─── del / del-row / del-table ────────────────────────────────────────────────

func delCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del <table> <row> <col>",
		Short: "Delete a cell",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			_, err := c.Delete(context.Background(), args[0], args[1], args[2])
			return err
		},
	}
}

func delRowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del-row <table> <row>",
		Short: "Delete a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			_, err := c.DeleteRow(context.Background(), args[0], args[1])
			return err
		},
	}
}

func delTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del-table <table>",
		Short: "Delete a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			_, err := c.DeleteTable(context.Background(), args[0])
			return err
		},
	}
}

// ─── version ──────────────────────────────────────────────────────────────────

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the node's current vector clock",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			vc, err := c.Version(context.Background())
			if err != nil {
				return err
			}
			for peer, lamport := range vc {
				fmt.Printf("%d: %d\n", uint64(peer), uint32(lamport))
			}
			return nil
		},
	}
}

// ─── snapshot / delta transfer ────────────────────────────────────────────────

func exportSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-snapshot",
		Short: "Write the node's snapshot blob to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			blob, err := c.ExportSnapshot(context.Background())
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(blob)
			return err
		},
	}
}

func importSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-snapshot",
		Short: "Read a snapshot blob from stdin and load it into the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			c := client.New(serverAddr, timeout)
			return c.ImportSnapshot(context.Background(), blob)
		},
	}
}

func exportDeltaCmd() *cobra.Command {
	var fromFlag string
	cmd := &cobra.Command{
		Use:   "export-delta",
		Short: "Write a delta blob (everything since --from, default empty) to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			from := crdt.NewVectorClock()
			if fromFlag != "" {
				var err error
				from, err = parseVectorClock(fromFlag)
				if err != nil {
					return err
				}
			}
			c := client.New(serverAddr, timeout)
			blob, err := c.ExportDeltas(context.Background(), from)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(blob)
			return err
		},
	}
	cmd.Flags().StringVar(&fromFlag, "from", "", "comma-separated peer=lamport pairs; empty means everything")
	return cmd
}

func importDeltaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-delta",
		Short: "Read a delta blob from stdin and merge it into the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			c := client.New(serverAddr, timeout)
			return c.ImportDeltas(context.Background(), blob)
		},
	}
}

func parseVectorClock(s string) (crdt.VectorClock, error) {
	vc := crdt.NewVectorClock()
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != ',' {
			continue
		}
		pair := s[start:i]
		start = i + 1
		if pair == "" {
			continue
		}
		eq := -1
		for j, r := range pair {
			if r == '=' {
				eq = j
				break
			}
		}
		if eq < 0 {
			return nil, fmt.Errorf("invalid peer=lamport pair %q", pair)
		}
		peer, err := strconv.ParseUint(pair[:eq], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid peer id in %q: %w", pair, err)
		}
		lamport, err := strconv.ParseUint(pair[eq+1:], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid lamport in %q: %w", pair, err)
		}
		vc[crdt.Peer(peer)] = crdt.Lamport(lamport)
	}
	return vc, nil
}

// ─── cluster ──────────────────────────────────────────────────────────────────

func clusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster management commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "nodes",
		Short: "List all cluster nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.GetRaw(context.Background(), "/cluster/nodes")
			if err != nil {
				return err
			}
			fmt.Println(resp)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "join <nodeID> <address>",
		Short: "Join a node to the cluster",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			return c.JoinCluster(context.Background(), args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "leave <nodeID>",
		Short: "Remove a node from the cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			return c.LeaveCluster(context.Background(), args[0])
		},
	})

	return cmd
}
