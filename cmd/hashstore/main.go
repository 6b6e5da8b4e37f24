// Command hashstore is a thin CLI wrapper around pkg/hashstore, exposing
// put/tag/get/delete/verify as subcommands the way the teacher's cmd/ncps
// wraps pkg/ncps. The store itself has no wire protocol and no CLI
// requirement (§6) — this binary is an external convenience, not part
// of the core library's contract.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/DataONEorg/hashstore/pkg/checksum"
	"github.com/DataONEorg/hashstore/pkg/config"
	"github.com/DataONEorg/hashstore/pkg/hashstore"
)

// Version is set with ldflags at build time.
//
//nolint:gochecknoglobals
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	ctx := logger.WithContext(context.Background())

	cmd := &cli.Command{
		Name:    "hashstore",
		Usage:   "Content-addressed object store for scientific data repositories",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "root",
				Usage:    "Path to the store root",
				Sources:  cli.EnvVars("HASHSTORE_ROOT"),
				Required: true,
			},
			&cli.IntFlag{Name: "depth", Value: 3, Usage: "Shard directory depth"},
			&cli.IntFlag{Name: "width", Value: 2, Usage: "Shard directory width"},
			&cli.StringFlag{Name: "algorithm", Value: "SHA-256", Usage: "Store content algorithm"},
			&cli.StringFlag{Name: "namespace", Value: "", Usage: "Default metadata namespace"},
		},
		Commands: []*cli.Command{
			putCommand(),
			tagCommand(),
			getCommand(),
			deleteCommand(),
			verifyCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("hashstore command failed")

		return 1
	}

	return 0
}

func openFromFlags(cmd *cli.Command) (*hashstore.Store, error) {
	algo, err := checksum.Parse(cmd.String("algorithm"))
	if err != nil {
		return nil, err
	}

	return hashstore.Open(cmd.String("root"), config.Request{
		Depth:             int(cmd.Int("depth")),
		Width:             int(cmd.Int("width")),
		Algorithm:         algo,
		MetadataNamespace: cmd.String("namespace"),
	})
}

func putCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "Store a file, optionally tagging it with a pid",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pid", Usage: "Persistent identifier to tag the object with"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("put requires exactly one file path argument")
			}

			s, err := openFromFlags(cmd)
			if err != nil {
				return err
			}

			f, err := os.Open(cmd.Args().First())
			if err != nil {
				return fmt.Errorf("opening input file: %w", err)
			}
			defer f.Close()

			meta, err := s.StoreObject(ctx, f, hashstore.StoreObjectOptions{
				Pid:          cmd.String("pid"),
				ExpectedSize: -1,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.Writer, "%s\n", meta.Cid)

			return nil
		},
	}
}

func tagCommand() *cli.Command {
	return &cli.Command{
		Name:      "tag",
		Usage:     "Bind a pid to a cid",
		ArgsUsage: "<pid> <cid>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return fmt.Errorf("tag requires <pid> <cid>")
			}

			s, err := openFromFlags(cmd)
			if err != nil {
				return err
			}

			return s.TagObject(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Retrieve an object by pid, writing its content to stdout",
		ArgsUsage: "<pid>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("get requires exactly one pid argument")
			}

			s, err := openFromFlags(cmd)
			if err != nil {
				return err
			}

			rc, _, err := s.RetrieveObject(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			defer rc.Close()

			_, err = io.Copy(cmd.Writer, rc)

			return err
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an object by pid",
		ArgsUsage: "<pid>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("delete requires exactly one pid argument")
			}

			s, err := openFromFlags(cmd)
			if err != nil {
				return err
			}

			return s.DeleteObject(ctx, cmd.Args().First())
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Walk the store and report reference-graph inconsistencies",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := openFromFlags(cmd)
			if err != nil {
				return err
			}

			report, err := s.Verify(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.Writer, "orphan pid-refs: %d\n", len(report.OrphanPidRefs))
			fmt.Fprintf(cmd.Writer, "orphan cid-refs: %d\n", len(report.OrphanCidRefs))
			fmt.Fprintf(cmd.Writer, "missing objects: %d\n", len(report.MissingObjects))

			if report.HasIssues() {
				return fmt.Errorf("consistency issues found")
			}

			return nil
		},
	}
}
