// Command imagedb is the command-line front end of the image similarity
// database: add and remove images, run similarity queries, serve the
// database over TCP, and push snapshots to an archive store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/imagedb"
	"github.com/hupe1980/imagedb/blobstore"
	s3store "github.com/hupe1980/imagedb/blobstore/s3"
	"github.com/hupe1980/imagedb/codec"
	"github.com/hupe1980/imagedb/core"
	"github.com/hupe1980/imagedb/server"
	"github.com/hupe1980/imagedb/signature"
)

var (
	flagDB      string
	flagCodec   string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "imagedb",
		Short:         "Content-based image similarity database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagDB, "db", "images.idb", "database snapshot file")
	root.PersistentFlags().StringVar(&flagCodec, "codec", "none", "snapshot compression: none, lz4, zstd")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newAddCmd(),
		newRemoveCmd(),
		newQueryCmd(),
		newInfoCmd(),
		newServeCmd(),
		newPushCmd(),
		newPullCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func snapshotCodec() (codec.Codec, error) {
	switch flagCodec {
	case "none":
		return codec.None{}, nil
	case "lz4":
		return codec.LZ4{}, nil
	case "zstd":
		return codec.Zstd{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", flagCodec)
	}
}

func dbOptions() ([]imagedb.Option, error) {
	c, err := snapshotCodec()
	if err != nil {
		return nil, err
	}
	opts := []imagedb.Option{imagedb.WithCodec(c)}
	if flagVerbose {
		opts = append(opts, imagedb.WithLogLevel(slog.LevelDebug))
	}
	return opts, nil
}

// openDB loads the snapshot named by --db, or starts empty if it does not
// exist yet.
func openDB() (*imagedb.DB, error) {
	opts, err := dbOptions()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(flagDB); os.IsNotExist(err) {
		return imagedb.New(opts...), nil
	}
	return imagedb.NewFromFile(flagDB, opts...)
}

func newAddCmd() *cobra.Command {
	var userID uint64

	cmd := &cobra.Command{
		Use:   "add <image>...",
		Short: "Extract signatures and add images to the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID != 0 && len(args) > 1 {
				return fmt.Errorf("--id only applies to a single image")
			}

			db, err := openDB()
			if err != nil {
				return err
			}

			// Decode in parallel; adding serializes on the database lock
			// anyway.
			descriptors := make([]signature.Descriptor, len(args))
			var g errgroup.Group
			g.SetLimit(8)
			for i, path := range args {
				g.Go(func() error {
					d, err := imagedb.ExtractFile(path)
					if err != nil {
						return err
					}
					descriptors[i] = d
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			images := make([]imagedb.Image, len(descriptors))
			for i, d := range descriptors {
				images[i] = imagedb.Image{
					UserID: core.UserID(userID),
					Sig:    d.Sig,
					DC:     d.DC,
					Res:    d.Res,
				}
			}

			result := db.BatchAdd(cmd.Context(), images)
			for i, err := range result.Errors {
				if err != nil {
					return fmt.Errorf("%s: %w", args[i], err)
				}
				fmt.Printf("%s: id %d\n", args[i], result.IDs[i])
			}

			return db.SaveToFile(flagDB)
		},
	}
	cmd.Flags().Uint64Var(&userID, "id", 0, "user id for the image (0 = generate)")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an image by user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			if _, err := db.Remove(cmd.Context(), core.UserID(uid)); err != nil {
				return err
			}

			fmt.Printf("removed %d\n", uid)
			return db.SaveToFile(flagDB)
		},
	}
}

func newQueryCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "query <image>",
		Short: "Find the stored images most similar to the given one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}

			results, err := db.QueryFile(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for _, r := range results {
				fmt.Printf("%d\t%.3f\n", r.UserID, r.Score)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "top", "k", 10, "number of matches to return")
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}

			stats := db.Stats()
			fmt.Printf("images:      %d\n", stats.NumImages)
			fmt.Printf("buckets:     %d\n", stats.Buckets)
			fmt.Printf("max bucket:  %d\n", stats.MaxBucket)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the database over TCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if flagVerbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			srv := server.New(db, func(o *server.Options) {
				o.Addr = addr
				o.SnapshotPath = flagDB
				o.Logger = logger
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
				return err
			}

			// Flush on shutdown.
			return db.SaveToFile(flagDB)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "listen address")
	return cmd
}

// archiveStore builds a blob store from a target URL: s3://bucket/prefix
// for S3, anything else is a local directory.
func archiveStore(ctx context.Context, target string) (blobstore.BlobStore, error) {
	if strings.HasPrefix(target, "s3://") {
		u, err := url.Parse(target)
		if err != nil {
			return nil, err
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		client := awss3.NewFromConfig(cfg)
		return s3store.NewStore(client, u.Host, strings.TrimPrefix(u.Path, "/")), nil
	}
	return blobstore.NewLocalStore(target), nil
}

func newPushCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "push <target>",
		Short: "Upload the database snapshot to an archive store",
		Long:  "Upload the database snapshot to a local directory or an s3://bucket/prefix archive.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := archiveStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := blobstore.Push(cmd.Context(), store, name, flagDB); err != nil {
				return err
			}
			fmt.Printf("pushed %s to %s/%s\n", flagDB, args[0], name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "latest.idb", "blob name in the archive")
	return cmd
}

func newPullCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "pull <target>",
		Short: "Download a database snapshot from an archive store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := archiveStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := blobstore.Pull(cmd.Context(), store, name, flagDB); err != nil {
				return err
			}
			fmt.Printf("pulled %s/%s to %s\n", args[0], name, flagDB)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "latest.idb", "blob name in the archive")
	return cmd
}
