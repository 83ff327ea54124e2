package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vityasyyy/dalam-kemasan/internal/app"
	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/model"
	"github.com/vityasyyy/dalam-kemasan/internal/query"
)

type filterFlags struct {
	text string
	sort string
	dir  string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.text, "query", "q", "", "case-insensitive substring filter")
	cmd.Flags().StringVar(&f.sort, "sort", "", "sort key: name, modifiedAt, sizeBytes, lastOpenedAt, trashedAt")
	cmd.Flags().StringVar(&f.dir, "dir", "", "sort direction: asc or desc")
}

func (f *filterFlags) filter() query.Filter {
	return query.Filter{Text: f.text, SortKey: query.SortKey(f.sort), SortDir: query.SortDir(f.dir)}
}

func newChildrenCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:     "ls [folder-id]",
		Aliases: []string{"children"},
		Short:   "List the active children of a folder (root when omitted)",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := ""
			if len(args) == 1 {
				parent = args[0]
			}
			return withDrive(cmd, false, func(_ context.Context, d *app.Drive) error {
				items, err := d.Engine.ListActiveChildren(parent, ff.filter())
				if err != nil {
					return err
				}
				return printItems(cmd.OutOrStdout(), items, columnsDefault, time.Now())
			})
		},
	}
	ff.register(cmd)
	return cmd
}

func newRecentCmd() *cobra.Command {
	var ff filterFlags
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently opened items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrive(cmd, false, func(_ context.Context, d *app.Drive) error {
				n := limit
				if !cmd.Flags().Changed("limit") {
					n = d.Config.Views.RecentLimit
				}
				if n < 0 {
					return fmt.Errorf("limit must not be negative")
				}
				items, err := d.Engine.ListRecent(n, ff.filter())
				if err != nil {
					return err
				}
				return printItems(cmd.OutOrStdout(), items, columnsRecent, time.Now())
			})
		},
	}
	ff.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of items (0 for no limit)")
	return cmd
}

func newSharedCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "shared",
		Short: "List items other owners shared",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrive(cmd, false, func(_ context.Context, d *app.Drive) error {
				items, err := d.Engine.ListShared(d.Config.DefaultOwner, ff.filter())
				if err != nil {
					return err
				}
				return printItems(cmd.OutOrStdout(), items, columnsShared, time.Now())
			})
		},
	}
	ff.register(cmd)
	return cmd
}

func newStarredCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "starred",
		Short: "List starred items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrive(cmd, false, func(_ context.Context, d *app.Drive) error {
				items, err := d.Engine.ListStarred(ff.filter())
				if err != nil {
					return err
				}
				return printItems(cmd.OutOrStdout(), items, columnsDefault, time.Now())
			})
		},
	}
	ff.register(cmd)
	return cmd
}

func newTrashCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "List trashed items, purging the expired ones first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The listing sweeps, so it may need saving.
			return withDrive(cmd, true, func(_ context.Context, d *app.Drive) error {
				items, err := d.Retention.ListTrash(ff.filter())
				if err != nil {
					return err
				}
				return printItems(cmd.OutOrStdout(), items, columnsTrash, time.Now())
			})
		},
	}
	ff.register(cmd)
	return cmd
}

func newCreateCmd() *cobra.Command {
	var (
		folder    bool
		parent    string
		size      int64
		mediaType string
	)
	cmd := &cobra.Command{
		Use:     "create <name>",
		Aliases: []string{"mkdir", "touch"},
		Short:   "Create a file, or a folder with --folder or the mkdir alias",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := model.KindFile
			if folder || cmd.CalledAs() == "mkdir" {
				kind = model.KindFolder
			}
			return withDrive(cmd, true, func(_ context.Context, d *app.Drive) error {
				e, err := d.Store.Create(drive.CreateInput{
					Kind:      kind,
					Name:      args[0],
					ParentID:  parent,
					OwnerID:   d.Config.DefaultOwner,
					MediaType: model.MediaType(mediaType),
					SizeBytes: size,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s %s %s\n", e.Kind, e.ID, e.Name)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&folder, "folder", false, "create a folder")
	cmd.Flags().StringVarP(&parent, "parent", "p", "", "parent folder id (root when empty)")
	cmd.Flags().Int64Var(&size, "size", 0, "file size in bytes")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "media type; inferred from the extension when empty")
	return cmd
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrive(cmd, true, func(_ context.Context, d *app.Drive) error {
				e, err := d.Store.Rename(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", e.ID, e.Name)
				return nil
			})
		},
	}
}

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "mv <id> [folder-id]",
		Aliases: []string{"move"},
		Short:   "Move an entity into a folder (root when omitted)",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 2 {
				target = args[1]
			}
			return withDrive(cmd, true, func(_ context.Context, d *app.Drive) error {
				e, err := d.Store.Move(args[0], target)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "moved %s to %s\n", e.ID, displayParent(e.ParentID))
				return nil
			})
		},
	}
}

func setStarred(d *app.Drive, id string, v bool) (model.Entity, error) {
	return d.Store.SetStarred(id, v)
}

func setShared(d *app.Drive, id string, v bool) (model.Entity, error) {
	return d.Store.SetShared(id, v)
}

func newFlagCmd(use, short, offUsage string, set func(*app.Drive, string, bool) (model.Entity, error)) *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrive(cmd, true, func(_ context.Context, d *app.Drive) error {
				e, err := set(d, args[0], !off)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s starred=%t shared=%t\n", e.ID, e.Name, e.Starred, e.Shared)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, offUsage)
	return cmd
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <id>",
		Short: "Record that an entity was opened",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrive(cmd, true, func(_ context.Context, d *app.Drive) error {
				e, err := d.Store.TouchOpened(args[0], time.Now().UTC())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "opened %s %s\n", iconFor(e.Kind, e.MediaType), e.Name)
				return nil
			})
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Move entities to the trash",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrive(cmd, true, func(_ context.Context, d *app.Drive) error {
				now := time.Now().UTC()
				for _, id := range args {
					e, err := d.Store.Trash(id, now)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "trashed %s %s\n", e.ID, e.Name)
				}
				return nil
			})
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>...",
		Short: "Restore trashed entities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrive(cmd, true, func(_ context.Context, d *app.Drive) error {
				for _, id := range args {
					e, err := d.Store.Restore(id)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "restored %s %s\n", e.ID, e.Name)
				}
				return nil
			})
		},
	}
}

func newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <id>",
		Short: "Delete an entity and its subtree permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrive(cmd, true, func(_ context.Context, d *app.Drive) error {
				ids, err := d.Store.Purge(args[0])
				if err != nil {
					return err
				}
				return printIDs(cmd.OutOrStdout(), "purged", ids)
			})
		},
	}
}

func newEmptyTrashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "empty-trash",
		Short: "Purge everything in the trash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrive(cmd, true, func(_ context.Context, d *app.Drive) error {
				ids, err := d.Store.EmptyTrash()
				if err != nil {
					return err
				}
				return printIDs(cmd.OutOrStdout(), "purged", ids)
			})
		},
	}
}

func newRestoreAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore-all",
		Short: "Restore everything in the trash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrive(cmd, true, func(_ context.Context, d *app.Drive) error {
				ids, err := d.Store.RestoreAll()
				if err != nil {
					return err
				}
				return printIDs(cmd.OutOrStdout(), "restored", ids)
			})
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge trashed items whose retention window has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrive(cmd, true, func(_ context.Context, d *app.Drive) error {
				ids, err := d.Retention.Sweep(time.Now().UTC())
				if err != nil {
					return err
				}
				return printIDs(cmd.OutOrStdout(), "purged", ids)
			})
		},
	}
}

func displayParent(id string) string {
	if id == "" {
		return "root"
	}
	return id
}
