package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/backup"
	"github.com/mesh-intelligence/closet/internal/collection"
	"github.com/mesh-intelligence/closet/internal/xmlcodec"
)

func newBackupCmd(a *app) *cobra.Command {
	var (
		dest    string
		list    bool
		restore string
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Copy the collection to a backup destination",
		Long: `Store a compressed export of the collection in a directory or an
S3-compatible bucket. The destination comes from --dest or backup.dest in
config.yaml; S3 settings are read from backup.s3.* or CLOSET_BACKUP_S3_*.

With --list the stored backups are shown. With --restore the collection is
replaced by the named backup ("latest" picks the newest).

Example:
  closet backup --dest ~/closet-backups
  closet backup --dest s3://my-bucket/closet
  closet backup --restore latest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Backup
			if dest != "" {
				cfg.Dest = dest
			}
			if cfg.Dest == "" {
				return fmt.Errorf("%w: no backup destination; set --dest or backup.dest", errUsage)
			}
			ctx := cmd.Context()
			dst, err := backup.Open(ctx, cfg)
			if err != nil {
				return err
			}
			name := a.cfg.Store.Collection

			if list {
				objs, err := backup.List(ctx, dst, name)
				if err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(out(cmd), objs)
				}
				rows := make([][]string, len(objs))
				for i, o := range objs {
					rows[i] = []string{o.Key, fmt.Sprint(o.Size), o.Modified.UTC().Format("2006-01-02 15:04:05")}
				}
				return table(out(cmd), "KEY\tSIZE\tMODIFIED", rows)
			}

			return a.withCollection(ctx, func(c *collection.Collection) error {
				if restore != "" {
					return a.restore(cmd, dst, c, restore)
				}
				obj, err := backup.Run(ctx, dst, name, c.Store(), a.now())
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "Backed up %q to %s:%s (%d bytes)\n", c.Name(), dst.Driver(), obj.Key, obj.Size)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "directory, file:// or s3://bucket/prefix URL")
	cmd.Flags().BoolVar(&list, "list", false, "list stored backups")
	cmd.Flags().StringVar(&restore, "restore", "", "replace the collection with this backup key, or \"latest\"")
	return cmd
}

func (a *app) restore(cmd *cobra.Command, dst backup.Destination, c *collection.Collection, key string) error {
	ctx := cmd.Context()
	if key == "latest" {
		obj, err := backup.Latest(ctx, dst, a.cfg.Store.Collection)
		if err != nil {
			return err
		}
		key = obj.Key
	}
	s := c.Store()
	if err := s.Clear(); err != nil {
		return err
	}
	report, err := backup.Restore(ctx, dst, key, s, xmlcodec.ImportOptions{
		Policy: xmlcodec.HandlesPreserve,
		Batch:  true,
	})
	if err != nil {
		return err
	}
	if err := c.Save(); err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "Restored %d record(s) from %s\n", report.Total(), key)
	return nil
}
