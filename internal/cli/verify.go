package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/collection"
	"github.com/mesh-intelligence/closet/internal/mediafile"
	"github.com/mesh-intelligence/closet/pkg/types"
)

func newVerifyCmd(a *app) *cobra.Command {
	var baseDir string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check media files against their stored checksums",
		Long: `Recompute the checksum of every media file and report files that are
missing or changed. Relative media paths are resolved against --base-dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCollection(cmd.Context(), func(c *collection.Collection) error {
				var checked, failed int
				var firstErr error
				c.Store().Iterate(types.KindMedia, func(rec types.Record) bool {
					m := rec.(*types.MediaObject)
					checked++
					if err := mediafile.Verify(m, baseDir); err != nil {
						failed++
						fmt.Fprintf(out(cmd), "%s %s: %v\n", m.ID, m.Path, err)
						if firstErr == nil {
							firstErr = err
						}
					}
					return true
				})
				fmt.Fprintf(out(cmd), "Verified %d media file(s), %d problem(s)\n", checked, failed)
				if failed > 0 {
					if errors.Is(firstErr, mediafile.ErrChecksumMismatch) {
						return fmt.Errorf("%d media file(s) failed: %w", failed, mediafile.ErrChecksumMismatch)
					}
					return fmt.Errorf("%d media file(s) failed: %w", failed, firstErr)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&baseDir, "base-dir", "", "directory relative media paths are resolved against")
	return cmd
}
