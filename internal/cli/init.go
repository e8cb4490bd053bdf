package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/collection"
	"github.com/mesh-intelligence/closet/internal/paths"
)

func newInitCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the configuration and a collection",
		Long: `Create the configuration directory and config.yaml if missing, then create
the collection directory. Running init on an existing collection is a no-op.

Example:
  closet init
  closet --collection summer init --name "Summer wardrobe"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInit(cmd, name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (default: the collection name)")
	return cmd
}

func (a *app) runInit(cmd *cobra.Command, name string) error {
	if err := os.MkdirAll(a.configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := writeConfigIfMissing(filepath.Join(a.configDir, paths.ConfigFileName), a.cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	c, err := collection.Create(a.cfg.Store, name, a.collectionOptions())
	if errors.Is(err, fs.ErrExist) {
		fmt.Fprintf(out(cmd), "Collection %q already initialized\n", a.cfg.Store.Collection)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	if !a.cfg.Owner.IsZero() {
		c.Store().SetOwner(a.cfg.Owner)
		if err := c.Save(); err != nil {
			c.Close()
			return err
		}
	}
	if err := c.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "Initialized collection %q in %s\n", c.Name(), c.Dir())
	return nil
}
