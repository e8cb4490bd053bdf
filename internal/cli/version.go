package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/xmlcodec"
)

// Version is the closet release. It is also written as the producer of
// exported documents.
const Version = "0.1.0"

const modulePath = "github.com/mesh-intelligence/closet"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the closet version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(out(cmd), "closet v%s\nmodule: %s\nschema: %s\n", Version, modulePath, xmlcodec.Namespace)
			return nil
		},
	}
}
