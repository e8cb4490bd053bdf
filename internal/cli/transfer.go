package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/collection"
	"github.com/mesh-intelligence/closet/internal/privacy"
	"github.com/mesh-intelligence/closet/internal/xmlcodec"
	"github.com/mesh-intelligence/closet/pkg/types"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		policy string
		batch  bool
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import an XML document into the collection",
		Long: `Import a closet XML document, plain or gzip-compressed. Handles are kept
when the collection is empty and remapped otherwise, unless --handles says
differently. Records whose user IDs collide with existing ones get fresh IDs.
Dangling references are repaired with placeholder records.

Example:
  closet import wardrobe.xml.gz
  closet import shared.xml --handles remap`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := xmlcodec.ParseHandlePolicy(policy)
			if err != nil {
				return fmt.Errorf("%w: %w", errUsage, err)
			}
			return a.withCollection(cmd.Context(), func(c *collection.Collection) error {
				report, err := xmlcodec.ImportFile(cmd.Context(), args[0], c.Store(), xmlcodec.ImportOptions{
					Policy: p,
					Batch:  batch,
					Now:    a.now,
				})
				if err != nil {
					return err
				}
				if err := c.Save(); err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(out(cmd), newReportView(report))
				}
				printReport(out(cmd), report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&policy, "handles", xmlcodec.HandlesAuto.String(), "handle policy: auto, preserve or remap")
	cmd.Flags().BoolVar(&batch, "batch", false, "import as one batch without per-record change events")
	return cmd
}

// reportView is the JSON shape of an import report.
type reportView struct {
	Version      string             `json:"version"`
	Policy       string             `json:"policy"`
	Added        map[types.Kind]int `json:"added"`
	Placeholders map[types.Kind]int `json:"placeholders,omitempty"`
	IDsChanged   map[types.Kind]int `json:"ids_changed,omitempty"`
	Merges       []types.Reference  `json:"merge_candidates,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Note         types.Handle       `json:"explanatory_note,omitempty"`
	Total        int                `json:"total"`
}

func byKind(counts [types.NumKinds]int) map[types.Kind]int {
	m := make(map[types.Kind]int)
	for _, k := range types.Kinds {
		if counts[k] > 0 {
			m[k] = counts[k]
		}
	}
	return m
}

func newReportView(r *xmlcodec.Report) reportView {
	v := reportView{
		Version:      r.Version,
		Policy:       r.Policy.String(),
		Added:        byKind(r.Added),
		Placeholders: byKind(r.Placeholders),
		IDsChanged:   byKind(r.IDsChanged),
		Warnings:     r.Warnings,
		Note:         r.ExplanatoryNote,
		Total:        r.Total(),
	}
	for _, m := range r.Merges {
		v.Merges = append(v.Merges, types.Reference{Kind: m.Kind, Handle: m.Handle})
	}
	return v
}

func printReport(w io.Writer, r *xmlcodec.Report) {
	fmt.Fprintf(w, "Imported %d record(s) from schema %s (handles: %s)\n", r.Total(), r.Version, r.Policy)
	for _, k := range types.Kinds {
		var parts []string
		if n := r.Added[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d added", n))
		}
		if n := r.Placeholders[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d placeholder(s)", n))
		}
		if n := r.IDsChanged[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d ID(s) changed", n))
		}
		if len(parts) > 0 {
			fmt.Fprintf(w, "  %-9s %s\n", k.String()+":", strings.Join(parts, ", "))
		}
	}
	if len(r.Merges) > 0 {
		fmt.Fprintf(w, "Merge candidates (%d):\n", len(r.Merges))
		for _, m := range r.Merges {
			fmt.Fprintf(w, "  %s %s\n", m.Kind, m.Handle)
		}
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

func newExportCmd(a *app) *cobra.Command {
	var public, compress bool
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export the collection as an XML document",
		Long: `Write the collection to an XML document. The file is compressed when its
name ends in .gz or --gzip is given. With --public private records and
private references are left out.

Example:
  closet export wardrobe.xml
  closet export shared.xml.gz --public`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			return a.withCollection(cmd.Context(), func(c *collection.Collection) error {
				var src xmlcodec.Source = c.Store()
				if public {
					src = privacy.New(c.Store())
				}
				err := xmlcodec.ExportFile(path, src, xmlcodec.Options{
					Created:  a.now,
					Compress: compress || strings.HasSuffix(path, ".gz"),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "Exported %q to %s\n", c.Name(), path)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&public, "public", false, "leave out private records and references")
	cmd.Flags().BoolVar(&compress, "gzip", false, "gzip the document")
	return cmd
}
