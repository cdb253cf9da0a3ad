package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dvloznov/ofx-ingest/internal/rules"
)

func (c *cli) rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Export and import categorization rules",
	}
	cmd.AddCommand(c.rulesExportCmd(), c.rulesImportCmd())
	return cmd
}

func (c *cli) rulesExportCmd() *cobra.Command {
	var (
		companyFlag string
		all         bool
		format      string
		outPath     string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the company's rules as a portable document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unknown format %q, want json or yaml", format)
			}
			companyID, err := c.company(companyFlag)
			if err != nil {
				return err
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.Rules.Export(ctx, companyID, !all)
			if err != nil {
				return err
			}

			w := c.out
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := encodeDocument(w, doc, format); err != nil {
				return err
			}
			if outPath != "" {
				fmt.Fprintf(c.out, "Exported %d rules and %d categories to %s\n",
					doc.Metadata.TotalRules, doc.Metadata.TotalCategories, outPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&companyFlag, "company", "", "company to export")
	cmd.Flags().BoolVar(&all, "all", false, "include inactive rules")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringVar(&outPath, "out", "", "write to this file instead of stdout")
	return cmd
}

func encodeDocument(w io.Writer, doc *rules.ExportDocument, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// decodeDocument reads JSON, or YAML when the file extension says so.
func decodeDocument(path string, raw []byte) (*rules.ExportDocument, error) {
	var doc rules.ExportDocument
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, &rules.InvalidDocumentError{Reason: err.Error()}
		}
	default:
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, &rules.InvalidDocumentError{Reason: err.Error()}
		}
	}
	return &doc, nil
}

func (c *cli) rulesImportCmd() *cobra.Command {
	var (
		companyFlag string
		strategy    string
		noCreate    bool
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import rules from an export document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			companyID, err := c.company(companyFlag)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			doc, err := decodeDocument(args[0], raw)
			if err != nil {
				return err
			}

			opts := rules.DefaultImportOptions()
			opts.ConflictStrategy = rules.ConflictStrategy(strategy)
			opts.CreateMissingCategories = !noCreate
			opts.DryRun = dryRun

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Rules.Import(ctx, companyID, doc, opts)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.out, res.Message())
			fmt.Fprintf(c.out, "Categories created: %d, mapped: %d\n", res.Summary.CategoriesCreated, res.Summary.CategoriesMapped)
			for _, s := range res.Details.Skipped {
				fmt.Fprintf(c.out, "  skipped %q: %s\n", s.Pattern, s.Reason)
			}
			for _, e := range res.Errors {
				fmt.Fprintf(c.out, "  error: %s\n", e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&companyFlag, "company", "", "company to import into")
	cmd.Flags().StringVar(&strategy, "strategy", string(rules.ConflictSkip), "conflict strategy: skip, replace or merge")
	cmd.Flags().BoolVar(&noCreate, "no-create-categories", false, "skip rules whose category does not exist")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	return cmd
}
