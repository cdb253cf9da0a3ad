package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/ofx-ingest/internal/batch"
	"github.com/dvloznov/ofx-ingest/internal/ingest"
	"github.com/dvloznov/ofx-ingest/internal/ofx"
)

const pollInterval = 500 * time.Millisecond

func (c *cli) validateCmd() *cobra.Command {
	var render bool
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Parse a statement and print a summary without storing it",
		Long: "Parse a statement and print a summary without storing it. With --render the parsed\n" +
			"statement is written back as a normalized OFX 1.02 document instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := ofx.Sniff(filepath.Base(args[0]), content); err != nil {
				return err
			}
			doc, err := ofx.Parse(string(content))
			if err != nil {
				return err
			}
			if render {
				_, err := io.WriteString(c.out, ofx.Encode(doc))
				return err
			}

			fmt.Fprintf(c.out, "Kind:         %s\n", doc.Kind)
			fmt.Fprintf(c.out, "Bank:         %s\n", doc.Account.BankID)
			fmt.Fprintf(c.out, "Account:      %s (%s)\n", doc.Account.AccountID, doc.Account.AccountType)
			fmt.Fprintf(c.out, "Currency:     %s\n", doc.Account.Currency)
			if !doc.Period.Start.IsZero() {
				fmt.Fprintf(c.out, "Period:       %s to %s\n", doc.Period.Start.Format(time.DateOnly), doc.Period.End.Format(time.DateOnly))
			}
			fmt.Fprintf(c.out, "Balance:      %s\n", doc.Balance.Amount.StringFixed(2))
			fmt.Fprintf(c.out, "Transactions: %d\n", len(doc.Items))
			return nil
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "print the statement as normalized OFX")
	return cmd
}

func (c *cli) ingestCmd() *cobra.Command {
	var (
		companyFlag string
		wait        bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Store a statement and process it",
		Long: "Store a statement and process it with the in-process worker. Without --wait the upload\n" +
			"stays pending and is picked up by `recover` or the API server on start.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			companyID, err := c.company(companyFlag)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if wait {
				if err := a.Queue.Start(ctx, a.Ingest.Handle); err != nil {
					return err
				}
			}

			rc, err := a.Ingest.Ingest(ctx, ingest.Request{
				CompanyID: companyID,
				Filename:  filepath.Base(args[0]),
				Content:   content,
			})
			if err != nil {
				var dup *ingest.DuplicateUploadError
				if errors.As(err, &dup) {
					fmt.Fprintf(c.out, "Already uploaded as %s on %s (%s)\n", dup.UploadID, dup.UploadedAt.Format(time.RFC3339), dup.Status)
				}
				return err
			}

			fmt.Fprintf(c.out, "Upload %s accepted: %d transactions into %q\n",
				rc.Upload.ID, rc.Upload.TotalTransactions, rc.Account.Name)
			if !wait {
				return nil
			}
			return c.waitFor(ctx, a.Ingest, companyID, rc.Upload.ID)
		},
	}
	cmd.Flags().StringVar(&companyFlag, "company", "", "company the statement belongs to")
	cmd.Flags().BoolVar(&wait, "wait", true, "process the upload before returning")
	return cmd
}

// waitFor polls progress until the upload is terminal or ctx ends.
func (c *cli) waitFor(ctx context.Context, svc *ingest.Service, companyID, uploadID string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := -1
	for {
		snap, err := svc.Progress(ctx, companyID, uploadID)
		if err != nil {
			return err
		}
		if snap.Percentage != last {
			fmt.Fprintf(c.out, "  %3d%%  batch %d/%d\n", snap.Percentage, snap.CurrentBatch, snap.TotalBatches)
			last = snap.Percentage
		}
		if snap.Status.Terminal() {
			u, err := svc.Upload(ctx, companyID, uploadID)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Upload %s %s: %d successful, %d failed\n",
				u.ID, u.Status, u.SuccessfulTransactions, u.FailedTransactions)
			return nil
		}

		select {
		case <-ctx.Done():
			fmt.Fprintf(c.out, "Interrupted; upload %s can be resumed with `recover`\n", uploadID)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *cli) recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Resume uploads left pending or processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			stranded, err := a.Ingest.Stranded(ctx)
			if err != nil {
				return err
			}
			if len(stranded) == 0 {
				fmt.Fprintln(c.out, "Nothing to recover")
				return nil
			}

			for _, job := range stranded {
				fmt.Fprintf(c.out, "Resuming %s from item %d\n", job.UploadID, job.ResumeFrom)
				err := a.Ingest.Handle(ctx, job)
				if errors.Is(err, batch.ErrInterrupted) {
					fmt.Fprintln(c.out, "Interrupted; run recover again to continue")
					return err
				}
				if err != nil {
					c.log.Error().Err(err).Str("upload_id", job.UploadID).Msg("recovery failed")
				}
			}
			return nil
		},
	}
}

func (c *cli) uploadsCmd() *cobra.Command {
	var companyFlag string
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "List a company's uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			companyID, err := c.company(companyFlag)
			if err != nil {
				return err
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			uploads, err := a.Ingest.ListUploads(ctx, companyID)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILE\tSTATUS\tOK\tFAILED\tTOTAL\tUPLOADED")
			for _, u := range uploads {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n", u.ID, u.OriginalName, u.Status,
					u.SuccessfulTransactions, u.FailedTransactions, u.TotalTransactions, u.UploadedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&companyFlag, "company", "", "company to list")
	return cmd
}

func (c *cli) filesCmd() *cobra.Command {
	var companyFlag string
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List stored statement files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			companyID, err := c.company(companyFlag)
			if err != nil {
				return err
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			files, err := a.Files.List(ctx, companyID)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "PATH (%s)\tNAME\tSIZE\tUPLOADED\n", a.Files.Provider())
			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.RelativePath, f.OriginalName, f.Size, f.UploadedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&companyFlag, "company", "", "company to list")
	return cmd
}
