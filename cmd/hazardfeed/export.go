package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/hazardfeed/pkg/client"
	"github.com/cuemby/hazardfeed/pkg/export"
	"github.com/cuemby/hazardfeed/pkg/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data to spreadsheets",
}

var exportPostsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Export all posts to an .xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		withZones, _ := cmd.Flags().GetBool("zones")

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*client.DefaultTimeout)
		defer cancel()

		c := newClient(cmd)
		posts, err := c.ListPosts(ctx)
		if err != nil {
			return fmt.Errorf("failed to list posts: %w", err)
		}

		var zones []types.Zone
		if withZones {
			if zones, err = c.ListZones(ctx); err != nil {
				return fmt.Errorf("failed to list zones: %w", err)
			}
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		if err := export.WriteReport(f, posts, zones); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}

		fmt.Printf("✓ Exported %d posts to %s\n", len(posts), out)
		return nil
	},
}

func init() {
	exportPostsCmd.Flags().StringP("out", "o", "posts.xlsx", "Output file")
	exportPostsCmd.Flags().Bool("zones", false, "Add a sheet with the current zones")

	exportCmd.AddCommand(exportPostsCmd)
	rootCmd.AddCommand(exportCmd)
}
