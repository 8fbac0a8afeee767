package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/hazardfeed/pkg/client"
	"github.com/cuemby/hazardfeed/pkg/types"
)

var disastersCmd = &cobra.Command{
	Use:   "disasters",
	Short: "List and place disaster map markers",
}

var disastersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List disaster markers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		disasters, err := newClient(cmd).ListDisasters(ctx)
		if err != nil {
			return fmt.Errorf("failed to list disasters: %w", err)
		}
		printDisasters(disasters)
		return nil
	},
}

var disastersAddCmd = &cobra.Command{
	Use:   "add TYPE",
	Short: "Place a disaster marker (admin, ddmo, ngo)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
			return fmt.Errorf("--lat and --lon are required")
		}
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		desc, _ := cmd.Flags().GetString("desc")

		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		d, err := newClient(cmd).AddDisaster(ctx, client.NewDisaster{Type: args[0], Lat: lat, Lon: lon, Description: desc})
		if err != nil {
			return fmt.Errorf("failed to add disaster: %w", err)
		}
		fmt.Printf("✓ Disaster marker added: %s\n", d.ID)
		return nil
	},
}

func init() {
	disastersCmd.AddCommand(disastersListCmd)
	disastersCmd.AddCommand(disastersAddCmd)

	disastersAddCmd.Flags().Float64("lat", 0, "Latitude")
	disastersAddCmd.Flags().Float64("lon", 0, "Longitude")
	disastersAddCmd.Flags().String("desc", "", "Description")

	rootCmd.AddCommand(disastersCmd)
}

func printDisasters(disasters []*types.Disaster) {
	if len(disasters) == 0 {
		fmt.Println("No disasters")
		return
	}
	fmt.Printf("%-36s  %-12s  %-9s  %-9s  %s\n", "ID", "TYPE", "LAT", "LON", "DESCRIPTION")
	for _, d := range disasters {
		fmt.Printf("%-36s  %-12s  %-9.4f  %-9.4f  %s\n",
			d.ID, truncate(d.Type, 12), d.Lat, d.Lon, truncate(d.Description, 50))
	}
}
