package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/hazardfeed/pkg/client"
	"github.com/cuemby/hazardfeed/pkg/types"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Inspect and refresh hazard zones",
}

var zonesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the current hazard zones",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		zones, err := newClient(cmd).ListZones(ctx)
		if err != nil {
			return fmt.Errorf("failed to list zones: %w", err)
		}
		printZones(zones)
		return nil
	},
}

var zonesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh zones from the hazard source now (admin, ddmo)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		zones, err := newClient(cmd).RefreshZones(ctx)
		if err != nil {
			return fmt.Errorf("failed to refresh zones: %w", err)
		}
		fmt.Printf("✓ Zones refreshed: %d zones\n", len(zones))
		printZones(zones)
		return nil
	},
}

var zonesAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show the current High Wave Alert bulletin",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		b, err := newClient(cmd).Bulletin(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch bulletin: %w", err)
		}
		if len(b.Threats) == 0 {
			fmt.Println("No active alerts")
			return nil
		}
		for _, t := range b.Threats {
			fmt.Println("- " + t)
		}
		return nil
	},
}

func init() {
	zonesCmd.AddCommand(zonesListCmd)
	zonesCmd.AddCommand(zonesRefreshCmd)
	zonesCmd.AddCommand(zonesAlertsCmd)
	rootCmd.AddCommand(zonesCmd)
}

func printZones(zones []types.Zone) {
	if len(zones) == 0 {
		fmt.Println("No zones")
		return
	}
	fmt.Printf("%-10s  %-9s  %-9s  %-9s  %s\n", "CATEGORY", "LAT", "LNG", "RADIUS", "LABEL")
	for _, z := range zones {
		fmt.Printf("%-10s  %-9.4f  %-9.4f  %-9s  %s\n",
			z.Category, z.Lat, z.Lng, formatRadius(z.RadiusM), truncate(z.Label, 60))
	}
}

func formatRadius(m float64) string {
	if m >= 1000 {
		return fmt.Sprintf("%.1fkm", m/1000)
	}
	return fmt.Sprintf("%.0fm", m)
}
