package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/hazardfeed/pkg/auth"
	"github.com/cuemby/hazardfeed/pkg/client"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage accounts and tokens",
}

var authRegisterCmd = &cobra.Command{
	Use:   "register USERNAME",
	Short: "Create an account",
	Long: `Create an account. Citizen accounts are signed in right away. Official
accounts (--role admin|ngo|ddmo) need --official-id and stay pending until
an admin approves them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		email, _ := cmd.Flags().GetString("email")
		role, _ := cmd.Flags().GetString("role")
		officialID, _ := cmd.Flags().GetString("official-id")
		location, _ := cmd.Flags().GetString("location")

		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		session := client.NewSession(newClient(cmd), nil)
		state, user, err := session.Register(ctx, auth.RegisterRequest{
			Username:   args[0],
			Email:      email,
			Password:   password,
			Role:       role,
			OfficialID: officialID,
			Location:   location,
		})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}

		fmt.Printf("✓ Registered %s (%s, id %s)\n", user.Username, user.Role, user.ID)
		if !state.SignedIn() {
			fmt.Println("  Account pending admin approval")
			return nil
		}
		fmt.Printf("  Token (expires %s):\n%s\n", state.ExpiresAt.Local().Format("2006-01-02 15:04"), state.Token)
		return nil
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login USERNAME",
	Short: "Sign in and print a bearer token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")

		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		state, err := client.NewSession(newClient(cmd), nil).Login(ctx, args[0], password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Println(state.Token)
		return nil
	},
}

var authApproveCmd = &cobra.Command{
	Use:   "approve USER_ID",
	Short: "Approve an official account (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		user, err := newClient(cmd).Approve(ctx, args[0])
		if err != nil {
			return fmt.Errorf("approval failed: %w", err)
		}
		fmt.Printf("✓ Approved %s (%s)\n", user.Username, user.Role)
		return nil
	},
}

func init() {
	authRegisterCmd.Flags().String("password", "", "Account password")
	authRegisterCmd.Flags().String("email", "", "Email address")
	authRegisterCmd.Flags().String("role", "user", "Role: user, admin, ngo or ddmo")
	authRegisterCmd.Flags().String("official-id", "", "Official identifier (required for official roles)")
	authRegisterCmd.Flags().String("location", "", "Home location")
	_ = authRegisterCmd.MarkFlagRequired("password")

	authLoginCmd.Flags().String("password", "", "Account password")
	_ = authLoginCmd.MarkFlagRequired("password")

	authCmd.AddCommand(authRegisterCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authApproveCmd)
	rootCmd.AddCommand(authCmd)
}
