/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/alagamento-br/apiserver/config"
	"github.com/alagamento-br/apiserver/internal/db"
	"github.com/alagamento-br/apiserver/internal/services"
	"github.com/alagamento-br/apiserver/internal/store"
	"github.com/spf13/cobra"
)

var promoteEmail string

// usersCmd groups operator commands on accounts.
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var usersPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Grant the admin role to an existing account",
	Long: `Grants the admin role to the account registered with --email. This is
how the first administrator is created. Usage:

	alagamento users promote --email ana@example.com
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		userService := services.NewUserService(store.NewUserRepository(dbConn))
		user, err := userService.PromoteByEmail(cmd.Context(), promoteEmail)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no account registered with %q", promoteEmail)
			}
			return err
		}
		cmd.Printf("user %d (%s) is now an admin\n", user.ID, user.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersPromoteCmd)

	usersPromoteCmd.Flags().StringVar(&promoteEmail, "email", "", "Email of the account to promote")
	_ = usersPromoteCmd.MarkFlagRequired("email")
}
