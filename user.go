package main

import (
	"context"
	"fmt"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"

	"github.com/zlnvch/deskfolio/service"
)

var userCMD = &cobra.Command{
	Use:   "user",
	Short: "manage login accounts",
}

var (
	userEmail    string
	userPassword string
	userName     string
)

var userAddCMD = &cobra.Command{
	Use:   "add",
	Short: "create a login account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		ctx := context.Background()
		deskfolioStore, err := newStore(ctx, cfg)
		if err != nil {
			return errors.Wrapf(err, "create %s store", cfg.StoreBackend)
		}
		if deskfolioStore == nil {
			return errors.New("STORE_BACKEND must be set to add users")
		}
		defer closeStore(deskfolioStore)

		svc := service.NewService(deskfolioStore, nil, nil, cfg.JWT, cfg.StoreTimeout)
		user, err := svc.CreateUser(ctx, userEmail, userPassword, userName)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Email, user.Id)
		return nil
	},
}

func init() {
	userAddCMD.Flags().StringVar(&userEmail, "email", "", "login email")
	userAddCMD.Flags().StringVar(&userPassword, "password", "", "login password, at least 8 characters")
	userAddCMD.Flags().StringVar(&userName, "name", "", "display name")
	_ = userAddCMD.MarkFlagRequired("email")
	_ = userAddCMD.MarkFlagRequired("password")

	userCMD.AddCommand(userAddCMD)
	rootCMD.AddCommand(userCMD)
}
