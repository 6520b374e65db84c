package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jashmhta/HMSSSS-sub000/internal/domain/users"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/db"
	"github.com/jashmhta/HMSSSS-sub000/internal/platform/validate"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := users.RegisterRequest{Role: auth.RoleAdmin}
			req.Email, _ = cmd.Flags().GetString("email")
			req.Password, _ = cmd.Flags().GetString("password")
			req.FirstName, _ = cmd.Flags().GetString("first-name")
			req.LastName, _ = cmd.Flags().GetString("last-name")
			if err := validate.New().Validate(req); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			ctx := cmd.Context()

			pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2}, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			secret, err := jwtSecret(cfg)
			if err != nil {
				return err
			}
			tokens := auth.NewTokenIssuer(secret, cfg.JWTIssuer, cfg.JWTTTL)
			u, err := users.NewService(users.NewRepoPG(pool), tokens, logger).Register(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("Created admin %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	createAdmin.Flags().String("email", "", "Login email")
	createAdmin.Flags().String("password", "", "Initial password (min 8 characters)")
	createAdmin.Flags().String("first-name", "", "First name")
	createAdmin.Flags().String("last-name", "", "Last name")
	for _, f := range []string{"email", "password", "first-name", "last-name"} {
		_ = createAdmin.MarkFlagRequired(f)
	}

	cmd.AddCommand(createAdmin)
	return cmd
}
