package main

import (
	"fmt"

	"github.com/KSEB-AI-3/gardendoctor-backend-sub000/internal/tokenkit"
	"github.com/KSEB-AI-3/gardendoctor-backend-sub000/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCreateUserCommand() *cobra.Command {
	createUserCmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an application user account",
		RunE:  runCreateUser,
	}

	createUserCmd.Flags().String("email", "", "Login identifier for the new account")
	createUserCmd.Flags().String("password", "", "Secret for the new account")
	createUserCmd.Flags().String("display_name", "", "Human-readable name")

	return createUserCmd
}

func runCreateUser(command *cobra.Command, arguments []string) error {
	email, _ := command.Flags().GetString("email")
	password, _ := command.Flags().GetString("password")
	displayName, _ := command.Flags().GetString("display_name")

	if email == "" {
		return configError("create_user.missing_email", "email must be provided")
	}
	if password == "" {
		return configError("create_user.missing_password", "password must be provided")
	}

	databaseURL := viper.GetString("database_url")
	if databaseURL == "" {
		return configError(configCodeMissingDatabaseURL, "database_url must be provided")
	}

	gormDB, _, openErr := tokenkit.OpenDatabase(databaseURL)
	if openErr != nil {
		return openErr
	}
	userStore, storeErr := users.NewStore(command.Context(), gormDB)
	if storeErr != nil {
		return storeErr
	}

	passwordHash, hashErr := users.HashPassword(password)
	if hashErr != nil {
		return hashErr
	}

	userID, createErr := userStore.Create(command.Context(), email, passwordHash, displayName)
	if createErr != nil {
		return createErr
	}

	fmt.Fprintf(command.OutOrStdout(), "created user %s\n", userID)
	return nil
}
