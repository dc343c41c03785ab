package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"mediabib-service/internal/notify"
	"mediabib-service/internal/policy"
	"mediabib-service/internal/service"
	"mediabib-service/pkg/config"
	"mediabib-service/pkg/database"
	"mediabib-service/pkg/logger"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gorm.io/gorm"
)

const serviceName = "mediabib-service"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mediabibctl",
		Short:        "Operator commands for the MediaBib service",
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCmd(), newCreateSuperadminCmd(), newCreateLibraryCmd())
	return root
}

// setup loads configuration, the logger and a migrated store
func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(serviceName)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: "mediabibctl",
	}); err != nil {
		return nil, nil, err
	}
	db, err := database.InitDB(&cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func newService(cfg *config.Config, db *gorm.DB) *service.Service {
	return service.New(db, service.Options{
		Notifier: notify.New(cfg.Mail, logger.GetLogger()),
		Accounts: cfg.Accounts,
	})
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", cfg.DB.Driver)
			return nil
		},
	}
}

func newCreateSuperadminCmd() *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "create-superadmin",
		Short: "Create a superadmin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword("Password: ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			confirm, err := readPassword("Password (again): ")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}

			cfg, db, err := setup()
			if err != nil {
				return err
			}
			user, err := newService(cfg, db).CreateSuperadmin(context.Background(), service.SuperadminInput{
				Username: username,
				Email:    email,
				Password: password,
			})
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Superadmin %q created with ID %d\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newCreateLibraryCmd() *cobra.Command {
	var in service.LibraryInput
	cmd := &cobra.Command{
		Use:   "create-library",
		Short: "Create a library",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := setup()
			if err != nil {
				return err
			}
			// the operator acts as a superadmin without an account
			res, err := newService(cfg, db).CreateLibrary(context.Background(), policy.Superadmin{}, in)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Library %s created with ID %d\n", res.Library, res.Library.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "library name")
	cmd.Flags().StringVar(&in.Code, "code", "", "unique library code, used as card number prefix")
	cmd.Flags().StringVar(&in.Address, "address", "", "street address")
	cmd.Flags().StringVar(&in.PostalCode, "postal-code", "", "postal code")
	cmd.Flags().StringVar(&in.City, "city", "", "city")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&in.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&in.Website, "website", "", "website URL")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

// readPassword reads a password without echoing it
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(bytePassword)), nil
}

// describe flattens validation errors into one readable line per field
func describe(err error) error {
	var ve *service.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	lines := make([]string, 0, len(ve.Fields))
	for field, msgs := range ve.Fields {
		lines = append(lines, fmt.Sprintf("  %s: %s", field, strings.Join(msgs, " ")))
	}
	return fmt.Errorf("invalid input:\n%s", strings.Join(lines, "\n"))
}
