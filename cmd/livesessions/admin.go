package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/live-sessions/internal/application"
	"github.com/example/live-sessions/internal/config"
	"github.com/example/live-sessions/internal/mediarepair"
	"github.com/example/live-sessions/internal/persistence/sqlite"
	"github.com/example/live-sessions/internal/persistence/sqlite/migration"
)

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, repair tools and storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd.OutOrStdout())
			ok := true

			cfg, err := opts.load()
			if err != nil {
				f.Check("Configuration", false, err.Error())
				cfg = config.Defaults()
				ok = false
			} else {
				f.Check("Configuration", true, "loaded")
			}
			logger := opts.logger(cfg, cmd.ErrOrStderr())

			for _, c := range newRepairer(cfg, logger).Capabilities() {
				if c.Available {
					f.Check(c.Strategy, true, c.Path)
				} else {
					f.Check(c.Strategy, false, c.Command+" not found on PATH; repairs fall back to the next strategy")
				}
			}

			if err := checkWritable(cfg.Storage.Dir); err != nil {
				f.Check("Media directory", false, err.Error())
				ok = false
			} else {
				f.Check("Media directory", true, cfg.Storage.Dir)
			}

			if detail, err := schemaDetail(cmd, cfg); err != nil {
				f.Check("Database", false, err.Error())
				ok = false
			} else {
				f.Check("Database", true, detail)
			}

			if cfg.Provider.BaseURL != "" {
				f.Check("Meeting provider", true, cfg.Provider.BaseURL)
			} else {
				f.Check("Meeting provider", false, "not set. Set LIVESESSIONS_PROVIDER_BASE_URL")
				ok = false
			}
			if cfg.OSSEnabled() {
				f.Check("Object storage mirror", true, cfg.OSS.Bucket)
			} else {
				f.Check("Object storage mirror", true, "disabled")
			}

			if ok {
				f.Success("\nAll prerequisites met.")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	_ = tmp.Close()
	return os.Remove(name)
}

func schemaDetail(cmd *cobra.Command, cfg config.Config) (string, error) {
	if _, err := os.Stat(cfg.SQLitePath); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%s does not exist yet; run migrate", cfg.SQLitePath)
	}
	store, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLitePath), nil)
	if err != nil {
		return "", err
	}
	defer store.Close()

	status, err := store.SchemaStatus(cmd.Context())
	if err != nil {
		return "", err
	}
	if len(status.Pending) > 0 {
		return "", fmt.Errorf("%d migrations pending; run migrate", len(status.Pending))
	}
	return fmt.Sprintf("%s at version %s", cfg.SQLitePath, status.CurrentVersion), nil
}

func newRepairCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <file>",
		Short: "Make a local MP4 file fast-start",
		Long:  "Runs the repair chain against a file on disk. The original bytes are kept next to it with a .backup suffix.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				cfg = config.Defaults()
			}
			logger := opts.logger(cfg, cmd.ErrOrStderr())

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			f := newFormatter(cmd.OutOrStdout())
			report, err := newRepairer(cfg, logger).Repair(cmd.Context(), path)
			f.RepairReport(report)
			if errors.Is(err, mediarepair.ErrRepairFailed) {
				f.Warning("Repair failed; the original file is still playable from " + mediarepair.BackupPath(path))
				return err
			}
			return err
		},
	}
}

type userAddOptions struct {
	email    string
	name     string
	role     string
	password string
}

func newUserCmd(opts *rootOptions) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	add := &userAddOptions{}
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := opts.logger(cfg, cmd.ErrOrStderr())
			store, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			password := add.password
			if password == "" {
				password = os.Getenv("LIVESESSIONS_USER_PASSWORD")
			}
			users := application.NewUserService(newUserRepositoryAdapter(store.Users), newID, time.Now, logger)
			user, err := users.CreateUser(cmd.Context(), application.CreateUserParams{
				Principal: application.SystemPrincipal,
				Input: application.UserInput{
					Email:       add.email,
					DisplayName: add.name,
					Role:        application.Role(add.role),
					Password:    password,
				},
			})
			if err != nil {
				return describeValidation(err)
			}
			newFormatter(cmd.OutOrStdout()).Success(fmt.Sprintf("Created %s %s (%s)", user.Role, user.Email, user.ID))
			return nil
		},
	}
	addCmd.Flags().StringVar(&add.email, "email", "", "sign-in email")
	addCmd.Flags().StringVar(&add.name, "name", "", "display name")
	addCmd.Flags().StringVar(&add.role, "role", string(application.RoleStudent), "instructor, student or admin")
	addCmd.Flags().StringVar(&add.password, "password", "", "password (defaults to LIVESESSIONS_USER_PASSWORD)")
	_ = addCmd.MarkFlagRequired("email")
	_ = addCmd.MarkFlagRequired("name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := opts.logger(cfg, cmd.ErrOrStderr())
			store, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			users, err := application.NewUserService(newUserRepositoryAdapter(store.Users), newID, time.Now, logger).
				ListUsers(cmd.Context(), application.SystemPrincipal)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tROLE\tNAME")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Role, u.DisplayName)
			}
			return tw.Flush()
		},
	}

	var enable bool
	disableCmd := &cobra.Command{
		Use:   "disable <email>",
		Short: "Block an account from signing in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := opts.logger(cfg, cmd.ErrOrStderr())
			store, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			user, err := store.Users.GetUserByEmail(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("lookup %s: %w", args[0], err)
			}
			if err := store.Users.SetUserDisabled(cmd.Context(), user.ID, !enable, time.Now()); err != nil {
				return err
			}
			state := "disabled"
			if enable {
				state = "enabled"
			}
			newFormatter(cmd.OutOrStdout()).Success(fmt.Sprintf("%s %s", user.Email, state))
			return nil
		},
	}
	disableCmd.Flags().BoolVar(&enable, "enable", false, "re-enable the account instead")

	userCmd.AddCommand(addCmd, listCmd, disableCmd)
	return userCmd
}

// describeValidation spells out field errors, which the plain error string omits.
func describeValidation(err error) error {
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) || len(vErr.FieldErrors) == 0 {
		return err
	}
	fields := make([]string, 0, len(vErr.FieldErrors))
	for field := range vErr.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	for _, field := range fields {
		fmt.Fprintf(&b, "\n  %s: %s", field, vErr.FieldErrors[field])
	}
	return fmt.Errorf("%w%s", err, b.String())
}
