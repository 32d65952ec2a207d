package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/live-sessions/pkg/apiclient"
)

const defaultServerURL = "http://localhost:8080"

type clientOptions struct {
	server    string
	statePath string
}

func (o *clientOptions) client(cmd *cobra.Command) (*apiclient.Client, error) {
	server := o.server
	if server == "" {
		server = os.Getenv("LIVESESSIONS_SERVER")
	}
	if server == "" {
		server = defaultServerURL
	}
	statePath := o.statePath
	if statePath == "" {
		statePath = apiclient.DefaultStatePath()
	}
	f := newFormatter(cmd.ErrOrStderr())
	return apiclient.New(apiclient.Config{
		BaseURL: server,
		Store:   apiclient.NewFileStore(statePath),
		OnUnauthenticated: func() {
			f.Warning("Session expired. Run `livesessions client login` again.")
		},
	})
}

func newClientCmd() *cobra.Command {
	opts := &clientOptions{}
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Call a running live-sessions API",
	}
	clientCmd.PersistentFlags().StringVar(&opts.server, "server", "", "API base URL (defaults to LIVESESSIONS_SERVER or "+defaultServerURL+")")
	clientCmd.PersistentFlags().StringVar(&opts.statePath, "state", "", "credentials file (defaults to the user config dir)")

	clientCmd.AddCommand(
		newClientLoginCmd(opts),
		newClientLogoutCmd(opts),
		newClientSessionsCmd(opts),
		newClientCreateCmd(opts),
		newClientTransitionCmd(opts, "start", "Start a scheduled session", (*apiclient.Client).StartSession),
		newClientTransitionCmd(opts, "end", "End a live session", (*apiclient.Client).EndSession),
		newClientTransitionCmd(opts, "cancel", "Cancel a scheduled session", (*apiclient.Client).CancelSession),
		newClientJoinCmd(opts),
	)
	return clientCmd
}

func newClientLoginCmd(opts *clientOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("LIVESESSIONS_PASSWORD")
			}
			creds, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			newFormatter(cmd.OutOrStdout()).Success(fmt.Sprintf("Signed in as %s (%s)", email, creds.Role))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "sign-in email")
	cmd.Flags().StringVar(&password, "password", "", "password (defaults to LIVESESSIONS_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newClientLogoutCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored refresh token and forget the credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			newFormatter(cmd.OutOrStdout()).Success("Signed out")
			return nil
		},
	}
}

func newClientSessionsCmd(opts *clientOptions) *cobra.Command {
	var list apiclient.ListOptions
	var statuses string
	var from, to string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			if statuses != "" {
				list.Statuses = strings.Split(statuses, ",")
			}
			if list.From, err = parseFlagTime("from", from); err != nil {
				return err
			}
			if list.To, err = parseFlagTime("to", to); err != nil {
				return err
			}
			sessions, err := c.ListSessions(cmd.Context(), list)
			if err != nil {
				return err
			}
			newFormatter(cmd.OutOrStdout()).Sessions(sessions)
			return nil
		},
	}
	cmd.Flags().StringVar(&list.CourseID, "course", "", "only sessions of this course")
	cmd.Flags().StringVar(&list.InstructorID, "instructor", "", "only sessions of this instructor")
	cmd.Flags().StringVar(&statuses, "status", "", "comma separated persisted statuses")
	cmd.Flags().StringVar(&from, "from", "", "earliest start time (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "latest start time, exclusive (RFC3339)")
	return cmd
}

func newClientCreateCmd(opts *clientOptions) *cobra.Command {
	var input apiclient.SessionInput
	var start string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			if input.StartTime, err = parseFlagTime("start", start); err != nil {
				return err
			}
			session, err := c.CreateSession(cmd.Context(), input)
			if err != nil {
				return describeAPIError(err)
			}
			newFormatter(cmd.OutOrStdout()).Session(session)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.CourseID, "course", "", "course id")
	cmd.Flags().StringVar(&input.Title, "title", "", "session title")
	cmd.Flags().StringVar(&input.Description, "description", "", "agenda shown to participants")
	cmd.Flags().StringVar(&start, "start", "", "start time (RFC3339)")
	cmd.Flags().IntVar(&input.DurationMinutes, "minutes", 60, "duration in minutes")
	cmd.Flags().StringVar(&input.SessionType, "type", "live-class", "session type")
	cmd.Flags().StringVar(&input.Timezone, "timezone", "", "IANA timezone sent to the provider")
	cmd.Flags().IntVar(&input.MaxParticipants, "max-participants", 0, "participant cap, 0 for none")
	_ = cmd.MarkFlagRequired("course")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

type transitionFunc func(c *apiclient.Client, ctx context.Context, id string) (apiclient.Session, error)

func newClientTransitionCmd(opts *clientOptions, use, short string, fn transitionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			session, err := fn(c, cmd.Context(), args[0])
			if err != nil {
				return describeAPIError(err)
			}
			newFormatter(cmd.OutOrStdout()).Session(session)
			return nil
		},
	}
}

func newClientJoinCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <session-id>",
		Short: "Get the join link of a live session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			join, err := c.JoinSession(cmd.Context(), args[0])
			if err != nil {
				return describeAPIError(err)
			}
			newFormatter(cmd.OutOrStdout()).Join(join)
			return nil
		},
	}
}

func parseFlagTime(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

// describeAPIError appends the server's field errors to the message.
func describeAPIError(err error) error {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Fields) == 0 {
		return err
	}
	parts := make([]string, 0, len(apiErr.Fields))
	for field, msg := range apiErr.Fields {
		parts = append(parts, field+": "+msg)
	}
	sort.Strings(parts)
	return fmt.Errorf("%w (%s)", err, joinList(parts))
}
