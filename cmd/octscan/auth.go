package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/octscan/octscan/internal/domain/roles"
	"github.com/octscan/octscan/internal/platform/gateway"
)

func (c *cli) registerCmd() *cobra.Command {
	var reg gateway.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and start a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.session(ctx)
			if err != nil {
				return err
			}
			s, err := sess.Register(ctx, reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Registered %s (%s)\n", s.User.Username, s.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.Username, "username", "", "account name")
	cmd.Flags().StringVar(&reg.Email, "email", "", "email address")
	cmd.Flags().StringVar(&reg.Password, "password", "", "password")
	cmd.Flags().StringVar(&reg.Role, "role", string(roles.Technician), "doctor or technician")
	return cmd
}

func (c *cli) loginCmd() *cobra.Command {
	var creds gateway.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.session(ctx)
			if err != nil {
				return err
			}
			s, err := sess.Login(ctx, creds)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Logged in as %s (%s)\n", s.User.Username, s.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&creds.Username, "username", "", "account name")
	cmd.Flags().StringVar(&creds.Password, "password", "", "password")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.session(ctx)
			if err != nil {
				return err
			}
			if err := sess.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Logged out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user and what they may do",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.session(ctx)
			if err != nil {
				return err
			}

			var u *gateway.User
			if offline {
				if u = sess.StoredUser(ctx); u == nil {
					return fmt.Errorf("no stored session")
				}
			} else if u, err = sess.CurrentUser(ctx); err != nil {
				return err
			}

			actions := roles.Allowed(roles.Parse(u.Role))
			names := make([]string, len(actions))
			for i, a := range actions {
				names[i] = string(a)
			}
			fmt.Fprintf(c.out, "%s <%s>\nrole:    %s\nallowed: %s\n", u.Username, u.Email, u.Role, strings.Join(names, ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "use the stored user instead of asking the backend")
	return cmd
}
