package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/onsync/onsync/internal/auth"
	"github.com/onsync/onsync/internal/rbac"
	"github.com/onsync/onsync/internal/shared"
)

type whoamiOutput struct {
	Authenticated bool              `json:"authenticated"`
	User          *rbac.Identity    `json:"user,omitempty"`
	RoleLabel     string            `json:"role_label,omitempty"`
	Capabilities  []rbac.Capability `json:"capabilities,omitempty"`
}

func describe(identity *rbac.Identity) whoamiOutput {
	if identity == nil {
		return whoamiOutput{}
	}
	out := whoamiOutput{
		Authenticated: true,
		User:          identity,
		RoleLabel:     identity.Role.DisplayName(),
	}
	if identity.Permissions != nil {
		out.Capabilities = identity.Permissions.Granted()
	}
	return out
}

func (c *cli) printIdentity(identity *rbac.Identity) error {
	view := describe(identity)
	if c.jsonOutput {
		return c.printJSON(view)
	}
	if !view.Authenticated {
		fmt.Fprintln(c.out, "Not signed in")
		return nil
	}
	fmt.Fprintf(c.out, "%s <%s>\n", identity.Name, identity.Email)
	fmt.Fprintf(c.out, "Role:    %s\n", view.RoleLabel)
	fmt.Fprintf(c.out, "Account: %s (%d)\n", identity.AccountName, identity.AccountID)
	switch {
	case identity.Permissions == nil:
		fmt.Fprintln(c.out, "Capabilities: not loaded")
	case len(view.Capabilities) == 0:
		fmt.Fprintln(c.out, "Capabilities: none")
	default:
		names := make([]string, 0, len(view.Capabilities))
		for _, capability := range view.Capabilities {
			names = append(names, string(capability))
		}
		fmt.Fprintf(c.out, "Capabilities: %s\n", strings.Join(names, ", "))
	}
	return nil
}

func newLoginCmd(c *cli) *cobra.Command {
	var creds auth.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.Password == "" {
				password, err := c.readSecret("Password: ")
				if err != nil {
					return err
				}
				creds.Password = password
			}
			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			identity, err := svc.Auth.Login(cmd.Context(), creds)
			if err != nil {
				return err
			}
			return c.printIdentity(identity)
		},
	}
	cmd.Flags().StringVarP(&creds.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSignupCmd(c *cli) *cobra.Command {
	var req auth.SignupRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account with its first user and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.User.Password == "" {
				password, err := c.readSecret("Password: ")
				if err != nil {
					return err
				}
				req.User.Password = password
			}
			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			identity, err := svc.Auth.Signup(cmd.Context(), req)
			if err != nil {
				return err
			}
			return c.printIdentity(identity)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Account.Name, "account", "", "account (organisation) name")
	f.StringVar(&req.Account.Email, "account-email", "", "account contact email")
	f.StringVar(&req.Account.CEOName, "ceo", "", "account CEO name")
	f.StringVar(&req.Account.Niche, "niche", "", "account niche")
	f.StringVar(&req.Account.Location, "location", "", "account location")
	f.StringVar(&req.Account.WebsiteURL, "website", "", "account website URL")
	f.StringVar(&req.Account.Timezone, "timezone", "", "account timezone")
	f.StringVar(&req.User.Name, "name", "", "user full name")
	f.StringVarP(&req.User.Email, "email", "e", "", "user email")
	f.StringVarP(&req.User.Password, "password", "p", "", "password (read from stdin when empty)")
	f.StringVar(&req.User.PhoneNumber, "phone", "", "user phone number")
	f.StringVar(&req.User.JobRole, "job-role", "", "user job role")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(whoamiOutput{})
			}
			fmt.Fprintln(c.out, "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			identity := svc.Store.Get()
			if err := c.printIdentity(identity); err != nil {
				return err
			}
			if identity == nil {
				return fmt.Errorf("whoami: %w", shared.ErrUnauthenticated)
			}
			return nil
		},
	}
}

func newRefreshCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Reload the identity and permissions from the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			identity, err := svc.Auth.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			return c.printIdentity(identity)
		},
	}
}
