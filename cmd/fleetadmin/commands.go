package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fleettrack/backend/internal/auth"
	"github.com/fleettrack/backend/internal/identity"
	"github.com/fleettrack/backend/internal/invites"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/organizations"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, closer, err := connect(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closer()
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newBootstrapCmd() *cobra.Command {
	var subject, email string
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Grant super_admin to an identity provider subject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(subject)
			if err != nil {
				return fmt.Errorf("--subject: %w", err)
			}
			if !strings.Contains(email, "@") {
				return fmt.Errorf("--email: %q is not an email address", email)
			}
			rt, closer, err := connect(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closer()

			timeout := rt.cfg.Store.QueryTimeout
			provisioner := auth.NewProvisioner(auth.NewRepository(rt.pool, timeout), rt.logger)
			profile, err := provisioner.PromoteSuperAdmin(cmd.Context(), &identity.Subject{ID: id, Email: email})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is %s\n", profile.Email, profile.ID, profile.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "identity provider subject id")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newOrgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}

	var name, subdomain, contact string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an active organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, closer, err := connect(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closer()

			svc := organizations.NewService(organizations.NewRepository(rt.pool, rt.cfg.Store.QueryTimeout), rt.logger)
			in := organizations.CreateInput{Name: name}
			if subdomain != "" {
				in.Subdomain = &subdomain
			}
			if contact != "" {
				in.ContactEmail = &contact
			}
			o, err := svc.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", o.ID, o.Name)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "organization name")
	create.Flags().StringVar(&subdomain, "subdomain", "", "optional subdomain")
	create.Flags().StringVar(&contact, "contact-email", "", "optional contact email")
	_ = create.MarkFlagRequired("name")

	org.AddCommand(create)
	return org
}

func newInviteCmd() *cobra.Command {
	invite := &cobra.Command{Use: "invite", Short: "Manage invites"}

	var orgID, email, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Invite an email address into an organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(orgID)
			if err != nil {
				return fmt.Errorf("--org: %w", err)
			}
			r, ok := models.ParseRole(role)
			if !ok {
				return fmt.Errorf("--role: unknown role %q", role)
			}
			rt, closer, err := connect(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closer()

			timeout := rt.cfg.Store.QueryTimeout
			ledger := invites.NewLedger(
				invites.NewRepository(rt.pool, timeout),
				organizations.NewRepository(rt.pool, timeout),
				rt.cfg.Invite.TTL,
				rt.logger,
			)
			inv, err := ledger.CreateInvite(cmd.Context(), invites.CreateInput{OrganizationID: id, Email: email, Role: r})
			if err != nil {
				return err
			}
			svc := invites.NewService(ledger, nil, nil, rt.cfg.Invite.AcceptURLBase, rt.logger)
			fmt.Fprintf(cmd.OutOrStdout(), "invite %s for %s expires %s\n%s\n",
				inv.ID, inv.Email, inv.ExpiresAt.Format("2006-01-02 15:04 MST"), svc.AcceptURL(inv.Token))
			return nil
		},
	}
	create.Flags().StringVar(&orgID, "org", "", "organization id")
	create.Flags().StringVar(&email, "email", "", "invitee email")
	create.Flags().StringVar(&role, "role", string(models.DefaultRole), "user, admin or super_admin")
	_ = create.MarkFlagRequired("org")
	_ = create.MarkFlagRequired("email")

	invite.AddCommand(create)
	return invite
}
