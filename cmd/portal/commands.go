package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eaglesoak/portal"
	"github.com/eaglesoak/portal/core"
)

var (
	email        string
	password     string
	confirm      string
	role         string
	agreeToTerms bool

	limit int

	propertyFile string
	imagePaths   []string
	pdfPath      string

	contactName    string
	contactMessage string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and persist the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPortal(cmd, func(ctx context.Context, p *portal.Portal) error {
			user, err := p.Auth.Login(ctx, email, passwordOrEnv())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Email, user.Role)
			return nil
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log into it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPortal(cmd, func(ctx context.Context, p *portal.Portal) error {
			pw := passwordOrEnv()
			if confirm == "" {
				confirm = pw
			}
			user, err := p.Auth.Register(ctx, portal.SignUpInput{
				Email:           email,
				Password:        pw,
				ConfirmPassword: confirm,
				Role:            core.Role(role),
				AgreeToTerms:    agreeToTerms,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s as %s\n", user.Email, user.Role)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPortal(cmd, func(ctx context.Context, p *portal.Portal) error {
			return p.Auth.Logout(ctx)
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPortal(cmd, func(ctx context.Context, p *portal.Portal) error {
			user, err := p.Session.CurrentUser()
			if err != nil {
				return err
			}
			return printJSON(cmd, user)
		})
	},
}

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "List featured properties",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPortal(cmd, func(ctx context.Context, p *portal.Portal) error {
			list, err := p.Properties.List(ctx, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		})
	},
}

var propertyCmd = &cobra.Command{
	Use:   "property <id>",
	Short: "Show one property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPortal(cmd, func(ctx context.Context, p *portal.Portal) error {
			property, err := p.Properties.Get(ctx, core.ID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd, property)
		})
	},
}

var myListingsCmd = &cobra.Command{
	Use:   "my-listings",
	Short: "List the properties you have uploaded",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPortal(cmd, func(ctx context.Context, p *portal.Portal) error {
			list, err := p.Properties.MyListings(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		})
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a new listing (realtors only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(propertyFile)
		if err != nil {
			return err
		}
		var input core.PropertyInput
		if err := json.Unmarshal(data, &input); err != nil {
			return fmt.Errorf("failed to parse %s: %w", propertyFile, err)
		}

		var files []*os.File
		defer func() {
			for _, f := range files {
				_ = f.Close()
			}
		}()
		open := func(path string) (*portal.Upload, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
			return &portal.Upload{Filename: filepath.Base(path), Content: f}, nil
		}

		images := make([]portal.Upload, 0, len(imagePaths))
		for _, path := range imagePaths {
			upload, err := open(path)
			if err != nil {
				return err
			}
			images = append(images, *upload)
		}
		var pdf *portal.Upload
		if pdfPath != "" {
			if pdf, err = open(pdfPath); err != nil {
				return err
			}
		}

		return withPortal(cmd, func(ctx context.Context, p *portal.Portal) error {
			created, err := p.Properties.Create(ctx, input, images, pdf)
			if err != nil {
				return err
			}
			return printJSON(cmd, created)
		})
	},
}

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Send the contact form",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPortal(cmd, func(ctx context.Context, p *portal.Portal) error {
			err := p.Contact.Send(ctx, portal.ContactRequest{
				Name:    contactName,
				Email:   email,
				Message: contactMessage,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Thank you! Your message has been sent successfully.")
			return nil
		})
	},
}

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List the backend endpoints the portal calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, cleanup, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		out := cmd.OutOrStdout()
		for _, e := range p.Endpoints.Endpoints() {
			auth := ""
			if e.Bearer {
				auth = " (bearer)"
			}
			fmt.Fprintf(out, "%-6s %-20s %s%s\n", e.Method, e.Path, e.Metadata.OperationID, auth)
		}
		return nil
	},
}

func passwordOrEnv() string {
	if password != "" {
		return password
	}
	return os.Getenv("PORTAL_PASSWORD")
}

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, registerCmd} {
		cmd.Flags().StringVar(&email, "email", "", "account email")
		cmd.Flags().StringVar(&password, "password", "", "account password (or PORTAL_PASSWORD)")
		_ = cmd.MarkFlagRequired("email")
	}
	registerCmd.Flags().StringVar(&confirm, "confirm-password", "", "password confirmation (defaults to --password)")
	registerCmd.Flags().StringVar(&role, "role", string(core.RoleBuyer), "buyer or realtor")
	registerCmd.Flags().BoolVar(&agreeToTerms, "agree-to-terms", false, "accept the terms and conditions")

	listingsCmd.Flags().IntVar(&limit, "limit", 3, "number of listings")

	uploadCmd.Flags().StringVar(&propertyFile, "property", "", "JSON file with the listing details")
	uploadCmd.Flags().StringArrayVar(&imagePaths, "image", nil, "image file, repeat up to 5 times")
	uploadCmd.Flags().StringVar(&pdfPath, "pdf", "", "optional brochure PDF")
	_ = uploadCmd.MarkFlagRequired("property")

	contactCmd.Flags().StringVar(&contactName, "name", "", "your full name")
	contactCmd.Flags().StringVar(&email, "email", "", "your email")
	contactCmd.Flags().StringVar(&contactMessage, "message", "", "message")
}
