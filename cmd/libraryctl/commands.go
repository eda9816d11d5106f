package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mmeshcher/library-system/internal/cache"
	"github.com/mmeshcher/library-system/internal/holds"
	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/openlibrary"
	"github.com/mmeshcher/library-system/internal/service"
	"github.com/mmeshcher/library-system/internal/validation"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			version, err := repo.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
			return nil
		},
	}
}

func newSweepCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Release expired holds once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			var mirror holds.Mirror
			if a.cfg.RedisURL != "" {
				client, err := cache.NewClient(cmd.Context(), a.cfg.RedisURL, a.logger)
				if err != nil {
					return err
				}
				defer client.Close()
				mirror = cache.NewHoldMirror(client)
			}

			holder := holds.NewHolder(repo, mirror, a.logger, holds.Options{
				Window:     a.cfg.HoldWindow,
				LoanPeriod: a.cfg.LoanPeriod,
			})
			if err := holder.Load(cmd.Context()); err != nil {
				return err
			}

			released := holder.Sweep(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "released holds: %d\n", released)
			return nil
		},
	}
}

// readPassword читает пароль без эха, если stdin является терминалом.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &line); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(cmd.OutOrStdout(), prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func newCreateStaffCommand(a *app) *cobra.Command {
	var (
		name     string
		email    string
		role     string
		branchID int64
	)

	cmd := &cobra.Command{
		Use:   "create-staff",
		Short: "Create a librarian or admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			staffRole := model.StaffRole(role)
			if staffRole != model.StaffRoleLibrarian && staffRole != model.StaffRoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}

			password, err := readPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			if len(password) < 8 {
				return errors.New("password must be at least 8 characters")
			}

			repo, err := a.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			st := model.Staff{Name: name, Email: email, Role: staffRole}
			if branchID > 0 {
				st.BranchID = &branchID
			}

			id, err := service.NewService(repo, nil, nil).CreateStaff(cmd.Context(), st, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "staff created: id=%d role=%s\n", id, staffRole)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "staff member name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&role, "role", string(model.StaffRoleLibrarian), "librarian or admin")
	cmd.Flags().Int64Var(&branchID, "branch", 0, "home branch id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newImportCommand(a *app) *cobra.Command {
	var (
		branchID int64
		format   string
	)

	cmd := &cobra.Command{
		Use:   "import <isbn>",
		Short: "Create a book copy from Open Library metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookFormat := model.BookFormat(format)
			if !bookFormat.Valid() {
				return fmt.Errorf("unknown format %q", format)
			}

			repo, err := a.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			svc := service.NewService(repo, nil, openlibrary.NewClient(a.cfg.OpenLibraryURL, 1))

			var branch *int64
			if branchID > 0 {
				branch = &branchID
			}

			book, err := svc.ImportByISBN(cmd.Context(), args[0], branch, bookFormat)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "book created: id=%d title=%q\n", book.ID, book.Title)
			return nil
		},
	}

	cmd.Flags().Int64Var(&branchID, "branch", 0, "branch id")
	cmd.Flags().StringVar(&format, "format", string(model.BookFormatPhysical), "physical or digital")

	return cmd
}

func newHoldCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hold <book_id>",
		Short: "Show the hold mirrored in Redis for a book copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := validation.ParseID(args[0])
			if err != nil {
				return err
			}
			if a.cfg.RedisURL == "" {
				return errors.New("REDIS_URL is required")
			}

			client, err := cache.NewClient(cmd.Context(), a.cfg.RedisURL, a.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			hold, ok, err := cache.NewHoldMirror(client).GetHold(cmd.Context(), bookID)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "no live hold for book %d\n", bookID)
				return nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(hold)
		},
	}
}
