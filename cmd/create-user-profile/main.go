// Package main creates or updates a user and attaches an organisation
// profile to it. All changes happen in one transaction.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"

	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/infrastructure"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/repository"
	"webcaf.gov.uk/webcaf/internal/service"
)

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "create-user-profile: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "create-user-profile: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	Email              string
	Organisation       string
	Role               domain.Role
	CreateOrganisation bool
	Superuser          bool
}

func parseOptions(args []string) (options, error) {
	var (
		opts options
		role string
	)
	fs := flag.NewFlagSet("create-user-profile", flag.ContinueOnError)
	fs.StringVar(&opts.Email, "email", "", "user email, also used as the username (required)")
	fs.StringVar(&opts.Organisation, "organisation", "", "organisation name (required)")
	fs.StringVar(&role, "role", string(domain.RoleOrganisationLead), "profile role")
	fs.BoolVar(&opts.CreateOrganisation, "create-organisation", false, "create the organisation if it does not exist")
	fs.BoolVar(&opts.Superuser, "superuser", false, "grant superuser and staff")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.Email = strings.TrimSpace(opts.Email)
	opts.Organisation = strings.TrimSpace(opts.Organisation)
	opts.Role = domain.Role(strings.TrimSpace(role))

	if opts.Email == "" {
		return options{}, errors.New("--email is required")
	}
	if opts.Organisation == "" {
		return options{}, errors.New("--organisation is required")
	}
	if !opts.Role.Valid() {
		return options{}, fmt.Errorf("invalid role %q, valid roles: %s", opts.Role, strings.Join(validRoles(), ", "))
	}
	return opts, nil
}

func validRoles() []string {
	out := make([]string, 0, len(domain.Roles))
	for _, info := range domain.Roles {
		out = append(out, string(info.Role))
	}
	slices.Sort(out)
	return out
}

func run(opts options) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	repos := service.ReposFromStore(repository.NewStore(db.Pool))
	var res *result
	if err := repos.InTx(ctx, func(tx service.Repos) error {
		res, err = ensureProfile(ctx, tx, opts)
		return err
	}); err != nil {
		return err
	}

	fmt.Printf("UserProfile ready: user=%s organisation=%s role=%s\n", res.User.Username, res.Organisation.Name, res.Profile.Role)
	return nil
}
