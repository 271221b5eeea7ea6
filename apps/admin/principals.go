package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/principal"
)

// addStaff creates a staff member in an existing school.
func (cli *commandLine) addStaff(ctx context.Context, schoolID string, ns principal.NewStaff) error {
	school, err := cli.repo.GetSchool(ctx, core.CleanString(schoolID))
	if err != nil {
		return err
	}
	staff, err := cli.dirSvc.CreateStaff(ctx, access.OperatorScope(school.ID), ns)
	if err != nil {
		return err
	}
	writeLine(cli.out, "%s %s (%s) added to %s", staff.Role, staff.Name, staff.ID, school.Name)
	return nil
}

// resetPassword holds the new password to the same policy as the API.
func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	sp := principal.SetPassword{Email: email, Password: pwd}
	if err := sp.Validate(cli.validate); err != nil {
		return err
	}
	staff, err := cli.repo.GetStaffByEmail(ctx, sp.Email)
	if err != nil {
		return err
	}
	if err := staff.SetPassword(sp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return cli.repo.UpdateStaffPassword(ctx, staff.ID, staff.PasswordHash)
}

// setActive goes through the directory so the denylist is kept in sync.
func (cli *commandLine) setActive(ctx context.Context, kind principal.Kind, id string, active bool) error {
	p, err := cli.repo.FindPrincipalByID(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := cli.dirSvc.SetActive(ctx, access.OperatorScope(p.School()), kind, id, active); err != nil {
		return err
	}
	state := "deactivated"
	if active {
		state = "activated"
	}
	writeLine(cli.out, "%s %s %s", kind, id, state)
	return nil
}
