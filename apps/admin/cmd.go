package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/academia/core/principal"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                    - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  addstaff -school ID -email EMAIL -name NAME [-role ROLE]  - create a staff member")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                                - reset a staff member's password")
	fmt.Fprintln(cli.out, "  deactivate -kind staff|student -id ID                     - deactivate a principal")
	fmt.Fprintln(cli.out, "  activate -kind staff|student -id ID                       - reactivate a principal")
	fmt.Fprintln(cli.out, "  genkey [-bytes N]                                         - print a random hex secret")
	fmt.Fprintln(cli.out, "  encrypt                                                   - seal a value with the encryption key")
	fmt.Fprintln(cli.out, "  decrypt                                                   - open a sealed value")
}

// needsStorage reports whether the command reads or writes the database.
func needsStorage(args []string) bool {
	if len(args) < 2 {
		return false
	}
	switch args[1] {
	case "migrate", "addstaff", "resetpassword", "deactivate", "activate":
		return true
	}
	return false
}

// needsEncoder reports whether the command seals or opens values.
func needsEncoder(args []string) bool {
	return len(args) > 1 && (args[1] == "encrypt" || args[1] == "decrypt")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return err
	}
	return nil
}

// prompt reads a value from the terminal without echoing it.
func (cli *commandLine) prompt(label string) (string, error) {
	fmt.Fprint(cli.out, label)
	val, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addStaffCmd := cli.newFlagSet("addstaff")
	addStaffSchool := addStaffCmd.String("school", "", "The school id.")
	addStaffEmail := addStaffCmd.String("email", "", "The staff member's email.")
	addStaffName := addStaffCmd.String("name", "", "The staff member's full name.")
	addStaffRole := addStaffCmd.String("role", string(principal.RolePrincipal), "PRINCIPAL or TEACHER. The password will be prompted next.")

	resetPasswordCmd := cli.newFlagSet("resetpassword")
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The staff member's email. The password will be prompted next.")

	setActiveCmd := cli.newFlagSet(args[1])
	setActiveKind := setActiveCmd.String("kind", "", "staff or student.")
	setActiveID := setActiveCmd.String("id", "", "The principal's id.")

	genKeyCmd := cli.newFlagSet("genkey")
	genKeyBytes := genKeyCmd.Int("bytes", defaultKeyBytes, "Number of random bytes.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addstaff":
		if err := cli.parse(addStaffCmd, args[2:]); err != nil {
			return err
		}
		if *addStaffSchool == "" || *addStaffEmail == "" || *addStaffName == "" {
			addStaffCmd.Usage()
			return errHelp
		}
		pwd, err := cli.prompt("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addStaffCmd.Usage()
			return errHelp
		}
		return cli.addStaff(ctx, *addStaffSchool, principal.NewStaff{
			Name:     *addStaffName,
			Email:    *addStaffEmail,
			Role:     principal.Role(*addStaffRole),
			Password: pwd,
		})

	case "resetpassword":
		if err := cli.parse(resetPasswordCmd, args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.prompt("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, pwd)

	case "deactivate", "activate":
		if err := cli.parse(setActiveCmd, args[2:]); err != nil {
			return err
		}
		kind := principal.Kind(*setActiveKind)
		if !kind.Valid() || *setActiveID == "" {
			setActiveCmd.Usage()
			return errHelp
		}
		return cli.setActive(ctx, kind, *setActiveID, args[1] == "activate")

	case "genkey":
		if err := cli.parse(genKeyCmd, args[2:]); err != nil {
			return err
		}
		return cli.genKey(*genKeyBytes)

	case "encrypt":
		val, err := cli.prompt("Enter value:")
		if err != nil {
			return err
		}
		if val == "" {
			return errHelp
		}
		return cli.encrypt(val)

	case "decrypt":
		val, err := cli.prompt("Enter envelope:")
		if err != nil {
			return err
		}
		if val == "" {
			return errHelp
		}
		return cli.decrypt(val)

	default:
		cli.printUsage()
		return errHelp
	}
}

func writeLine(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
