package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/campusdesk/attendance/core/attendance"
	"github.com/campusdesk/attendance/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sqlx.DB
	usrRepo  user.Repository
	attSvc   attendance.Service
	validate *validator.Validate
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-admin] - create or update a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  migrate COMMAND [ARGS] - run a database migration command (up, down, status, ...)")
	fmt.Println("  export -branch B -year Y -semester S -section S -subject CODE -from DATE -to DATE -entry E -out FILE - export attendance percentages")
}

func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant every role to the user.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	exportCmd := flag.NewFlagSet("export", flag.ContinueOnError)
	exportOpts := exportOptions{}
	exportCmd.StringVar(&exportOpts.branch, "branch", "", "Branch code.")
	exportCmd.IntVar(&exportOpts.year, "year", 0, "Academic year.")
	exportCmd.IntVar(&exportOpts.semester, "semester", 0, "Semester.")
	exportCmd.StringVar(&exportOpts.section, "section", "", "Section.")
	exportCmd.StringVar(&exportOpts.subject, "subject", "", "Subject code. Empty for the overall percentage.")
	exportCmd.StringVar(&exportOpts.from, "from", "", "First day (YYYY-MM-DD).")
	exportCmd.StringVar(&exportOpts.to, "to", "", "Last day (YYYY-MM-DD).")
	exportCmd.StringVar(&exportOpts.entry, "entry", "", "Entry label of the report.")
	exportCmd.StringVar(&exportOpts.out, "out", "", "Output .xlsx file.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserUname, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "export":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if exportOpts.out == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.export(exportOpts)

	default:
		cli.printUsage()
		return errHelp
	}
}
