package main

import (
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/campusdesk/attendance/core"
	"github.com/campusdesk/attendance/core/attendance"
	"github.com/campusdesk/attendance/services/email"
	"github.com/campusdesk/attendance/services/logger"
	"github.com/campusdesk/attendance/services/report"
	"github.com/campusdesk/attendance/storage/database"
	"github.com/campusdesk/attendance/storage/database/postgres"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	acadRepo := pgrepos.NewAcademicRepository(db)
	appLogger := logsvc.NewRollbarLogger(logger, conf)

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: pgrepos.NewUserRepository(db),
		attSvc: attendance.NewService(
			pgrepos.NewAttendanceRepository(db),
			acadRepo,
			database.NewTransactor(db),
			emailsvc.NewConsoleService(conf, appLogger),
			reportsvc.NewXLSXExporter(),
			conf,
		),
		validate: validate,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
