package main

import (
	"log"
	"os"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/form"
	"github.com/trezcool/feedback/core/report"
	"github.com/trezcool/feedback/core/user"
	emailsvc "github.com/trezcool/feedback/services/email"
	logsvc "github.com/trezcool/feedback/services/logger"
	"github.com/trezcool/feedback/storage/database"
	sqlxrepos "github.com/trezcool/feedback/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()

	rbLogger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	rbLogger.Enable(!conf.Debug)
	logger = rbLogger

	core.ParseEmailTemplates(logger)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	errAndDie(db.Ping())

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo)
	formSvc := form.NewService(sqlxrepos.NewFormRepository(db), usrSvc, mailSvc, logger)

	// start CLI
	cli := commandLine{
		db:        db,
		usrRepo:   usrRepo,
		usrSvc:    usrSvc,
		formSvc:   formSvc,
		reportSvc: report.NewService(formSvc, usrSvc),
		out:       os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	rbLogger.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("\nerror: " + err.Error())
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
