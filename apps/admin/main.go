package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/rollcall/apps/di"
	"github.com/trezcool/rollcall/core"
)

func main() {
	logger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	c, err := di.New(context.Background(), core.NewConfig(), di.Options{LogPrefix: "ADMIN : "})
	if err != nil {
		logger.Fatal(err)
	}

	cli := commandLine{
		db:            c.DB,
		usrRepo:       c.UserRepo,
		attendanceSvc: c.AttendanceSvc,
	}
	err = cli.run(os.Args)
	c.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
