package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/nocturnefm/nocturne/db"
	"github.com/nocturnefm/nocturne/federation"
	"github.com/nocturnefm/nocturne/tasks"
	"github.com/nocturnefm/nocturne/util"
	"github.com/nocturnefm/nocturne/web"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "nocturne",
	})

	conf, err := util.ReadConf()
	if err != nil {
		logger.Fatal("reading configuration", "err", err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	logger.Info("running database migrations")
	database := db.GetDB()
	if err := database.RunMigrations(); err != nil {
		logger.Fatal("running migrations", "err", err)
	}

	fed := federation.NewClient(database, conf)

	// Materialize the system actors and their keypairs up front so the
	// first inbound request never races actor creation.
	for _, name := range federation.SystemActorNames {
		if _, err := fed.SystemActor(name); err != nil {
			logger.Fatal("creating system actor", "name", name, "err", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if conf.Conf.WithFederation {
		sender, err := fed.SystemActor("library")
		if err != nil {
			logger.Fatal("loading delivery sender", "err", err)
		}
		worker := federation.NewDeliveryWorker(fed, sender, logger)
		go worker.Run(ctx)
	}

	runner := tasks.NewRunner(tasks.NewMemoryQueue(64), tasks.NewMemoryStorage(), logger)
	runner.Run(ctx, 4)

	dispatcher := federation.NewDispatcher(fed, logger)

	server := &web.Server{
		Conf:       conf,
		DB:         database,
		Fed:        fed,
		Dispatcher: dispatcher,
		Runner:     runner,
		Log:        logger,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatal("http server", "err", err)
		}
	}()

	<-done
	logger.Info("shutting down")
}
