package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courseloop/chatsync/internal/bus"
	"github.com/courseloop/chatsync/internal/chat"
	"github.com/courseloop/chatsync/internal/config"
	"github.com/courseloop/chatsync/internal/lock"
	"github.com/courseloop/chatsync/internal/session"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.chatsync/config.toml)")
	identityFlag := flag.String("identity", "", "authenticated participant id")
	roomFlag := flag.String("room", "", "room id to open")
	courseFlag := flag.String("course", "", "course id whose chat to open")
	flag.Parse()

	if err := run(*configFlag, *identityFlag, *roomFlag, *courseFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, identity, roomID, courseID string) error {
	if identity == "" {
		return fmt.Errorf("-identity is required")
	}
	if roomID == "" && courseID == "" {
		return fmt.Errorf("one of -room or -course is required")
	}

	path := configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	lk, err := lock.Acquire(config.BaseDir(), identity)
	if err != nil {
		return err
	}
	defer func() { _ = lk.Release() }()

	var (
		sess     *session.Session
		eventBus *bus.Bus
	)
	app := fx.New(
		session.Module(session.Params{
			Config:   cfg,
			Identity: chat.Sender{ID: identity},
		}),
		fx.Populate(&sess, &eventBus),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	tail := newTailer(eventBus)
	tail.Start()
	defer tail.Stop()

	ctx := context.Background()
	if courseID != "" {
		if _, err := sess.OpenCourseChat(ctx, courseID); err != nil {
			return stopWith(app, err)
		}
	} else if err := sess.OpenRoom(ctx, roomID); err != nil {
		return stopWith(app, err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.Stop(stopCtx)
}

func stopWith(app *fx.App, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.Stop(ctx)
	return cause
}
