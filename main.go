package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"directchat/internal/api"
	"directchat/internal/chat"
	"directchat/internal/commands"
	"directchat/internal/config"
	"directchat/internal/directory"
	"directchat/internal/http"
	"directchat/internal/storage"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("directchat", flag.ContinueOnError)
	login := flags.String("login", "", "Username to log in as against a running server (registers it on first use)")
	chatAs := flags.String("chat", "", "Username to start an interactive terminal chat as")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if *login != "" {
		return commands.Login(ctx, *login, cfg)
	}
	if *chatAs != "" {
		return commands.Chat(ctx, *chatAs, cfg, os.Stdin, os.Stdout)
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	users := directory.New(bbStorage, directory.Config{SearchLimit: cfg.SearchLimit})
	chats := chat.New(bbStorage)

	apiServer := http.NewAPIServer(api.New(users, chats), cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, flag.ErrHelp) {
		log.Fatalf("Application error: %v", err)
	}
}
