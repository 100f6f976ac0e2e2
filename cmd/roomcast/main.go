package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomcast/internal/api"
	"github.com/eldtechnologies/roomcast/internal/config"
	"github.com/eldtechnologies/roomcast/internal/session"
	"github.com/eldtechnologies/roomcast/internal/store"
	"github.com/eldtechnologies/roomcast/internal/transport"
	"github.com/eldtechnologies/roomcast/internal/wire"
)

// consoleEvents prints chat activity to the terminal. Methods are called
// synchronously from the session and must not call back into it.
type consoleEvents struct{}

func (consoleEvents) UserJoined(user, group, firstName, lastName string) {
	name := strings.TrimSpace(firstName + " " + lastName)
	if name != "" {
		fmt.Printf(">> %s (%s) joined %s\n", user, name, group)
		return
	}
	fmt.Printf(">> %s joined %s\n", user, group)
}

func (consoleEvents) UserLeft(user string) {
	fmt.Printf(">> %s left\n", user)
}

func (consoleEvents) MessageReceived(from, destination, text string) {
	fmt.Printf("<%s -> %s> %s\n", from, destination, text)
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stderr).
			With().
			Timestamp().
			Logger()
	}

	instance := uuid.NewString()
	logger = logger.With().Str("instance", instance).Logger()

	ctx := context.Background()

	// Shared fallback for degraded mode: when the configured backend is
	// unavailable the node keeps exchanging messages without persistence.
	memLog := store.NewMemoryLog()
	openLog := func() store.MessageLog {
		log, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("message log unavailable, running without persistence")
			return memLog
		}
		return log
	}

	// Process-wide log handle for replay and the status API.
	nodeLog := openLog()
	defer nodeLog.Close()

	// Each transport owns a fresh handle; it is released on leave or group
	// change without touching the process-wide one.
	openTransport := func(room, username string, onMessage func(wire.Envelope)) (session.Transport, error) {
		return transport.NewMulticast(transport.Config{
			Addr:      cfg.MulticastAddr,
			Room:      room,
			Username:  username,
			Log:       openLog(),
			OnMessage: onMessage,
			Logger:    logger,
		})
	}

	sess := session.New(nodeLog, openTransport, consoleEvents{}, logger, cfg.ReplayLimit)

	// Status server, disabled with STATUS_ADDR=""
	var srv *http.Server
	if cfg.StatusAddr != "" {
		srv = &http.Server{
			Addr:         cfg.StatusAddr,
			Handler:      api.NewRouter(logger, nodeLog, sess),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info().
				Str("addr", cfg.StatusAddr).
				Str("env", cfg.Env).
				Msg("starting status server")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal().Err(err).Msg("status server failed to start")
			}
		}()
	}

	done := make(chan struct{})
	go console(sess, done)

	// Wait for console exit or interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-done:
	}

	logger.Info().Msg("shutting down...")
	sess.Leave()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("status server forced to shutdown")
		}
	}

	logger.Info().Msg("node stopped")
}

const usage = `commands:
  join <user> <group> [first] [last]   join a group
  send <text>                          message the current group
  to <dest> <text>                     message a group or user
  group <name>                         switch group
  who                                  list online users
  leave                                leave the current group
  quit                                 exit`

// console reads commands from stdin until EOF or quit.
func console(sess *session.Session, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println(usage)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "join":
			if len(args) < 2 {
				fmt.Println("usage: join <user> <group> [first] [last]")
				continue
			}
			var first, last string
			if len(args) > 2 {
				first = args[2]
			}
			if len(args) > 3 {
				last = args[3]
			}
			if err := sess.Join(args[0], args[1], first, last); err != nil {
				fmt.Printf("join failed: %v\n", err)
			}

		case "send":
			st := sess.Status()
			if st.Group == "" {
				fmt.Println("not joined")
				continue
			}
			sess.Send(st.Group, strings.TrimSpace(strings.TrimPrefix(line, "send")))

		case "to":
			if len(args) < 2 {
				fmt.Println("usage: to <dest> <text>")
				continue
			}
			sess.Send(args[0], strings.Join(args[1:], " "))

		case "group":
			if len(args) != 1 {
				fmt.Println("usage: group <name>")
				continue
			}
			if err := sess.UpdateGroup(args[0]); err != nil {
				fmt.Printf("group change failed: %v\n", err)
			}

		case "who":
			users := sess.ListOnline()
			if len(users) == 0 {
				fmt.Println("nobody online (not joined?)")
				continue
			}
			for _, u := range users {
				name := strings.TrimSpace(u.FirstName + " " + u.LastName)
				if name != "" {
					fmt.Printf("  %s (%s) in %s\n", u.User, name, u.Group)
				} else {
					fmt.Printf("  %s in %s\n", u.User, u.Group)
				}
			}

		case "leave":
			sess.Leave()

		case "quit", "exit":
			return

		default:
			fmt.Println(usage)
		}
	}
}
