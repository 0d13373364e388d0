// Command chatserver runs the group chat WebSocket server.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"bken/chatserver/internal/chat"
	"bken/chatserver/internal/metrics"
	"bken/chatserver/internal/msgfilter"
	"bken/chatserver/internal/ratelimit"
	"bken/chatserver/internal/transport"
	"bken/chatserver/internal/usernames"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP/WebSocket listen address")
	maxStoredMessages := flag.Int("max_stored_messages", 50, "history ring capacity")
	maxUsers := flag.Uint("max_users", 0, "hard roster cap, 0 disables")
	maxReservedNames := flag.Uint("max_reserved_names", 3, "per-identity name reservation LRU cap")
	maxUsernameLen := flag.Int("max_username_len", 20, "maximum username length in bytes (capped at 20)")
	maxMessageLen := flag.Int("max_message_len", 500, "maximum message content length in bytes")
	minMessageTimeHard := flag.Int64("min_message_time_hard", 100, "rate limiter hard floor, milliseconds")
	minMessageTimeSoft := flag.Int64("min_message_time_soft", 500, "rate limiter soft floor, milliseconds")
	kickBurst := flag.Int64("kick_burst", 2000, "rate limiter burst ceiling before a kick")
	offline := flag.Bool("offline", false, "force the server to report offline (503) without serving chat")
	profanityWordlist := flag.String("profanity_wordlist", "", "path to a newline-delimited profanity wordlist (optional)")
	flag.Parse()

	wordlist, err := loadWordlist(*profanityWordlist)
	if err != nil {
		slog.Error("failed to load profanity wordlist", "path", *profanityWordlist, "err", err)
		os.Exit(1)
	}

	recorder := metrics.Recorder(metrics.Nop{})
	if !*offline {
		recorder = metrics.NewPromRecorder(prometheus.DefaultRegisterer)
	}

	hub := chat.New(chat.Config{
		MaxUsers:          uint16(*maxUsers),
		MaxStoredMessages: *maxStoredMessages,
		Recorder:          recorder,
	})
	defer hub.Shutdown()

	srv := transport.New(transport.Config{
		Usernames: usernames.New(int(*maxReservedNames), *maxUsernameLen),
		Hub:       hub,
		MaxMsgLen: *maxMessageLen,
		RateLimit: ratelimit.Config{
			MinTimeHard: *minMessageTimeHard,
			MinTimeSoft: *minMessageTimeSoft,
			KickBurst:   *kickBurst,
		},
		Wordlist: wordlist,
		Offline:  *offline,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("chat server starting", "addr", *addr, "offline", *offline)
	if err := srv.Run(ctx, *addr); err != nil {
		slog.Error("server exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("chat server stopped")
}

// loadWordlist reads a newline-delimited profanity wordlist. An empty path
// yields a nil Wordlist, under which msgfilter.Wordlist.Replace is the identity
// function.
func loadWordlist(path string) (msgfilter.Wordlist, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	words := make(msgfilter.Wordlist)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" {
			continue
		}
		words[strings.ToLower(word)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return words, nil
}
