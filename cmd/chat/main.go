package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/xaenox/lummy-bot/internal/corpus"
	"github.com/xaenox/lummy-bot/internal/matcher"
	"github.com/xaenox/lummy-bot/internal/models"
	"github.com/xaenox/lummy-bot/internal/session"
	"github.com/xaenox/lummy-bot/internal/storage"
	"github.com/xaenox/lummy-bot/pkg/config"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to the configuration file")
	dbPath     = flag.String("db", "", "SQLite file holding the conversations (overrides storage settings)")
)

var (
	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Storage.Driver = storage.DriverSQLite
		cfg.Storage.SQLitePath = *dbPath
	}

	// The REPL owns the terminal, so only warnings reach stderr
	cfg.Log.Level = "warn"
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	entries, err := corpus.LoadFile(cfg.Corpus.Path)
	if err != nil {
		logger.Fatal("Failed to load corpus", zap.Error(err))
	}

	store, err := storage.New(cfg.Storage.StorageOptions(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := session.New(store, matcher.NewKeywordMatcher(entries), logger,
		session.WithStorageKey(cfg.Session.StorageKey),
		session.WithReplyDelay(cfg.Session.ReplyDelay),
		session.WithReplyHook(func(threadID string, msg models.Message) {
			fmt.Printf("%s %s\n\n", boldCyan("Lummy:"), msg.Text)
		}),
	)
	defer s.Close()
	s.Restore(ctx)

	fmt.Println(boldGreen("🐒 Lummy, assistant ActuFlash"))
	fmt.Println(faint("Commandes : /new, /threads, /switch n, /delete n, exit"))
	printThread(s)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print(boldGreen("Vous: "))

		var input string
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			input = strings.TrimSpace(line)
		}

		if strings.ToLower(input) == "exit" {
			return
		}
		if strings.HasPrefix(input, "/") {
			runCommand(ctx, s, input)
			continue
		}

		if s.SendMessage(ctx, input) {
			fmt.Print(faint("Lummy réfléchit...\r"))
			s.Wait()
		}
	}
}

func runCommand(ctx context.Context, s *session.Session, input string) {
	name, arg, _ := strings.Cut(input, " ")
	switch name {
	case "/new":
		s.CreateThread(ctx)
		printThread(s)
	case "/threads":
		currentID := s.CurrentID()
		for i, t := range s.Threads() {
			marker := " "
			if t.ID == currentID {
				marker = "▶"
			}
			fmt.Printf("%s %d. %s %s\n", marker, i+1, t.Title, faint(t.UpdatedAt.Local().Format("02/01 15:04")))
		}
		fmt.Println()
	case "/switch", "/delete":
		threads := s.Threads()
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 1 || n > len(threads) {
			fmt.Println(color.RedString("Numéro de conversation invalide."))
			return
		}
		if name == "/switch" {
			s.SelectThread(threads[n-1].ID)
		} else {
			s.DeleteThread(ctx, threads[n-1].ID)
		}
		printThread(s)
	default:
		fmt.Println(color.RedString("Commande inconnue : %s", name))
	}
}

func printThread(s *session.Session) {
	t, ok := s.Current()
	if !ok {
		return
	}
	fmt.Printf("\n%s\n", color.New(color.Bold).Sprintf("[ %s ]", t.Title))
	for _, msg := range t.Messages {
		if msg.Sender == models.SenderUser {
			fmt.Printf("%s %s\n", boldGreen("Vous:"), msg.Text)
		} else {
			fmt.Printf("%s %s\n", boldCyan("Lummy:"), msg.Text)
		}
	}
	fmt.Println()
}
