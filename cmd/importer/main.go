// Command importer bulk-loads followers into the bot database from a text
// file, one follower per line:
//
//	<id> [category] [source]
//
// Blank lines and lines starting with '#' are skipped. Existing followers are
// reported and left untouched.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"autonotice/internal/storage"
	logx "autonotice/pkg/logx"
)

func main() {
	var (
		dbPath   string
		filePath string
		logLevel string
	)
	flag.StringVar(&dbPath, "db", "./data/autonotice.db", "path to the bot database")
	flag.StringVar(&filePath, "file", "-", "follower list file ('-' for stdin)")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.Parse()

	_ = godotenv.Load()
	log := logx.NewConsole(logLevel).With(logx.String("comp", "importer"))

	if err := run(dbPath, filePath, log); err != nil {
		log.Error("import failed", logx.Err(err))
		os.Exit(1)
	}
}

func run(dbPath, filePath string, log logx.Logger) error {
	var in io.Reader = os.Stdin
	if filePath != "-" {
		f, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	store, err := storage.Open(storage.Config{Path: dbPath, BusyTimeout: 5 * time.Second}, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	var added, skipped, failed int

	sc := bufio.NewScanner(in)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) > 3 {
			log.Warn("line skipped, too many fields", logx.Int("line", line), logx.String("text", text))
			failed++
			continue
		}

		id := fields[0]
		category := storage.CategoryDefault
		source := storage.SourceDefault
		if len(fields) >= 2 {
			category = fields[1]
		}
		if len(fields) == 3 {
			source = fields[2]
		}

		err := store.AddFollower(ctx, id, category, source)
		switch {
		case errors.Is(err, storage.ErrExists):
			log.Info("already followed", logx.String("follower", id))
			skipped++
		case err != nil:
			log.Error("add failed", logx.Int("line", line), logx.String("follower", id), logx.Err(err))
			failed++
		default:
			log.Info("added", logx.String("follower", id), logx.String("category", category))
			added++
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	log.Info("import finished",
		logx.Int("added", added),
		logx.Int("skipped", skipped),
		logx.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d line(s) failed", failed)
	}
	return nil
}
