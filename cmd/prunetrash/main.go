// Command prunetrash crypto-shreds vault entries that sat in the trash past
// the retention window and purges expired shared secrets.
//
// Usage:
//
//	prunetrash [-retention-days N] [-dry-run] [-yes] [server config flags]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/flagx"
	"github.com/dmitrijs2005/zkvault/internal/logging"
	"github.com/dmitrijs2005/zkvault/internal/server/config"
	"github.com/dmitrijs2005/zkvault/internal/server/locks"
	"github.com/dmitrijs2005/zkvault/internal/server/objects"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/zkvault/internal/server/services"
	"golang.org/x/term"
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

var errAborted = errors.New("aborted")

type options struct {
	retentionDays int
	dryRun        bool
	yes           bool
}

func parseOptions(args []string, defaultRetention int) (options, error) {
	filtered := append(flagx.FilterArgs(args, []string{"-retention-days"}),
		flagx.FilterBoolArgs(args, []string{"-dry-run", "-yes"})...)

	var opt options
	fs := flag.NewFlagSet("prunetrash", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&opt.retentionDays, "retention-days", defaultRetention, "shred entries deleted more than N days ago")
	fs.BoolVar(&opt.dryRun, "dry-run", false, "list candidates without changing anything")
	fs.BoolVar(&opt.yes, "yes", false, "do not ask for confirmation")
	if err := fs.Parse(filtered); err != nil {
		return opt, err
	}
	if opt.retentionDays < 1 {
		return opt, fmt.Errorf("retention days must be positive, got %d", opt.retentionDays)
	}
	return opt, nil
}

// shredRunner is the part of services.Shredder the command drives.
type shredRunner interface {
	Shred(ctx context.Context, retentionDays int, dryRun bool) (*services.ShredReport, error)
}

type secretPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// confirm asks on an interactive terminal. Without a terminal the run needs
// -yes.
func confirm(in io.Reader, out io.Writer, interactive bool, candidates int) error {
	if !interactive {
		return fmt.Errorf("%w: not a terminal, pass -yes to shred without confirmation", errAborted)
	}
	fmt.Fprintf(out, "Permanently shred %d entries? [y/N]\n> ", candidates)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	}
	return errAborted
}

func run(ctx context.Context, opt options, shredder shredRunner, purger secretPurger, in io.Reader, out io.Writer, interactive bool) error {
	preview, err := shredder.Shred(ctx, opt.retentionDays, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Entries deleted before %s: %d\n", preview.Cutoff.Format(time.RFC3339), len(preview.Candidates))
	for _, c := range preview.Candidates {
		fmt.Fprintf(out, "  %s  user=%s  in trash %s\n", c.ID, c.UserID, c.Age(time.Now()).Round(time.Hour))
	}

	if opt.dryRun {
		fmt.Fprintln(out, "Dry run, nothing changed.")
		return nil
	}

	if len(preview.Candidates) > 0 {
		if !opt.yes {
			if err := confirm(in, out, interactive, len(preview.Candidates)); err != nil {
				return err
			}
		}
		report, err := shredder.Shred(ctx, opt.retentionDays, false)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Candidates: %d, shredded: %d, failed: %d\n", len(report.Candidates), report.Shredded, report.Failed)
	}

	purged, err := purger.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Expired secrets purged: %d\n", purged)
	return nil
}

func main() {
	os.Exit(realMain())
}

// realMain returns the exit code so deferred closes run before os.Exit.
func realMain() int {
	ctx := context.Background()
	cfg := config.LoadConfig()

	opt, err := parseOptions(os.Args[1:], cfg.RetentionDays)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, Writer: os.Stderr})
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	db, err := repomanager.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	defer db.Close()

	store, err := objects.NewS3Store(ctx, objects.Options{
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3RootUser,
		SecretKey:    cfg.S3RootPassword,
		BaseEndpoint: cfg.S3BaseEndpoint,
		Bucket:       cfg.S3Bucket,
	})
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	var locker locks.TryLocker = locks.NewMemoryLocker()
	if cfg.RedisAddr != "" {
		client, err := locks.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Printf("%v", err)
			return 1
		}
		defer client.Close()
		locker = locks.NewRedisLocker(client, 30*time.Second, logger)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	shredder := services.NewShredder(db, rm, store, logger)
	secrets := services.NewSecretService(db, rm, locker, logger)

	return exitCode(run(ctx, opt, shredder, secrets, os.Stdin, os.Stdout, isTerminal(int(os.Stdin.Fd()))), os.Stderr)
}

// exitCode reports err on stderr and maps it to the process exit status.
func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errAborted):
		fmt.Fprintln(stderr, err)
	case errors.Is(err, common.ErrorValidation):
		fmt.Fprintf(stderr, "invalid input: %v\n", err)
	default:
		fmt.Fprintln(stderr, err)
	}
	return 1
}
