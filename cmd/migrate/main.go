package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"satauth.org/internal/migrate"
	"satauth.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = pflag.String("dsn", os.Getenv("AUTH_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = pflag.String("migrations", "", "directory of SQL migrations (default: embedded schema)")
		seedsPath      = pflag.String("seeds", "", "directory of SQL seeds")
		timeout        = pflag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [flags] up|down|seed|status")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via --dsn or AUTH_PG_DSN")
	}
	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close(ctx)

	migrations := pg.Migrations()
	if *migrationsPath != "" {
		migrations = os.DirFS(*migrationsPath)
	}
	var seeds fs.FS
	if *seedsPath != "" {
		seeds = os.DirFS(*seedsPath)
	}
	mgr := migrate.NewManager(store.DB(), migrations, seeds)

	switch pflag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", pflag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", pflag.Arg(0), err)
	}
}
