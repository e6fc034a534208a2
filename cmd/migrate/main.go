package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/db"
	"github.com/aidigitalagency/storefront-backend/pkg/instance"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	"github.com/aidigitalagency/storefront-backend/pkg/migrate"
)

const usage = `usage: migrate [flags] <command>

commands:
  up              apply pending migrations
  down            roll back the latest migration
  to <version>    move the schema to version (YYYYMMDDHHMMSS)
  status          list migrations and whether they are applied
  create <name>   write an empty migration into -dir
  validate        check migration files in -dir
`

func main() {
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(args[0], args[1:], *dir); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", args[0], err)
		os.Exit(1)
	}
}

func run(command string, args []string, dir string) error {
	// Offline commands work on the source tree and skip config entirely.
	switch command {
	case "create":
		if len(args) != 1 {
			return fmt.Errorf("expected exactly one name")
		}
		path, err := migrate.CreateSQLMigration(orDefault(dir), args[0])
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(orDefault(dir)); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "storefront-migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"command":  command,
		"instance": instance.GetID(),
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	var source fs.FS
	if dir != "" {
		source = os.DirFS(dir)
	}
	migrator, err := migrate.New(sqlDB, source, logg)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		return migrator.Up(ctx)
	case "down":
		return migrator.Down(ctx)
	case "to":
		if len(args) != 1 {
			return fmt.Errorf("expected a target version")
		}
		version, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad version %q: %w", args[0], err)
		}
		return migrator.To(ctx, version)
	case "status":
		rows, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		return printStatus(rows)
	default:
		return fmt.Errorf("unknown command")
	}
}

func printStatus(rows []migrate.Status) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED\tFILE")
	for _, row := range rows {
		applied := "pending"
		if row.Applied {
			applied = row.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", row.Version, applied, row.File)
	}
	return w.Flush()
}

func orDefault(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}
