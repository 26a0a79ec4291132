package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"airquality/internal/adapters/config"
	pgclient "airquality/internal/adapters/postgres"
	"airquality/internal/domain/features"
	pgrepo "airquality/internal/repository/postgres"
	"airquality/pkg/errors"
	"airquality/pkg/logger"
)

const usage = `schemactl manages feature schemas.

Usage:
  schemactl validate [-publish] <schema.yaml>
  schemactl show [-version v]
  schemactl list
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()
	log := logger.Get()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "validate":
		err = runValidate(ctx, cfg, args)
	case "show":
		err = runShow(ctx, cfg, args)
	case "list":
		err = runList(ctx, cfg)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		var multi *errors.MultiError
		if errors.As(err, &multi) {
			for _, e := range multi.Errors {
				fmt.Fprintln(os.Stderr, " -", e)
			}
		}
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func runValidate(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	publish := fs.Bool("publish", false, "Publish the schema to Postgres after validation")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.Wrap(errors.ErrInvalidInput, "expected exactly one schema file")
	}

	schema, err := features.LoadSchemaFile(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("ok: version %s, %d numeric features, %d categories (fallback %q), vector length %d\n",
		schema.Version(), len(schema.NumericFeatures()), len(schema.Categories()), schema.Fallback(), schema.VectorLen())

	if !*publish {
		return nil
	}

	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := store.Publish(ctx, schema); err != nil {
		return err
	}
	fmt.Printf("published %s\n", schema.Version())
	return nil
}

func runShow(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	version := fs.String("version", "", "Schema version, empty for the latest")
	_ = fs.Parse(args)

	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	schema, err := store.Get(ctx, *version)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(schema)
}

func runList(ctx context.Context, cfg *config.Config) error {
	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	versions, err := store.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tVECTOR\tPUBLISHED")
	for _, v := range versions {
		fmt.Fprintf(w, "%s\t%d\t%s\n", v.Version, v.VectorLen, humanize.Time(v.PublishedAt))
	}
	return w.Flush()
}

func openStore(ctx context.Context, cfg *config.Config) (features.Store, func(), error) {
	client, err := pgclient.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}

	repo := pgrepo.NewSchemaRepository(client.DB())
	if err := repo.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return repo, func() { _ = client.Close() }, nil
}
