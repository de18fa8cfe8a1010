package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/chronos-shop/internal/domain/product"
	boltstore "github.com/xenking/chronos-shop/internal/storage/bolt"
	"github.com/xenking/chronos-shop/internal/storage/sheet"
)

func main() {
	var (
		catalogFile string
		driver      string
		sheetPath   string
		boltPath    string
	)

	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.yaml", "path to the YAML catalog")
	flag.StringVar(&driver, "driver", "sheet", "product store driver: sheet or bolt (or CHRONOS_CATALOG_DRIVER env)")
	flag.StringVar(&sheetPath, "sheet-path", "data/products.xlsx", "product spreadsheet path")
	flag.StringVar(&boltPath, "bolt-path", "data/catalog.db", "product bolt database path")
	flag.Parse()

	if v := os.Getenv("CHRONOS_CATALOG_DRIVER"); v != "" && !isFlagSet("driver") {
		driver = v
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, catalogFile, driver, sheetPath, boltPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func run(ctx context.Context, catalogFile, driver, sheetPath, boltPath string) error {
	var store product.Repository
	switch driver {
	case "sheet":
		slog.Info("opening product spreadsheet", slog.String("path", sheetPath))
		store = sheet.NewProductStore(sheetPath)
	case "bolt":
		slog.Info("opening product database", slog.String("path", boltPath))
		db, err := boltstore.Open(boltPath)
		if err != nil {
			return errors.Wrap(err, "open bolt catalog")
		}
		defer func() { _ = db.Close() }()
		store = db
	default:
		return errors.Errorf("unknown driver %q", driver)
	}

	entries, err := loadCatalog(catalogFile)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	return seedProducts(ctx, store, entries, product.NewIDSequence())
}

// seedProducts adds every entry whose id is not yet stored. Entries without an
// id get a fresh one from ids, so re-running a seed without ids duplicates
// those products.
func seedProducts(ctx context.Context, store product.Repository, entries []catalogEntry, ids *product.IDSequence) error {
	existing, err := store.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list products")
	}
	known := make(map[int64]struct{}, len(existing))
	for _, p := range existing {
		known[p.ID] = struct{}{}
		ids.Observe(p.ID)
	}
	for _, e := range entries {
		if e.ID != 0 {
			ids.Observe(e.ID)
		}
	}

	slog.Info("seeding products", slog.Int("count", len(entries)), slog.Int("existing", len(existing)))

	for _, e := range entries {
		p, err := e.product()
		if err != nil {
			return err
		}
		if p.ID == 0 {
			p.ID = ids.Next()
		}
		if _, ok := known[p.ID]; ok {
			slog.Info("skipped existing product", slog.Int64("id", p.ID), slog.String("name", p.Name))
			continue
		}
		if err := store.Create(ctx, p); err != nil {
			return errors.Wrapf(err, "create product %d", p.ID)
		}
		known[p.ID] = struct{}{}

		slog.Info("created product", slog.Int64("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}
