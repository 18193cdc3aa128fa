package main

import (
	"errors"
	"fmt"
	"io"

	"CatalogTx/internal/catalog"
)

// runImport exports a feed product by product. A product that fails is
// rolled back on its own; the rest of the feed is still exported.
func runImport(a *app, feedPath string, w io.Writer) error {
	feed, err := catalog.LoadFeed(a.fs, feedPath)
	if err != nil {
		return err
	}

	exporter, err := catalog.NewExporter(a.store, a.cfg, catalog.WithExportLogger(a.log))
	if err != nil {
		return err
	}

	if added, err := exporter.DefineCategories(feed.Categories); err != nil {
		return fmt.Errorf("failed to define categories: %w", err)
	} else if added > 0 {
		fmt.Fprintf(w, "defined %d new categor(ies)\n", added)
	}

	var exported, skipped, failed int
	for _, p := range feed.Products {
		res, err := exporter.Export(p)
		switch {
		case err == nil:
			exported++
			fmt.Fprintf(w, "exported %q as product %d (%d option(s), %d image(s))\n", p.Name, res.ProductID, res.Options, res.Images)
		case errors.Is(err, catalog.ErrDuplicateProduct), errors.Is(err, catalog.ErrUnknownCategory):
			skipped++
			fmt.Fprintf(w, "skipped %q: %v\n", p.Name, err)
		default:
			failed++
			fmt.Fprintf(w, "failed %q: %v\n", p.Name, err)
		}
	}

	for _, r := range []*catalog.Registry{exporter.Brands(), exporter.Products(), exporter.Categories()} {
		fmt.Fprintf(w, "%d name(s) in %s\n", r.Len(), r.Path())
	}
	fmt.Fprintf(w, "%d exported, %d skipped, %d failed\n", exported, skipped, failed)
	a.log.WithField("feed", feedPath).WithField("exported", exported).WithField("skipped", skipped).WithField("failed", failed).Info("import finished")
	if failed > 0 {
		return fmt.Errorf("%d product(s) failed to export", failed)
	}
	return nil
}
