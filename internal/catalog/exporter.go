package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"CatalogTx/internal/config"
	"CatalogTx/internal/logger"
	"CatalogTx/internal/transaction"

	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownCategory  = errors.New("unknown category")
	ErrDuplicateProduct = errors.New("product already exported")
)

const (
	deliveryPolicyID = 2
	safetyStock      = 10
	noDescription    = "설명없음"
)

// Products get a created_at spread over this window.
var (
	createdFrom = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	createdTo   = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Exporter turns scraped products into rows of the catalog SQL files. Every
// Export is one transaction over all files it touches.
type Exporter struct {
	store      *transaction.Store
	cfg        config.Config
	brands     *Registry
	products   *Registry
	categories *Registry
	rng        *rand.Rand
	logger     *logger.Logger
}

type ExporterOption func(*Exporter)

// WithRand fixes the source of generated stock levels and timestamps.
func WithRand(r *rand.Rand) ExporterOption {
	return func(e *Exporter) {
		if r != nil {
			e.rng = r
		}
	}
}

func WithExportLogger(l *logger.Logger) ExporterOption {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// Result describes what one Export wrote.
type Result struct {
	ProductID    int
	BrandID      int
	CategoryID   int
	NewBrand     bool
	Images       int
	Options      int
	DetailImages int
}

// NewExporter loads the registries named by cfg. An empty category registry
// is seeded in memory with DefaultCategories.
func NewExporter(store *transaction.Store, cfg config.Config, opts ...ExporterOption) (*Exporter, error) {
	fs := store.Fs()
	brands, err := LoadRegistry(fs, cfg.Path(cfg.Brands.Registry), "brands")
	if err != nil {
		return nil, err
	}
	products, err := LoadRegistry(fs, cfg.Path(cfg.Products.Registry), "products")
	if err != nil {
		return nil, err
	}
	categories, err := LoadRegistry(fs, cfg.Path(cfg.Categories), "categories")
	if err != nil {
		return nil, err
	}
	if categories.Len() == 0 {
		seed, err := DefaultCategories()
		if err != nil {
			return nil, err
		}
		for name, id := range seed {
			if _, err := categories.Define(name, id); err != nil {
				return nil, err
			}
		}
	}

	e := &Exporter{
		store:      store,
		cfg:        cfg,
		brands:     brands,
		products:   products,
		categories: categories,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Exporter) Brands() *Registry { return e.brands }

func (e *Exporter) Products() *Registry { return e.products }

func (e *Exporter) Categories() *Registry { return e.categories }

// Export writes p to every catalog file. An unknown category or an already
// exported name is rejected before anything is touched. Any later failure
// rolls all files back and forgets the ids handed out.
func (e *Exporter) Export(p Product) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	categoryID, ok := e.categories.Lookup(p.Category)
	if !ok {
		return Result{}, fmt.Errorf("%q: %w", p.Category, ErrUnknownCategory)
	}
	if id, ok := e.products.Lookup(p.Name); ok {
		return Result{}, fmt.Errorf("%q (id %d): %w", p.Name, id, ErrDuplicateProduct)
	}

	brandSnap, productSnap := e.brands.Snapshot(), e.products.Snapshot()
	res := Result{CategoryID: categoryID}

	err := e.store.Do(func(s *transaction.Store) error {
		var err error
		res.BrandID, res.NewBrand, err = e.brands.Assign(p.Brand)
		if err != nil {
			return err
		}
		if res.NewBrand {
			if err := s.WriteString(e.cfg.Path(e.cfg.Brands.SQL), e.renderBrands(), e.cfg.Encoding, false); err != nil {
				return err
			}
			if err := e.brands.Persist(s); err != nil {
				return err
			}
		}

		res.ProductID, _, err = e.products.Assign(p.Name)
		if err != nil {
			return err
		}
		if err := e.merge(s, e.cfg.Path(e.cfg.Products.SQL), productsTable, []string{e.productRow(res, p.Name)}); err != nil {
			return err
		}

		if rows := mainImageRows(res.ProductID, p.Images); len(rows) > 0 {
			if err := e.merge(s, e.cfg.Path(e.cfg.MainImages), mainImagesTable, rows); err != nil {
				return err
			}
			res.Images = len(rows)
		}

		if rows := e.optionRows(res.ProductID, p.Options); len(rows) > 0 {
			if err := s.AppendString(e.cfg.Path(e.cfg.Options), optionsTable.Block(rows), e.cfg.Encoding); err != nil {
				return err
			}
			res.Options = len(rows)
		}

		if rows := detailImageRows(res.ProductID, p.DetailImages); len(rows) > 0 {
			if err := s.AppendString(e.cfg.Path(e.cfg.DetailImages), detailImagesTable.Block(rows), e.cfg.Encoding); err != nil {
				return err
			}
			res.DetailImages = len(rows)
		}

		return e.products.Persist(s)
	})
	if err != nil {
		e.brands.Restore(brandSnap)
		e.products.Restore(productSnap)
		e.logger.WithField("product", p.Name).WithError(err).Error("export rolled back")
		return Result{}, err
	}

	e.logger.WithFields(logrus.Fields{
		"product":    p.Name,
		"product_id": res.ProductID,
		"brand_id":   res.BrandID,
		"options":    res.Options,
		"images":     res.Images,
	}).Info("product exported")
	return res, nil
}

// DefineCategories adds fixed category ids and persists the category
// registry in its own transaction. It returns how many names were new.
func (e *Exporter) DefineCategories(categories map[string]int) (int, error) {
	if len(categories) == 0 {
		return 0, nil
	}
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	snap := e.categories.Snapshot()
	added := 0
	err := e.store.Do(func(s *transaction.Store) error {
		for _, name := range names {
			ok, err := e.categories.Define(name, categories[name])
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		return e.categories.Persist(s)
	})
	if err != nil {
		e.categories.Restore(snap)
		return 0, err
	}
	e.logger.WithField("added", added).Info("categories defined")
	return added, nil
}

// merge appends rows to the single INSERT statement kept in path.
func (e *Exporter) merge(s *transaction.Store, path string, t Table, rows []string) error {
	current, err := s.ReadString(path, e.cfg.Encoding)
	if err != nil {
		return err
	}
	return s.WriteString(path, t.Merge(current, rows), e.cfg.Encoding, false)
}

func (e *Exporter) renderBrands() string {
	entries := e.brands.Entries()
	rows := make([]string, len(entries))
	for i, b := range entries {
		rows[i] = Row(b.ID, b.Name, false, sqlNow, sqlNow)
	}
	return brandsTable.Render(rows)
}

func (e *Exporter) productRow(res Result, name string) string {
	created := e.createdAt().Format("2006-01-02 15:04:05")
	return Row(
		res.ProductID, res.ProductID, res.BrandID, res.CategoryID, deliveryPolicyID,
		false, name, "NONE", name, "EXPOSURE", "ON_SALE", noDescription,
		true, false, created, created,
	)
}

func (e *Exporter) createdAt() time.Time {
	span := int64(createdTo.Sub(createdFrom) / time.Second)
	return createdFrom.Add(time.Duration(e.rng.Int64N(span+1)) * time.Second)
}

// optionRows skips options without a name or price. Sold out options start
// with no stock and are flagged deleted.
func (e *Exporter) optionRows(productID int, options []Option) []string {
	var rows []string
	for _, o := range options {
		price, ok := o.SellingPrice()
		if !ok {
			e.logger.WithField("product_id", productID).WithField("option", o.Name).Debug("skipping invalid option")
			continue
		}
		current, initial := 0, 50+e.rng.IntN(51)
		if !o.SoldOut {
			current = 50 + e.rng.IntN(101)
			initial = current + e.rng.IntN(51)
		}
		rows = append(rows, Row(
			productID, o.Name, price/2, price,
			current, initial, safetyStock, o.Image, len(rows),
			o.SoldOut, sqlNow, sqlNow,
		))
	}
	return rows
}

func mainImageRows(productID int, urls []string) []string {
	rows := make([]string, len(urls))
	for i, url := range urls {
		kind := "GALLERY"
		if i == 0 {
			kind = "THUMBNAIL"
		}
		rows[i] = Row(productID, kind, i, url)
	}
	return rows
}

func detailImageRows(productID int, urls []string) []string {
	rows := make([]string, len(urls))
	for i, url := range urls {
		rows[i] = Row(productID, i, url)
	}
	return rows
}
