package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/faults"
)

// ErrProductUnknown reports a barcode the catalog has never seen.
var ErrProductUnknown = errors.New("service: unknown product")

// Product is what the catalog knows about a barcode.
type Product struct {
	Barcode  string `json:"barcode"`
	Name     string `json:"name"`
	Brand    string `json:"brand,omitempty"`
	Category string `json:"category,omitempty"`
}

// Catalog resolves barcodes to products. Backed by an external barcode
// database in production.
type Catalog interface {
	Lookup(ctx context.Context, barcode string) (Product, error)
}

// Generator produces marketing copy for a product. Backed by an LLM in
// production.
type Generator interface {
	Describe(ctx context.Context, product Product, locale string) (string, error)
}

// ProductService fronts the two metered product operations. Quota is checked
// before the expensive work and charged only after it succeeds, so a failed
// generation is never billed.
type ProductService struct {
	Catalog   Catalog
	Generator Generator
	Authz     *AuthzService
}

func NewProductService(catalog Catalog, gen Generator, authz *AuthzService) *ProductService {
	return &ProductService{Catalog: catalog, Generator: gen, Authz: authz}
}

// Lookup resolves a barcode. EAN-8, UPC-A and EAN-13 formats only.
func (s *ProductService) Lookup(ctx context.Context, barcode string) (Product, error) {
	if !ValidBarcode(barcode) {
		return Product{}, faults.New(faults.KindInvalidInput, "barcode %q is not 8, 12 or 13 digits", barcode)
	}

	p, err := s.Catalog.Lookup(ctx, barcode)
	if errors.Is(err, ErrProductUnknown) {
		return Product{}, faults.New(faults.KindNotFound, "no product for barcode %s", barcode)
	}
	if err != nil {
		return Product{}, faults.Wrap(faults.KindUnavailable, err, "catalog lookup failed")
	}
	return p, nil
}

// Describe generates copy for a barcode and charges one metered unit on
// success. Returns the copy and the actor's new usage count.
func (s *ProductService) Describe(ctx context.Context, actor domain.UserRecord, barcode, locale string) (string, int, error) {
	if err := s.Authz.CheckQuota(ctx, actor); err != nil {
		return "", 0, err
	}

	product, err := s.Lookup(ctx, barcode)
	if err != nil {
		return "", 0, err
	}

	copyText, err := s.Generator.Describe(ctx, product, locale)
	if err != nil {
		return "", 0, faults.Wrap(faults.KindUnavailable, err, "description generation failed")
	}

	usage, err := s.Authz.ConsumeUsage(ctx, actor.SubjectID)
	if err != nil {
		return "", 0, err
	}
	return copyText, usage, nil
}

// ValidBarcode accepts EAN-8 (8), UPC-A (12) and EAN-13 (13) digit strings.
func ValidBarcode(barcode string) bool {
	switch len(barcode) {
	case 8, 12, 13:
	default:
		return false
	}
	for _, r := range barcode {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// StaticCatalog is an in-memory Catalog for tests and local development.
type StaticCatalog struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{products: make(map[string]Product)}
}

func (c *StaticCatalog) Add(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.Barcode] = p
}

func (c *StaticCatalog) Lookup(_ context.Context, barcode string) (Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[barcode]
	if !ok {
		return Product{}, ErrProductUnknown
	}
	return p, nil
}

// TemplateGenerator is a deterministic Generator for tests and local
// development.
type TemplateGenerator struct{}

func (TemplateGenerator) Describe(_ context.Context, p Product, locale string) (string, error) {
	name := p.Name
	if p.Brand != "" {
		name = p.Brand + " " + name
	}
	if locale == "" {
		locale = "en"
	}
	return fmt.Sprintf("[%s] %s", strings.ToLower(locale), name), nil
}
