package interfaces

import (
	"context"

	"github.com/ternarybob/vendo/internal/models"
)

// CatalogClient - interface for the external commerce catalog service.
// Every method may return catalog.ErrRateLimited (distinct from other
// failures) which the sync engine's retry policy handles internally.
type CatalogClient interface {
	// FindProductByHandle returns nil (no error) when the handle is absent
	FindProductByHandle(ctx context.Context, handle string) (*models.CatalogProduct, error)
	CreateProduct(ctx context.Context, preview *models.CatalogPreview) (*models.CatalogProduct, error)
	UpdateProduct(ctx context.Context, productID string, preview *models.CatalogPreview) error
	ArchiveProduct(ctx context.Context, productID string) error

	ListMetafields(ctx context.Context, productID string) ([]models.Metafield, error)
	UpsertMetafield(ctx context.Context, productID string, field models.Metafield) error

	UpdateVariant(ctx context.Context, variantID string, variant models.PreviewVariant) error
	CreateImage(ctx context.Context, productID string, url string) error
}
