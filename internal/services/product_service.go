package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"hawkinsfarm/internal/caching"
	"hawkinsfarm/internal/models"
	"hawkinsfarm/internal/repositories"

	"github.com/google/uuid"
)

const (
	productCacheTTL = time.Minute
	// marketplaceSnapshotSize bounds the cached listing; deeper pages go to the database.
	marketplaceSnapshotSize = 500
)

type ProductService interface {
	Marketplace(ctx context.Context, limit, offset int) ([]*models.Product, error)
	RefreshMarketplace(ctx context.Context) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetMany(ctx context.Context, req models.ProductBatchRequest) ([]*models.Product, error)
	ListMine(ctx context.Context, identity models.Identity) ([]*models.Product, error)
	Create(ctx context.Context, identity models.Identity, input models.ProductInput) (*models.Product, error)
	Update(ctx context.Context, identity models.Identity, id uuid.UUID, input models.ProductInput) (*models.Product, error)
	Delete(ctx context.Context, identity models.Identity, id uuid.UUID) error
	UploadImage(ctx context.Context, identity models.Identity, id uuid.UUID, filename, contentType string, reader io.Reader, size int64) (*models.Product, error)
	LowStock(ctx context.Context, threshold int) ([]*models.Product, error)
}

type ProductServiceConfig struct {
	ImageBucket    string
	MarketplaceTTL time.Duration
}

type productService struct {
	productRepo  repositories.ProductRepository
	minioService MinioService
	cacheService caching.CacheService
	cfg          ProductServiceConfig
}

func NewProductService(productRepo repositories.ProductRepository, minioService MinioService, cacheService caching.CacheService, cfg ProductServiceConfig) ProductService {
	if cfg.ImageBucket == "" {
		cfg.ImageBucket = "product-images"
	}
	if cfg.MarketplaceTTL <= 0 {
		cfg.MarketplaceTTL = 10 * time.Minute
	}
	return &productService{
		productRepo:  productRepo,
		minioService: minioService,
		cacheService: cacheService,
		cfg:          cfg,
	}
}

// Marketplace serves in-stock products newest first. Pages inside the
// cached snapshot never touch the database.
func (s *productService) Marketplace(ctx context.Context, limit, offset int) ([]*models.Product, error) {
	if offset+limit > marketplaceSnapshotSize {
		return s.productRepo.ListAvailable(ctx, limit, offset)
	}

	snapshot, err := s.cacheService.GetMarketplace(ctx)
	if err != nil {
		log.Printf("WARN: marketplace cache read failed: %v", err)
	}
	if snapshot == nil {
		if snapshot, err = s.loadMarketplace(ctx); err != nil {
			return nil, err
		}
	}
	return page(snapshot, limit, offset), nil
}

// RefreshMarketplace rebuilds the cached listing and reports its size.
func (s *productService) RefreshMarketplace(ctx context.Context) (int, error) {
	snapshot, err := s.loadMarketplace(ctx)
	if err != nil {
		return 0, err
	}
	return len(snapshot), nil
}

func (s *productService) loadMarketplace(ctx context.Context) ([]*models.Product, error) {
	snapshot, err := s.productRepo.ListAvailable(ctx, marketplaceSnapshotSize, 0)
	if err != nil {
		return nil, err
	}
	if cacheErr := s.cacheService.SetMarketplace(ctx, snapshot, s.cfg.MarketplaceTTL); cacheErr != nil {
		log.Printf("WARN: failed to cache marketplace listing: %v", cacheErr)
	}
	return snapshot, nil
}

func page(products []*models.Product, limit, offset int) []*models.Product {
	if offset >= len(products) {
		return []*models.Product{}
	}
	end := offset + limit
	if end > len(products) {
		end = len(products)
	}
	return products[offset:end]
}

func (s *productService) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if cached, err := s.cacheService.GetProduct(ctx, id); cached != nil {
		return cached, nil
	} else if err != nil {
		log.Printf("WARN: cache error for product %s: %v", id, err)
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if cacheErr := s.cacheService.SetProduct(ctx, product, productCacheTTL); cacheErr != nil {
		log.Printf("WARN: failed to cache product %s: %v", id, cacheErr)
	}
	return product, nil
}

// GetMany returns the requested products in request order. Unknown ids are
// skipped and repeated ids are returned once.
func (s *productService) GetMany(ctx context.Context, req models.ProductBatchRequest) ([]*models.Product, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	found, err := s.productRepo.GetByIDs(ctx, req.IDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	products := make([]*models.Product, 0, len(found))
	for _, id := range req.IDs {
		if p, ok := byID[id]; ok {
			products = append(products, p)
			delete(byID, id)
		}
	}
	return products, nil
}

func (s *productService) ListMine(ctx context.Context, identity models.Identity) ([]*models.Product, error) {
	if err := Authorize(identity, OpManageProducts); err != nil {
		return nil, err
	}
	return s.productRepo.ListByFarmer(ctx, identity.UserID)
}

func (s *productService) Create(ctx context.Context, identity models.Identity, input models.ProductInput) (*models.Product, error) {
	if err := Authorize(identity, OpManageProducts); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	product := &models.Product{FarmerID: identity.UserID}
	input.Apply(product)
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}
	log.Printf("INFO: farmer %s listed product %s (%s)", identity.UserID, product.ID, product.Name)
	s.invalidate(ctx, uuid.Nil)
	return product, nil
}

func (s *productService) Update(ctx context.Context, identity models.Identity, id uuid.UUID, input models.ProductInput) (*models.Product, error) {
	product, err := s.owned(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	input.Apply(product)
	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return product, nil
}

func (s *productService) Delete(ctx context.Context, identity models.Identity, id uuid.UUID) error {
	if _, err := s.owned(ctx, identity, id); err != nil {
		return err
	}
	if err := s.productRepo.Delete(ctx, identity.UserID, id); err != nil {
		return err
	}
	log.Printf("INFO: farmer %s removed product %s", identity.UserID, id)
	s.invalidate(ctx, id)
	return nil
}

// UploadImage stores the image under the farmer's prefix and points the
// product at it.
func (s *productService) UploadImage(ctx context.Context, identity models.Identity, id uuid.UUID, filename, contentType string, reader io.Reader, size int64) (*models.Product, error) {
	product, err := s.owned(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, models.NewValidationError("image", "image is empty")
	}

	if err := s.minioService.EnsureBucketExists(ctx, s.cfg.ImageBucket); err != nil {
		return nil, models.StorageError("ensure image bucket", err)
	}
	objectKey := productImageKey(identity.UserID, id, filename)
	if err := s.minioService.UploadImage(ctx, s.cfg.ImageBucket, objectKey, reader, size, contentType); err != nil {
		return nil, models.StorageError("upload product image", err)
	}

	url := s.minioService.ObjectURL(s.cfg.ImageBucket, objectKey)
	if err := s.productRepo.SetImageURL(ctx, identity.UserID, id, url); err != nil {
		if delErr := s.minioService.DeleteImage(ctx, s.cfg.ImageBucket, objectKey); delErr != nil {
			log.Printf("WARN: failed to remove orphaned image %s: %v", objectKey, delErr)
		}
		return nil, err
	}

	product.ImageURL = &url
	s.invalidate(ctx, id)
	return product, nil
}

func (s *productService) LowStock(ctx context.Context, threshold int) ([]*models.Product, error) {
	return s.productRepo.ListLowStock(ctx, threshold)
}

// owned loads a product the calling farmer may change.
func (s *productService) owned(ctx context.Context, identity models.Identity, id uuid.UUID) (*models.Product, error) {
	if err := Authorize(identity, OpManageProducts); err != nil {
		return nil, err
	}
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.FarmerID != identity.UserID {
		return nil, fmt.Errorf("%w: product %s belongs to another farmer", models.ErrForbidden, id)
	}
	return product, nil
}

func (s *productService) invalidate(ctx context.Context, id uuid.UUID) {
	if id != uuid.Nil {
		if err := s.cacheService.DeleteProduct(ctx, id); err != nil {
			log.Printf("WARN: failed to invalidate cache for product %s: %v", id, err)
		}
	}
	if err := s.cacheService.InvalidateMarketplace(ctx); err != nil {
		log.Printf("WARN: failed to invalidate marketplace cache: %v", err)
	}
}
