// internal/services/catalog_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/utils"
)

type CatalogService struct {
	db       *gorm.DB
	storage  *StorageService
	currency string
}

type CreateCategoryRequest struct {
	Name        string     `json:"name" validate:"required,min=2,max=100"`
	Description string     `json:"description,omitempty" validate:"omitempty,max=1000"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
}

// CreateFileRequest describes a new listing. Price is in minor units.
type CreateFileRequest struct {
	Title       string     `json:"title" validate:"required,min=3,max=255"`
	Description string     `json:"description" validate:"omitempty,max=5000"`
	Price       int64      `json:"price" validate:"required,gt=0"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
	Tags        []string   `json:"tags,omitempty" validate:"max=10,dive,min=2,max=30"`
}

// Upload is one file part of a multipart request.
type Upload struct {
	Content     io.Reader
	Filename    string
	Size        int64
	ContentType string
}

type FileSearchParams struct {
	utils.PaginationParams
	SellerID   *uuid.UUID
	CategoryID *uuid.UUID
	PriceMin   *int64
	PriceMax   *int64
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func NewCatalogService(db *gorm.DB, storage *StorageService, currency string) *CatalogService {
	return &CatalogService{
		db:       db,
		storage:  storage,
		currency: currency,
	}
}

func (s *CatalogService) CreateCategory(ctx context.Context, req *CreateCategoryRequest) (*models.Category, error) {
	db := s.db.WithContext(ctx)

	if req.ParentID != nil {
		var parents int64
		db.Model(&models.Category{}).Where("id = ?", *req.ParentID).Count(&parents)
		if parents == 0 {
			return nil, ErrCategoryNotFound
		}
	}

	category := &models.Category{
		Name:        strings.TrimSpace(req.Name),
		Slug:        slugify(req.Name),
		Description: req.Description,
		ParentID:    req.ParentID,
		IsActive:    true,
	}

	var existing int64
	db.Model(&models.Category{}).Where("slug = ?", category.Slug).Count(&existing)
	if existing > 0 {
		return nil, ErrCategoryExists
	}

	if err := db.Create(category).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return category, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND parent_id IS NULL", true).
		Preload("Children", "is_active = ?", true).
		Order("name asc").
		Find(&categories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// CreateFile stores the uploaded content privately and lists the file for
// review. Files are not purchasable until an admin approves them.
func (s *CatalogService) CreateFile(ctx context.Context, sellerID uuid.UUID, req *CreateFileRequest, upload Upload) (*models.File, error) {
	db := s.db.WithContext(ctx)

	var seller models.User
	if err := db.First(&seller, "id = ?", sellerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if !seller.IsSeller() {
		return nil, ErrSellerOnly
	}
	if seller.Status != models.UserStatusActive {
		return nil, ErrAccountSuspended
	}

	if req.CategoryID != nil {
		var found int64
		db.Model(&models.Category{}).Where("id = ? AND is_active = ?", *req.CategoryID, true).Count(&found)
		if found == 0 {
			return nil, ErrCategoryNotFound
		}
	}

	result, err := s.storage.UploadFile(upload.Content, upload.Filename, upload.Size, upload.ContentType,
		s.storage.GetDefaultUploadOptions(UploadKindFile))
	if err != nil {
		return nil, err
	}

	file := &models.File{
		SellerID:    sellerID,
		CategoryID:  req.CategoryID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Price:       req.Price,
		Currency:    s.currency,
		StorageKey:  result.Key,
		FileURL:     result.URL,
		FileName:    upload.Filename,
		FileSize:    result.Size,
		MimeType:    result.MimeType,
		Tags:        normaliseTags(req.Tags),
		IsApproved:  false,
		IsActive:    true,
	}

	if err := db.Create(file).Error; err != nil {
		if delErr := s.storage.DeleteFile(result.Key); delErr != nil {
			logrus.WithError(delErr).WithField("key", result.Key).Warn("Failed to remove orphaned upload")
		}
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"file_id":   file.ID,
		"seller_id": sellerID,
		"size":      file.FileSize,
	}).Info("File uploaded for review")

	return file, nil
}

// GetFile hides unapproved or inactive files from everyone but their seller.
func (s *CatalogService) GetFile(ctx context.Context, id uuid.UUID, viewerID *uuid.UUID) (*models.File, error) {
	var file models.File
	if err := s.db.WithContext(ctx).Preload("Seller").Preload("Category").First(&file, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !file.IsApproved || !file.IsActive {
		if viewerID == nil || *viewerID != file.SellerID {
			return nil, ErrFileNotFound
		}
	}
	return &file, nil
}

func (s *CatalogService) ListFiles(ctx context.Context, params FileSearchParams) ([]models.File, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.File{}).
		Where("is_approved = ? AND is_active = ?", true, true)

	if params.Search != "" {
		like := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if params.SellerID != nil {
		query = query.Where("seller_id = ?", *params.SellerID)
	}
	if params.CategoryID != nil {
		query = query.Where("category_id = ?", *params.CategoryID)
	}
	if params.PriceMin != nil {
		query = query.Where("price >= ?", *params.PriceMin)
	}
	if params.PriceMax != nil {
		query = query.Where("price <= ?", *params.PriceMax)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count files: %w", err)
	}

	var files []models.File
	query = utils.ApplySort(query, params.PaginationParams, []string{"created_at", "price", "sales_count", "title"})
	if err := utils.ApplyPagination(query, params.PaginationParams).Preload("Seller").Find(&files).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list files: %w", err)
	}
	return files, total, nil
}

// ListPendingReview returns uploads waiting for approval, oldest first.
func (s *CatalogService) ListPendingReview(ctx context.Context, params utils.PaginationParams) ([]models.File, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.File{}).Where("is_approved = ?", false)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count files: %w", err)
	}

	var files []models.File
	if err := utils.ApplyPagination(query.Order("created_at asc"), params).Preload("Seller").Find(&files).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list files: %w", err)
	}
	return files, total, nil
}

func (s *CatalogService) ApproveFile(ctx context.Context, id uuid.UUID) (*models.File, error) {
	return s.setFlag(ctx, id, "is_approved", true)
}

// SetFileActive lets a seller delist or relist their own file.
func (s *CatalogService) SetFileActive(ctx context.Context, sellerID, id uuid.UUID, active bool) (*models.File, error) {
	var file models.File
	if err := s.db.WithContext(ctx).Select("id", "seller_id").First(&file, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if file.SellerID != sellerID {
		return nil, ErrFileNotFound
	}
	return s.setFlag(ctx, id, "is_active", active)
}

func (s *CatalogService) setFlag(ctx context.Context, id uuid.UUID, column string, value bool) (*models.File, error) {
	db := s.db.WithContext(ctx)

	result := db.Model(&models.File{}).Where("id = ?", id).Update(column, value)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update file: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrFileNotFound
	}

	var file models.File
	if err := db.First(&file, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to reload file: %w", err)
	}
	return &file, nil
}

func slugify(name string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// normaliseTags lowercases tags and drops blanks and duplicates.
func normaliseTags(tags []string) models.StringList {
	seen := make(map[string]bool, len(tags))
	out := models.StringList{}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
