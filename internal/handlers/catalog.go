// internal/handlers/catalog.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/digistore-backend/internal/i18n"
	"github.com/javajoker/digistore-backend/internal/services"
	"github.com/javajoker/digistore-backend/internal/utils"
)

type CatalogHandler struct {
	catalog *services.CatalogService
}

// fileForm holds the multipart fields sent alongside an upload.
type fileForm struct {
	Title       string   `form:"title" validate:"required,min=3,max=255"`
	Description string   `form:"description" validate:"omitempty,max=5000"`
	Price       int64    `form:"price" validate:"required,gt=0"`
	CategoryID  string   `form:"category_id" validate:"omitempty,uuid"`
	Tags        []string `form:"tags" validate:"max=10,dive,min=2,max=30"`
}

func NewCatalogHandler(catalog *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// GET /categories
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, categories)
}

// POST /admin/categories
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req services.CreateCategoryRequest
	if !bindJSON(c, &req) {
		return
	}

	category, err := h.catalog.CreateCategory(c.Request.Context(), &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, category)
}

// GET /files
func (h *CatalogHandler) ListFiles(c *gin.Context) {
	params := services.FileSearchParams{
		PaginationParams: utils.GetPaginationParams(c),
		SellerID:         queryUUID(c, "seller_id"),
		CategoryID:       queryUUID(c, "category_id"),
		PriceMin:         queryInt64(c, "price_min"),
		PriceMax:         queryInt64(c, "price_max"),
	}

	files, total, err := h.catalog.ListFiles(c.Request.Context(), params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(files, total, params.PaginationParams))
}

// GET /files/:id
func (h *CatalogHandler) GetFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var viewer *uuid.UUID
	if userID, ok := utils.GetUserUUIDFromContext(c); ok {
		viewer = &userID
	}

	file, err := h.catalog.GetFile(c.Request.Context(), id, viewer)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, file)
}

// POST /files
func (h *CatalogHandler) CreateFile(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}
	lang := utils.GetLangFromContext(c)

	var form fileForm
	if err := c.ShouldBind(&form); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&form)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "file"), nil)
		return
	}
	content, err := header.Open()
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	defer content.Close()

	req := &services.CreateFileRequest{
		Title:       form.Title,
		Description: form.Description,
		Price:       form.Price,
		Tags:        form.Tags,
	}
	if form.CategoryID != "" {
		categoryID := uuid.MustParse(form.CategoryID)
		req.CategoryID = &categoryID
	}

	file, err := h.catalog.CreateFile(c.Request.Context(), sellerID, req, services.Upload{
		Content:     content,
		Filename:    header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, file)
}

// PUT /files/:id/active
func (h *CatalogHandler) SetFileActive(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Active *bool `json:"active" validate:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	file, err := h.catalog.SetFileActive(c.Request.Context(), sellerID, id, *req.Active)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, file)
}

// GET /admin/files/pending
func (h *CatalogHandler) ListPendingReview(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	files, total, err := h.catalog.ListPendingReview(c.Request.Context(), params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(files, total, params))
}

// PUT /admin/files/:id/approve
func (h *CatalogHandler) ApproveFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	file, err := h.catalog.ApproveFile(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, file)
}

func queryInt64(c *gin.Context, name string) *int64 {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return &v
		}
	}
	return nil
}
