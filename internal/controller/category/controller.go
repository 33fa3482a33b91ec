// Package category provides HTTP handlers for the hierarchical job
// category tree.
package category

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"jobboard-backend/internal/cache"
	"jobboard-backend/internal/database"
	"jobboard-backend/internal/model"
	"jobboard-backend/internal/utilities"
)

// CategoryController handles category related endpoints
type CategoryController struct {
	DB    *database.DBinstanceStruct
	Cache *cache.Cache
}

// NewCategoryController creates a new instance of CategoryController
func NewCategoryController(db *database.DBinstanceStruct, c *cache.Cache) *CategoryController {
	return &CategoryController{DB: db, Cache: c}
}

// CategoryResponse augments a category with derived tree values.
type CategoryResponse struct {
	model.Category
	FullPath string `json:"full_path"`
	Depth    int    `json:"depth"`
	JobCount int64  `json:"job_count"`
}

type editableCategoryInfo struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	ParentID    *uint   `json:"parent_id"`
}

// GetCategories fetches the whole category tree, served from cache
// when possible.
// @Summary List all categories with derived path and depth
// @Tags Category
// @Produce json
// @Success 200 {array} category.CategoryResponse "All categories"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /category [get]
func (cc *CategoryController) GetCategories(c *gin.Context) {
	ctx := context.Background()

	var cached []CategoryResponse
	if cc.Cache.GetJSON(ctx, cache.CategoryListKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	var categories []model.Category
	if err := cc.DB.Preload("Children").Order("name ASC").Find(&categories).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to fetch categories: %s", err.Error()),
		})
		return
	}

	resp := make([]CategoryResponse, 0, len(categories))
	for i := range categories {
		full, err := cc.buildResponse(&categories[i])
		if err != nil {
			c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
				Error: fmt.Sprintf("Failed to resolve category tree: %s", err.Error()),
			})
			return
		}
		resp = append(resp, full)
	}

	cc.Cache.SetJSON(ctx, cache.CategoryListKey, resp, cache.CategoryListTTL)
	c.JSON(http.StatusOK, resp)
}

// GetCategoryByID fetches one category with derived values.
// @Summary Get one category
// @Tags Category
// @Produce json
// @Param id path int true "Category ID"
// @Success 200 {object} category.CategoryResponse "Category"
// @Failure 404 {object} utilities.ErrorResponse "Category not found"
// @Router /category/{id} [get]
func (cc *CategoryController) GetCategoryByID(c *gin.Context) {
	var cat model.Category
	if err := cc.DB.Preload("Children").First(&cat, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Category not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	resp, err := cc.buildResponse(&cat)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateCategory creates a category, deriving a unique slug from its name.
// @Summary Create category
// @Description Admin only
// @Tags Category
// @Accept json
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param category body category.editableCategoryInfo true "Category information"
// @Success 201 {object} model.Category "Created category"
// @Failure 400 {object} utilities.ErrorResponse "Missing name or unknown parent"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /category [post]
func (cc *CategoryController) CreateCategory(c *gin.Context) {
	var info editableCategoryInfo
	if err := c.ShouldBindJSON(&info); err != nil || info.Name == "" {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: "Category name must be provided"})
		return
	}

	if info.ParentID != nil {
		var parent model.Category
		if err := cc.DB.First(&parent, *info.ParentID).Error; err != nil {
			c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: "Parent category not found"})
			return
		}
	}

	cat := model.Category{
		Name:        info.Name,
		Description: info.Description,
		ParentID:    info.ParentID,
	}
	// A concurrent create can take the derived slug between the check
	// and the insert; the unique index reports that as 23505 and the
	// suffix loop runs again with the winner visible.
	for attempt := 0; ; attempt++ {
		slug, err := utilities.UniqueSlug(cc.DB.DB, &model.Category{}, info.Name, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
				Error: fmt.Sprintf("Failed to derive slug: %s", err.Error()),
			})
			return
		}
		cat.Slug = slug

		err = cc.DB.Create(&cat).Error
		if err == nil {
			break
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if attempt < 3 {
				continue
			}
			c.JSON(http.StatusConflict, utilities.ErrorResponse{
				Error: "Category slug is already in use",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to create category: %s", err.Error()),
		})
		return
	}

	cc.Cache.InvalidateCategories(context.Background())
	c.JSON(http.StatusCreated, cat)
}

// UpdateCategory edits name/description/parent. A parent change walks
// the proposed parent's ancestor chain and rejects cycles.
// @Summary Update category
// @Description Admin only. Rejects a parent assignment that would create a cycle.
// @Tags Category
// @Accept json
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "Category ID"
// @Param category body category.editableCategoryInfo true "Fields to update"
// @Success 200 {object} model.Category "Updated category"
// @Failure 400 {object} utilities.ErrorResponse "Cyclic parent or unknown parent"
// @Failure 404 {object} utilities.ErrorResponse "Category not found"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /category/{id} [patch]
func (cc *CategoryController) UpdateCategory(c *gin.Context) {
	var cat model.Category
	if err := cc.DB.First(&cat, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Category not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	var info editableCategoryInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		c.JSON(http.StatusBadRequest, utilities.ErrorResponse{
			Error: fmt.Sprintf("Invalid request body: %s", err.Error()),
		})
		return
	}

	if info.ParentID != nil {
		if err := cat.ValidateParent(cc.DB.DB, *info.ParentID); err != nil {
			if errors.Is(err, model.ErrCategoryCycle) {
				c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: err.Error()})
				return
			}
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusBadRequest, utilities.ErrorResponse{Error: "Parent category not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
			return
		}
		cat.ParentID = info.ParentID
	}

	if info.Name != "" && info.Name != cat.Name {
		// The category's own row is excluded so a rename that keeps
		// the same slug does not pick up a spurious suffix.
		slug, err := utilities.UniqueSlug(cc.DB.DB, &model.Category{}, info.Name, cat.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
			return
		}
		cat.Name = info.Name
		cat.Slug = slug
	}
	if info.Description != nil {
		cat.Description = info.Description
	}

	if err := cc.DB.Save(&cat).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to update category: %s", err.Error()),
		})
		return
	}

	cc.Cache.InvalidateCategories(context.Background())
	c.JSON(http.StatusOK, cat)
}

// DeleteCategory removes a category; children and jobs referencing it
// cascade at the storage layer.
// @Summary Delete category
// @Description Admin only. Cascades to child categories and to jobs in the category.
// @Tags Category
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "Category ID"
// @Success 200 {object} utilities.MessageResponse "Deleted"
// @Failure 404 {object} utilities.ErrorResponse "Category not found"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /category/{id} [delete]
func (cc *CategoryController) DeleteCategory(c *gin.Context) {
	var cat model.Category
	if err := cc.DB.First(&cat, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Category not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	if err := cc.DB.Delete(&cat).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to delete category: %s", err.Error()),
		})
		return
	}

	cc.Cache.InvalidateCategories(context.Background())
	cc.Cache.InvalidateJobs(context.Background())
	c.JSON(http.StatusOK, utilities.MessageResponse{Message: "Category deleted"})
}

func (cc *CategoryController) buildResponse(cat *model.Category) (CategoryResponse, error) {
	fullPath, err := cat.FullPath(cc.DB.DB)
	if err != nil {
		return CategoryResponse{}, err
	}
	depth, err := cat.Depth(cc.DB.DB)
	if err != nil {
		return CategoryResponse{}, err
	}

	var jobCount int64
	if err := cc.DB.Model(&model.Job{}).
		Where("category_id = ? AND status = ?", cat.ID, model.JobStatusActive).
		Count(&jobCount).Error; err != nil {
		return CategoryResponse{}, err
	}

	return CategoryResponse{
		Category: *cat,
		FullPath: fullPath,
		Depth:    depth,
		JobCount: jobCount,
	}, nil
}
