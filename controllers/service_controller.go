package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smartfix-dev/smartfix-api/middleware"
	"github.com/smartfix-dev/smartfix-api/services"
)

// CreateServiceRequest represents the request body for adding a catalog entry
type CreateServiceRequest struct {
	Name        string           `json:"name" binding:"required"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" binding:"required"`
}

// ListServices handles GET /api/v1/services
func ListServices(c *gin.Context) {
	list, err := serviceCatalog().List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, list)
}

// GetService handles GET /api/v1/services/:id
func GetService(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	svc, err := serviceCatalog().Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, svc)
}

// CreateService handles POST /api/v1/services
func CreateService(c *gin.Context) {
	var req CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	svc, err := serviceCatalog().Create(c.Request.Context(), middleware.GetCaller(c), services.ServiceInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, svc)
}

// UpdateService handles PUT /api/v1/services/:id
func UpdateService(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var patch services.ServicePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondBindError(c, err)
		return
	}

	svc, err := serviceCatalog().Update(c.Request.Context(), middleware.GetCaller(c), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, svc)
}

// DeleteService handles DELETE /api/v1/services/:id
func DeleteService(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := serviceCatalog().Delete(c.Request.Context(), middleware.GetCaller(c), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id})
}
