package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smartfix-dev/smartfix-api/models"
	"gorm.io/gorm"
)

// ServiceInput creates a catalog entry
type ServiceInput struct {
	Name        string
	Description *string
	Price       decimal.Decimal
}

// ServicePatch is a partial catalog update
type ServicePatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
}

// ServiceCatalog is the shop's price list. Reads are open to any signed-in
// user, writes are admin-only.
type ServiceCatalog struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewServiceCatalog creates a catalog over db
func NewServiceCatalog(db *gorm.DB, timeout time.Duration) *ServiceCatalog {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &ServiceCatalog{db: db, timeout: timeout}
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return ValidationError("price cannot be negative")
	}
	if price.Exponent() < -2 && !price.Equal(price.Round(2)) {
		return ValidationError("price can have at most two decimal places")
	}
	return nil
}

// List returns every service ordered by name
func (c *ServiceCatalog) List(ctx context.Context) ([]models.Service, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	services := []models.Service{}
	if err := c.db.WithContext(ctx).Order("name ASC, id ASC").Find(&services).Error; err != nil {
		return nil, classifyStoreError("list services", err)
	}
	return services, nil
}

// Get returns one service
func (c *ServiceCatalog) Get(ctx context.Context, id uint) (*models.Service, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var svc models.Service
	if err := c.db.WithContext(ctx).First(&svc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("service %d not found", id)
		}
		return nil, classifyStoreError("get service", err)
	}
	return &svc, nil
}

// Create adds a service to the catalog
func (c *ServiceCatalog) Create(ctx context.Context, caller Caller, in ServiceInput) (*models.Service, error) {
	if err := requireAdmin(caller, "only administrators can manage services"); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ValidationError("name is required")
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	svc := models.Service{Name: name, Description: in.Description, Price: in.Price}
	if err := c.db.WithContext(ctx).Create(&svc).Error; err != nil {
		return nil, classifyStoreError("create service", err)
	}
	return &svc, nil
}

// Update changes the given fields of a service
func (c *ServiceCatalog) Update(ctx context.Context, caller Caller, id uint, patch ServicePatch) (*models.Service, error) {
	if err := requireAdmin(caller, "only administrators can manage services"); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, ValidationError("name cannot be empty")
		}
		updates["name"] = name
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Price != nil {
		if err := validatePrice(*patch.Price); err != nil {
			return nil, err
		}
		updates["price"] = *patch.Price
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var svc models.Service
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&svc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundError("service %d not found", id)
			}
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&svc).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&svc, id).Error
	})
	if err != nil {
		return nil, classifyStoreError("update service", err)
	}
	return &svc, nil
}

// Delete removes a service
func (c *ServiceCatalog) Delete(ctx context.Context, caller Caller, id uint) error {
	if err := requireAdmin(caller, "only administrators can manage services"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res := c.db.WithContext(ctx).Delete(&models.Service{}, id)
	if res.Error != nil {
		return classifyStoreError("delete service", res.Error)
	}
	if res.RowsAffected == 0 {
		return NotFoundError("service %d not found", id)
	}
	return nil
}
