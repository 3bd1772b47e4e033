// Package api - API types for SDA calculation
// These types define the wire contract of the HTTP endpoints.
package api

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"sda-calculator/core/engine"
	"sda-calculator/core/pricing"
	"sda-calculator/core/types"
	"sda-calculator/db"
	"sda-calculator/internal/errors"
)

// CalculateRequest is the body of POST /api/v1/sda/calculate
type CalculateRequest struct {
	StockType      string `json:"stock_type" validate:"required,stock_type"`
	BuildingType   string `json:"building_type" validate:"required,max=100"`
	DesignCategory string `json:"design_category" validate:"required,design_category"`
	OOAStatus      string `json:"ooa_status" validate:"required,ooa_status"`
	FireSprinklers bool   `json:"fire_sprinklers"`
	ITCClaimed     *bool  `json:"itc_claimed"`
	SA4Region      string `json:"sa4_region" validate:"required,max=100"`

	// AsOf prices against the tables in force on this date (YYYY-MM-DD)
	AsOf string `json:"as_of,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// toEngine converts the DTO for the calculation engine
func (r CalculateRequest) toEngine() engine.CalculateRequest {
	return engine.CalculateRequest{
		StockType:      r.StockType,
		BuildingType:   r.BuildingType,
		DesignCategory: r.DesignCategory,
		OOAStatus:      r.OOAStatus,
		FireSprinklers: r.FireSprinklers,
		ITCClaimed:     r.ITCClaimed,
		SA4Region:      r.SA4Region,
		AsOf:           r.AsOf,
	}
}

// CalculateResponse is the breakdown returned by a successful calculation
type CalculateResponse = pricing.Breakdown

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Detail  string                 `json:"detail"`
	Type    errors.Type            `json:"type,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
	Errors  []errors.FieldError    `json:"errors,omitempty"`
}

// ServiceInfo is returned by GET /
type ServiceInfo struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HealthResponse is returned by GET /api/v1/health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// VersionResponse is returned by GET /version
type VersionResponse struct {
	Version    string `json:"version"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

// SnapshotInfo describes the snapshot currently served
type SnapshotInfo struct {
	ID       string                `json:"id"`
	Source   string                `json:"source"`
	LoadedAt string                `json:"loaded_at"`
	Stats    pricing.SnapshotStats `json:"stats"`
}

// DBStatusResponse is returned by GET /api/v1/admin/db-status
type DBStatusResponse struct {
	Initialized bool           `json:"initialized"`
	Stats       db.TableCounts `json:"stats"`
	Snapshot    *SnapshotInfo  `json:"snapshot,omitempty"`
}

// newValidator builds the DTO validator. Field errors are reported under
// their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("stock_type", func(fl validator.FieldLevel) bool {
		_, err := types.ParseStockType(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("design_category", func(fl validator.FieldLevel) bool {
		_, err := types.ParseDesignCategory(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("ooa_status", func(fl validator.FieldLevel) bool {
		_, err := types.ParseOOAStatus(fl.Field().String())
		return err == nil
	})
	return v
}

// validationFields converts validator errors to field errors
func validationFields(err error) []errors.FieldError {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []errors.FieldError{{Field: "body", Message: err.Error()}}
	}
	fields := make([]errors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, errors.FieldError{Field: fe.Field(), Message: validationMessage(fe)})
	}
	return fields
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "datetime":
		return fe.Field() + " must be a date in YYYY-MM-DD format"
	case "stock_type":
		return fe.Field() + " must be one of: " + joinValues(types.AllStockTypes)
	case "design_category":
		return fe.Field() + " must be one of: " + joinValues(types.AllDesignCategories)
	case "ooa_status":
		return fe.Field() + " must be one of: " + joinValues(types.AllOOAStatuses)
	default:
		return fe.Field() + " is invalid"
	}
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
