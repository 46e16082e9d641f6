package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

var hundred = decimal.NewFromInt(100)

func (s *Service) validate(p Part) error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("part code is required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("part name is required: %w", shared.ErrValidation)
	}
	if p.MinimumStock.IsNegative() {
		return fmt.Errorf("minimum stock must not be negative: %w", shared.ErrValidation)
	}
	if p.SalePrice.IsNegative() {
		return fmt.Errorf("sale price must not be negative: %w", shared.ErrValidation)
	}
	if p.VATRate.IsNegative() || p.VATRate.GreaterThan(hundred) {
		return fmt.Errorf("vat rate must be between 0 and 100: %w", shared.ErrValidation)
	}
	if p.CostingMethod != "" && !p.CostingMethod.Valid() {
		return fmt.Errorf("unsupported costing method %q: %w", p.CostingMethod, shared.ErrValidation)
	}
	return nil
}
