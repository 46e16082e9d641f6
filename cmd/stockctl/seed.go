package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/inventory"
	"github.com/odyssey-erp/garage-inventory/internal/locations"
)

// seedTargets are the services the demo seed writes through.
type seedTargets struct {
	Locations interface {
		Create(ctx context.Context, loc locations.Location) (locations.Location, error)
	}
	Parts interface {
		Create(ctx context.Context, part catalog.Part) (catalog.Part, error)
	}
	Stock interface {
		RecordOpeningBalance(ctx context.Context, input inventory.OpeningBalanceInput) (inventory.Batch, inventory.Transaction, error)
	}
}

type seedPart struct {
	code, name, uom string
	minimum, price  string
	method          catalog.CostingMethod
	qty, unitCost   string
}

var demoParts = []seedPart{
	{code: "BRK-PAD-F", name: "Front brake pad set", uom: "set", minimum: "4", price: "45", qty: "12", unitCost: "21.50"},
	{code: "OIL-5W30", name: "Engine oil 5W-30", uom: "l", minimum: "20", price: "9.90", method: catalog.CostingWeightedAverage, qty: "60", unitCost: "4.20"},
	{code: "FLT-OIL", name: "Oil filter", uom: "pcs", minimum: "10", price: "12", qty: "25", unitCost: "3.75"},
	{code: "WPR-600", name: "Wiper blade 600mm", uom: "pcs", minimum: "6", price: "18", qty: "3", unitCost: "7.10"},
}

func newSeedCmd(rt runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load a demo warehouse and parts with opening balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, closeFn, err := rt.seed(cmd.Context())
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}
			return seedDemo(cmd.Context(), cmd.OutOrStdout(), targets)
		},
	}
}

func seedDemo(ctx context.Context, out io.Writer, t seedTargets) error {
	fmt.Fprintln(out, "→ Seeding locations...")
	warehouse, err := t.Locations.Create(ctx, locations.Location{Code: "MAIN", Name: "Main workshop", Kind: locations.KindWarehouse})
	if errors.Is(err, locations.ErrDuplicateCode) {
		fmt.Fprintln(out, "demo data already present, nothing to do")
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed warehouse: %w", err)
	}
	zone, err := t.Locations.Create(ctx, locations.Location{Code: "MAIN-A", Name: "Aisle A", Kind: locations.KindZone, ParentID: &warehouse.ID})
	if err != nil {
		return fmt.Errorf("seed zone: %w", err)
	}
	bin, err := t.Locations.Create(ctx, locations.Location{Code: "MAIN-A-01", Name: "Bin A-01", Kind: locations.KindBin, ParentID: &zone.ID})
	if err != nil {
		return fmt.Errorf("seed bin: %w", err)
	}

	fmt.Fprintln(out, "→ Seeding parts...")
	for _, sp := range demoParts {
		part, err := t.Parts.Create(ctx, catalog.Part{
			Code:          sp.code,
			Name:          sp.name,
			UOM:           sp.uom,
			MinimumStock:  decimal.RequireFromString(sp.minimum),
			SalePrice:     decimal.RequireFromString(sp.price),
			CostingMethod: sp.method,
		})
		if err != nil {
			return fmt.Errorf("seed part %s: %w", sp.code, err)
		}
		if _, _, err := t.Stock.RecordOpeningBalance(ctx, inventory.OpeningBalanceInput{
			PartID:     part.ID,
			LocationID: &bin.ID,
			Quantity:   decimal.RequireFromString(sp.qty),
			UnitCost:   decimal.RequireFromString(sp.unitCost),
		}); err != nil {
			return fmt.Errorf("seed opening balance %s: %w", sp.code, err)
		}
		fmt.Fprintf(out, "  %s: %s %s at %s\n", sp.code, sp.qty, sp.uom, sp.unitCost)
	}
	fmt.Fprintln(out, "✓ Seed complete")
	return nil
}
