package alerts

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func types(alerts []Alert) map[Type]Severity {
	out := make(map[Type]Severity, len(alerts))
	for _, a := range alerts {
		out[a.Type] = a.Severity
	}
	return out
}

func TestEvaluateStockLevels(t *testing.T) {
	cases := []struct {
		name string
		qty  string
		min  string
		want map[Type]Severity
	}{
		{"out of stock", "0", "10", map[Type]Severity{TypeOutOfStock: SeverityCritical}},
		{"out of stock without minimum", "0", "0", map[Type]Severity{TypeOutOfStock: SeverityCritical}},
		{"quarter", "2.5", "10", map[Type]Severity{TypeLowStock: SeverityHigh}},
		{"half", "5", "10", map[Type]Severity{TypeLowStock: SeverityMedium}},
		{"at minimum", "10", "10", map[Type]Severity{TypeLowStock: SeverityLow}},
		{"above minimum", "11", "10", map[Type]Severity{}},
		{"no minimum", "1", "0", map[Type]Severity{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(Input{PartID: 1, PartCode: "BRK", Quantity: d(tc.qty), MinimumStock: d(tc.min), Now: now})
			require.Equal(t, tc.want, types(got))
		})
	}
}

func TestEvaluateExpiry(t *testing.T) {
	past := now.Add(-time.Hour)
	soon := now.Add(10 * 24 * time.Hour)
	later := now.Add(90 * 24 * time.Hour)
	in := Input{
		PartID:   1,
		PartCode: "OIL",
		Quantity: d("20"),
		Now:      now,
		Batches: []BatchExpiry{
			{BatchNumber: "B1", Remaining: d("2"), ExpiryDate: &past},
			{BatchNumber: "B2", Remaining: d("0"), ExpiryDate: &past},
			{BatchNumber: "B3", Remaining: d("5"), ExpiryDate: &soon},
			{BatchNumber: "B4", Remaining: d("5"), ExpiryDate: &later},
			{BatchNumber: "B5", Remaining: d("5")},
		},
	}
	got := Evaluate(in)
	require.Equal(t, map[Type]Severity{TypeExpired: SeverityHigh, TypeNearExpiry: SeverityMedium}, types(got))
	for _, a := range got {
		switch a.Type {
		case TypeExpired:
			require.Contains(t, a.Message, "1 expired batch")
			require.Contains(t, a.Message, "B1")
		case TypeNearExpiry:
			require.Contains(t, a.Message, "B3 in 10 day(s)")
		}
	}

	in.ExpiryWindow = 5 * 24 * time.Hour
	require.Equal(t, map[Type]Severity{TypeExpired: SeverityHigh}, types(Evaluate(in)))
}

func TestEvaluateMessageGroupsDigits(t *testing.T) {
	got := Evaluate(Input{PartID: 1, PartCode: "BOLT", Quantity: d("1200"), MinimumStock: d("5000"), Now: now})
	require.Len(t, got, 1)
	require.Equal(t, "BOLT is low: 1,200.00 on hand, minimum 5,000.00", got[0].Message)
}
