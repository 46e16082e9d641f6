package alerts

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultExpiryWindow is how far ahead NEAR_EXPIRY looks when no window is configured.
const DefaultExpiryWindow = 30 * 24 * time.Hour

var (
	quarter = decimal.RequireFromString("0.25")
	half    = decimal.RequireFromString("0.5")
)

// Evaluate derives the alert conditions that currently hold for a part. It has no side
// effects and returns at most one alert per type.
func Evaluate(in Input) []Alert {
	p := message.NewPrinter(language.English)
	window := in.ExpiryWindow
	if window <= 0 {
		window = DefaultExpiryWindow
	}
	var out []Alert
	raise := func(t Type, sev Severity, msg string) {
		out = append(out, Alert{PartID: in.PartID, Type: t, Severity: sev, Message: msg, FirstRaisedAt: in.Now, LastRaisedAt: in.Now})
	}

	switch {
	case !in.Quantity.IsPositive():
		raise(TypeOutOfStock, SeverityCritical, p.Sprintf("%s is out of stock", in.PartCode))
	case in.MinimumStock.IsPositive() && in.Quantity.LessThanOrEqual(in.MinimumStock):
		raise(TypeLowStock, lowStockSeverity(in.Quantity, in.MinimumStock),
			p.Sprintf("%s is low: %.2f on hand, minimum %.2f", in.PartCode, in.Quantity.InexactFloat64(), in.MinimumStock.InexactFloat64()))
	}

	var (
		expired, near           int
		firstExpired, firstNear *BatchExpiry
	)
	horizon := in.Now.Add(window)
	for i := range in.Batches {
		b := &in.Batches[i]
		if b.ExpiryDate == nil || !b.Remaining.IsPositive() {
			continue
		}
		switch {
		case !b.ExpiryDate.After(in.Now):
			expired++
			if firstExpired == nil || b.ExpiryDate.Before(*firstExpired.ExpiryDate) {
				firstExpired = b
			}
		case !b.ExpiryDate.After(horizon):
			near++
			if firstNear == nil || b.ExpiryDate.Before(*firstNear.ExpiryDate) {
				firstNear = b
			}
		}
	}
	if expired > 0 {
		raise(TypeExpired, SeverityHigh, p.Sprintf("%s has %d expired batch(es), earliest %s expired %s",
			in.PartCode, expired, firstExpired.BatchNumber, firstExpired.ExpiryDate.Format("2006-01-02")))
	}
	if near > 0 {
		days := int(firstNear.ExpiryDate.Sub(in.Now).Hours() / 24)
		raise(TypeNearExpiry, SeverityMedium, p.Sprintf("%s has %d batch(es) expiring soon, %s in %d day(s)",
			in.PartCode, near, firstNear.BatchNumber, days))
	}
	return out
}

func lowStockSeverity(qty, minimum decimal.Decimal) Severity {
	ratio := qty.Div(minimum)
	switch {
	case ratio.LessThanOrEqual(quarter):
		return SeverityHigh
	case ratio.LessThanOrEqual(half):
		return SeverityMedium
	default:
		return SeverityLow
	}
}
