package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// chainBalance is the aggregate stock implied by the last transaction.
func chainBalance(last *Transaction) decimal.Decimal {
	if last == nil {
		return decimal.Zero
	}
	return last.QuantityAfter
}

// verifyChainHead checks that the transaction chain agrees with the batch total before a
// new transaction is appended.
func verifyChainHead(partID int64, last *Transaction, batchTotal decimal.Decimal) (decimal.Decimal, error) {
	before := chainBalance(last)
	if !before.Equal(batchTotal) {
		return before, fmt.Errorf("%w: part %d chain balance %s, batch total %s", ErrLedgerInconsistent, partID, before, batchTotal)
	}
	return before, nil
}

// link fills QuantityBefore and QuantityAfter of t from the chain head.
func link(t Transaction, before decimal.Decimal) Transaction {
	t.QuantityBefore = before
	t.QuantityAfter = before.Add(t.Quantity)
	return t
}

// VerifyChain walks a part's transactions (ordered by id) and reports every break in
// the before/after chain plus disagreement with the batch total.
func VerifyChain(partID int64, txs []Transaction, batchTotal decimal.Decimal) LedgerReport {
	report := LedgerReport{PartID: partID, Transactions: len(txs), BatchTotal: batchTotal, ChainBalance: decimal.Zero}
	running := decimal.Zero
	for _, t := range txs {
		if !t.QuantityBefore.Equal(running) {
			report.Breaks = append(report.Breaks, ChainBreak{TransactionID: t.ID, Expected: running, Actual: t.QuantityBefore, Reason: "quantity_before does not match previous quantity_after"})
		}
		if !t.QuantityBefore.Add(t.Quantity).Equal(t.QuantityAfter) {
			report.Breaks = append(report.Breaks, ChainBreak{TransactionID: t.ID, Expected: t.QuantityBefore.Add(t.Quantity), Actual: t.QuantityAfter, Reason: "quantity_after is not quantity_before plus quantity"})
		}
		if t.QuantityAfter.IsNegative() {
			report.Breaks = append(report.Breaks, ChainBreak{TransactionID: t.ID, Expected: decimal.Zero, Actual: t.QuantityAfter, Reason: "negative stock"})
		}
		running = t.QuantityAfter
	}
	report.ChainBalance = running
	return report
}
