// README: Fee definition for each checkride type.
package pricing

type Fee struct {
	ExamType    string
	AmountCents int64
	Currency    string
}

// DefaultAmountCents is charged when no per-type fee is configured.
const DefaultAmountCents = 10000 // $100.00

const DefaultCurrency = "usd"
