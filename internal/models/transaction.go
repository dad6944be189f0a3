package models

import "time"

// Transaction is one registry-reported deal, already normalized to base
// currency units. For rent records Amount holds the deposit.
type Transaction struct {
	Kind          DealKind  `json:"kind"`
	Amount        int64     `json:"amount"`
	MonthlyRent   int64     `json:"monthly_rent,omitempty"`
	ExclusiveArea float64   `json:"exclusive_area"`
	DealDate      time.Time `json:"deal_date"`
}

// PricePerArea returns the amount per square meter of exclusive area.
func (t Transaction) PricePerArea() float64 {
	if t.ExclusiveArea <= 0 {
		return 0
	}
	return float64(t.Amount) / t.ExclusiveArea
}

// MonthsSince counts calendar months between the deal and ref, the way the
// registry reports deal months. Deals after ref count as zero.
func (t Transaction) MonthsSince(ref time.Time) int {
	months := (ref.Year()-t.DealDate.Year())*12 + int(ref.Month()) - int(t.DealDate.Month())
	if months < 0 {
		return 0
	}
	return months
}

// TransactionSet is an insertion-ordered set of transactions. Two records
// are duplicates when every field is equal.
type TransactionSet struct {
	items []Transaction
	seen  map[transactionKey]struct{}
}

type transactionKey struct {
	kind        DealKind
	amount      int64
	monthlyRent int64
	area        float64
	date        string
}

func (t Transaction) key() transactionKey {
	return transactionKey{
		kind:        t.Kind,
		amount:      t.Amount,
		monthlyRent: t.MonthlyRent,
		area:        t.ExclusiveArea,
		date:        t.DealDate.Format("2006-01-02"),
	}
}

func NewTransactionSet() *TransactionSet {
	return &TransactionSet{seen: make(map[transactionKey]struct{})}
}

// Add inserts the given records and reports how many were new.
func (s *TransactionSet) Add(txs ...Transaction) int {
	added := 0
	for _, tx := range txs {
		k := tx.key()
		if _, dup := s.seen[k]; dup {
			continue
		}
		s.seen[k] = struct{}{}
		s.items = append(s.items, tx)
		added++
	}
	return added
}

func (s *TransactionSet) Len() int {
	return len(s.items)
}

// Items returns a copy of the records in insertion order.
func (s *TransactionSet) Items() []Transaction {
	out := make([]Transaction, len(s.items))
	copy(out, s.items)
	return out
}

// Latest returns the record with the most recent deal date.
func (s *TransactionSet) Latest() (Transaction, bool) {
	if len(s.items) == 0 {
		return Transaction{}, false
	}
	latest := s.items[0]
	for _, tx := range s.items[1:] {
		if tx.DealDate.After(latest.DealDate) {
			latest = tx
		}
	}
	return latest, true
}

// WithinArea returns the records whose exclusive area lies within
// tolerance square meters of target, bounds inclusive.
func WithinArea(txs []Transaction, target, tolerance float64) []Transaction {
	var out []Transaction
	for _, tx := range txs {
		if tx.ExclusiveArea >= target-tolerance && tx.ExclusiveArea <= target+tolerance {
			out = append(out, tx)
		}
	}
	return out
}
