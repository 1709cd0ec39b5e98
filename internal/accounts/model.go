package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Account models a chart of accounts node. Accounts are immutable once
// referenced by a ledger entry; the registry is read-only to the engines.
type Account struct {
	ID        int64
	TenantID  int64
	Code      string
	Name      string
	Type      AccountType
	IsSystem  bool
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
