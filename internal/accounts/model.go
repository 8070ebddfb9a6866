package accounts

import "time"

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// EntityType enumerates counterparties that resolve to control accounts.
type EntityType string

const (
	EntityTypeCustomer EntityType = "CUSTOMER"
	EntityTypeVendor   EntityType = "VENDOR"
)

// Account models a chart of accounts node.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Balance summarises the posted balance of an account within a fiscal year.
// Positive Net means a debit balance, negative means a credit balance.
type Balance struct {
	AccountID   int64
	AccountCode string
	AccountName string
	Type        AccountType
	Debits      float64
	Credits     float64
	Net         float64
}
