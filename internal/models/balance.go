package models

// Balance is an individual pocket, one row per user, created lazily on
// first credit. Amount is a non-negative whole-unit integer.
type Balance struct {
	UserID string `json:"user_id" db:"user_id"`
	Amount int64  `json:"amount" db:"amount"`
}

// CompanyBalance is a shared pocket, one row per company.
type CompanyBalance struct {
	CompanyID string `json:"company_id" db:"company_id"`
	Amount    int64  `json:"amount" db:"amount"`
}

// CompanyBalanceView is what getBalances returns for each company the
// user belongs to.
type CompanyBalanceView struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Balance   int64  `json:"balance"`
	Role      string `json:"role"`
}

// BalanceSummary joins the user's personal pocket with every company
// pocket they can spend from.
type BalanceSummary struct {
	Personal  int64                `json:"personal"`
	Companies []CompanyBalanceView `json:"companies"`
}
