package enums

import "fmt"

// CoinAction enumerates deferred operations against the coin ledger.
type CoinAction string

const (
	CoinActionProductPurchaseCashback    CoinAction = "product_purchase_cashback"
	CoinActionStorePurchaseCashback      CoinAction = "store_purchase_cashback"
	CoinActionExperiencePurchaseCashback CoinAction = "experience_purchase_cashback"
	CoinActionExperiencePurchaseCharge   CoinAction = "experience_purchase_charge"
	// CoinActionExperiencePurchaseChargePromo is the spring 2024 campaign grant;
	// it is the only action that notifies the user by e-mail.
	CoinActionExperiencePurchaseChargePromo CoinAction = "experience_purchase_charge_20240401"
	CoinActionProductPurchase               CoinAction = "product_purchase"
	CoinActionStorePurchase                 CoinAction = "store_purchase"
	CoinActionExperiencePurchase            CoinAction = "experience_purchase"
)

var supportedCoinActions = []CoinAction{
	CoinActionProductPurchaseCashback,
	CoinActionStorePurchaseCashback,
	CoinActionExperiencePurchaseCashback,
	CoinActionExperiencePurchaseCharge,
	CoinActionExperiencePurchaseChargePromo,
	CoinActionProductPurchase,
	CoinActionStorePurchase,
	CoinActionExperiencePurchase,
}

// String implements fmt.Stringer.
func (a CoinAction) String() string {
	return string(a)
}

// IsSupported reports whether the queue executes this action.
func (a CoinAction) IsSupported() bool {
	for _, candidate := range supportedCoinActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsCredit reports whether the action adds coins to the user's wallet.
func (a CoinAction) IsCredit() bool {
	switch a {
	case CoinActionProductPurchaseCashback,
		CoinActionStorePurchaseCashback,
		CoinActionExperiencePurchaseCashback,
		CoinActionExperiencePurchaseCharge,
		CoinActionExperiencePurchaseChargePromo:
		return true
	}
	return false
}

// CashbackFor returns the cashback action matching a checkout item type.
func CashbackFor(itemType ItemType) CoinAction {
	if itemType == ItemTypeExperience {
		return CoinActionExperiencePurchaseCashback
	}
	return CoinActionProductPurchaseCashback
}

// PurchaseFor returns the spend action matching a checkout item type.
func PurchaseFor(itemType ItemType) CoinAction {
	if itemType == ItemTypeExperience {
		return CoinActionExperiencePurchase
	}
	return CoinActionProductPurchase
}

// CoinActionStatus tracks a queue row.
type CoinActionStatus string

const (
	CoinActionStatusCreated    CoinActionStatus = "created"
	CoinActionStatusInProgress CoinActionStatus = "in_progress"
	CoinActionStatusCompleted  CoinActionStatus = "completed"
)

// ParseCoinActionStatus converts raw input into a CoinActionStatus.
func ParseCoinActionStatus(value string) (CoinActionStatus, error) {
	switch CoinActionStatus(value) {
	case CoinActionStatusCreated, CoinActionStatusInProgress, CoinActionStatusCompleted:
		return CoinActionStatus(value), nil
	}
	return "", fmt.Errorf("invalid coin action status %q", value)
}
