package enums

type PurchaseStatus string

const (
	PurchaseStatusCredited         PurchaseStatus = "credited"
	PurchaseStatusReconcilePending PurchaseStatus = "reconcile_pending"
)
