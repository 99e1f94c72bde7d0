package models

// UnitStatus is the physical status of a tracked unit.
type UnitStatus string

const (
	UnitStatusAvailable                UnitStatus = "available"
	UnitStatusInTransit                UnitStatus = "in_transit"
	UnitStatusLoaned                   UnitStatus = "loaned"
	UnitStatusInstalled                UnitStatus = "installed"
	UnitStatusDamaged                  UnitStatus = "damaged"
	UnitStatusInRepair                 UnitStatus = "in_repair"
	UnitStatusAwaitingReturnToSupplier UnitStatus = "awaiting_return_to_supplier"
	UnitStatusWrittenOff               UnitStatus = "written_off"
	UnitStatusScrap                    UnitStatus = "scrap"
	UnitStatusReturnedToSupplier       UnitStatus = "returned_to_supplier"
	UnitStatusLost                     UnitStatus = "lost"
)

// knownUnitStatuses is the closed status set. Anything else is a validation error.
var knownUnitStatuses = map[UnitStatus]bool{
	UnitStatusAvailable:                true,
	UnitStatusInTransit:                true,
	UnitStatusLoaned:                   true,
	UnitStatusInstalled:                true,
	UnitStatusDamaged:                  true,
	UnitStatusInRepair:                 true,
	UnitStatusAwaitingReturnToSupplier: true,
	UnitStatusWrittenOff:               true,
	UnitStatusScrap:                    true,
	UnitStatusReturnedToSupplier:       true,
	UnitStatusLost:                     true,
}

// terminalUnitStatuses accept no further transitions.
var terminalUnitStatuses = map[UnitStatus]bool{
	UnitStatusWrittenOff:         true,
	UnitStatusScrap:              true,
	UnitStatusReturnedToSupplier: true,
	UnitStatusLost:               true,
}

func (s UnitStatus) Known() bool {
	return knownUnitStatuses[s]
}

func (s UnitStatus) IsTerminal() bool {
	return terminalUnitStatuses[s]
}

// Guard predicates for the custody operations.

func (s UnitStatus) CanCheckout() bool {
	return s == UnitStatusAvailable
}

func (s UnitStatus) CanReturn() bool {
	return s == UnitStatusLoaned || s == UnitStatusInTransit
}

func (s UnitStatus) CanInstall() bool {
	return s == UnitStatusAvailable || s == UnitStatusLoaned || s == UnitStatusInTransit
}

func (s UnitStatus) CanRepair() bool {
	return s == UnitStatusDamaged
}

// dispositionStatuses are the conditions a technician may return a unit in.
var dispositionStatuses = map[UnitStatus]bool{
	UnitStatusAvailable: true,
	UnitStatusDamaged:   true,
	UnitStatusScrap:     true,
	UnitStatusLost:      true,
}

func (s UnitStatus) IsDisposition() bool {
	return dispositionStatuses[s]
}

// DebtLineKind distinguishes quantity lines from tracked-unit lines.
// The two code paths are disjoint; switch on this exhaustively.
type DebtLineKind string

const (
	DebtLineKindQuantity DebtLineKind = "Q"
	DebtLineKindUnit     DebtLineKind = "U"
)

type DebtLineStatus string

const (
	DebtLineStatusActive            DebtLineStatus = "active"
	DebtLineStatusPartiallyReturned DebtLineStatus = "partially_returned"
	DebtLineStatusFullySettled      DebtLineStatus = "fully_settled"
	DebtLineStatusWrittenOff        DebtLineStatus = "written_off"
)

type SettlementType string

const (
	SettlementTypeAdhoc   SettlementType = "adhoc"
	SettlementTypeDaily   SettlementType = "daily"
	SettlementTypeWeekly  SettlementType = "weekly"
	SettlementTypeMonthly SettlementType = "monthly"
)

var knownSettlementTypes = map[SettlementType]bool{
	SettlementTypeAdhoc:   true,
	SettlementTypeDaily:   true,
	SettlementTypeWeekly:  true,
	SettlementTypeMonthly: true,
}

func (t SettlementType) Known() bool {
	return knownSettlementTypes[t]
}

type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "pending"
	SettlementStatusCompleted SettlementStatus = "completed"
	SettlementStatusReversed  SettlementStatus = "reversed"
)

type InstalledAssetStatus string

const (
	InstalledAssetStatusInstalled InstalledAssetStatus = "installed"
	InstalledAssetStatusRemoved   InstalledAssetStatus = "removed"
	InstalledAssetStatusReplaced  InstalledAssetStatus = "replaced"
)

// Domain event types forwarded to the notification topic.
type EventType string

const (
	EventTypeUnitStatusChanged    EventType = "unit.status_changed"
	EventTypeCheckoutExceedsLimit EventType = "checkout.exceeds_limit"
	EventTypeDebtSettled          EventType = "debt.settled"
)

type EventReferenceType string

const (
	EventReferenceTypeTrackedUnit EventReferenceType = "TrackedUnit"
	EventReferenceTypeCheckout    EventReferenceType = "Checkout"
	EventReferenceTypeSettlement  EventReferenceType = "Settlement"
)

// Outbox publish lifecycle.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
