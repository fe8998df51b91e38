package syncbox

import (
	"fmt"
	"strings"
)

// EntityKind names the local entity a pending operation mutates.
type EntityKind string

const (
	// EntityItem is an inventory item.
	EntityItem EntityKind = "ITEM"
	// EntityParty is a customer or vendor.
	EntityParty EntityKind = "PARTY"
	// EntityTransaction is a sale, payment, purchase or expense.
	EntityTransaction EntityKind = "TRANSACTION"
	// EntityTransactionLineSet is the full set of lines of one transaction.
	EntityTransactionLineSet EntityKind = "TRANSACTION_LINE_SET"
	// EntityReminder is a user reminder.
	EntityReminder EntityKind = "REMINDER"
)

// legacyLineSetName is accepted by ParseEntityKind for rows written before
// the line set kind was renamed.
const legacyLineSetName = "TRANSACTION_ITEM"

var entityKinds = []EntityKind{
	EntityItem,
	EntityParty,
	EntityTransaction,
	EntityTransactionLineSet,
	EntityReminder,
}

// ParseEntityKind parses a case-insensitive entity kind name.
func ParseEntityKind(value string) (EntityKind, error) {
	name := strings.ToUpper(strings.TrimSpace(value))
	if name == legacyLineSetName {
		return EntityTransactionLineSet, nil
	}
	kind := EntityKind(name)
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntityKind, value)
	}

	return kind, nil
}

// IsValid reports whether k is a known entity kind.
func (k EntityKind) IsValid() bool {
	for _, known := range entityKinds {
		if k == known {
			return true
		}
	}

	return false
}

// String implements fmt.Stringer.
func (k EntityKind) String() string {
	return string(k)
}

// MarshalText implements encoding.TextMarshaler.
func (k EntityKind) MarshalText() ([]byte, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntityKind, string(k))
	}

	return []byte(k), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EntityKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEntityKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed

	return nil
}

// OpKind names the mutation applied to an entity.
type OpKind string

const (
	// OpUpsert creates or replaces an entity.
	OpUpsert OpKind = "UPSERT"
	// OpDelete removes an entity.
	OpDelete OpKind = "DELETE"
	// OpUpsertMany replaces a collection of child rows at once.
	OpUpsertMany OpKind = "UPSERT_MANY"
	// OpMarkDone completes a reminder.
	OpMarkDone OpKind = "MARK_DONE"
	// OpCreateSale records a sale with its lines.
	OpCreateSale OpKind = "CREATE_SALE"
	// OpCreatePayment records a payment against a party.
	OpCreatePayment OpKind = "CREATE_PAYMENT"
	// OpCreateVendorPurchase records a purchase from a vendor.
	OpCreateVendorPurchase OpKind = "CREATE_VENDOR_PURCHASE"
	// OpCreateExpense records an expense.
	OpCreateExpense OpKind = "CREATE_EXPENSE"
	// OpUpsertCustomer creates or replaces a customer party.
	OpUpsertCustomer OpKind = "UPSERT_CUSTOMER"
	// OpUpsertVendor creates or replaces a vendor party.
	OpUpsertVendor OpKind = "UPSERT_VENDOR"
)

var opKinds = []OpKind{
	OpUpsert,
	OpDelete,
	OpUpsertMany,
	OpMarkDone,
	OpCreateSale,
	OpCreatePayment,
	OpCreateVendorPurchase,
	OpCreateExpense,
	OpUpsertCustomer,
	OpUpsertVendor,
}

// ParseOpKind parses a case-insensitive operation kind name.
func ParseOpKind(value string) (OpKind, error) {
	kind := OpKind(strings.ToUpper(strings.TrimSpace(value)))
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOpKind, value)
	}

	return kind, nil
}

// IsValid reports whether k is a known operation kind.
func (k OpKind) IsValid() bool {
	for _, known := range opKinds {
		if k == known {
			return true
		}
	}

	return false
}

// String implements fmt.Stringer.
func (k OpKind) String() string {
	return string(k)
}

// MarshalText implements encoding.TextMarshaler.
func (k OpKind) MarshalText() ([]byte, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOpKind, string(k))
	}

	return []byte(k), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *OpKind) UnmarshalText(text []byte) error {
	parsed, err := ParseOpKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed

	return nil
}
