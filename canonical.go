package syncbox

import (
	"strconv"
	"strings"

	"github.com/velmie/syncbox/internal/coerce"
)

// defaultReorderPoint is emitted for items that carry no reorder point.
const defaultReorderPoint = 10

type route struct {
	entity EntityKind
	op     OpKind
}

type mapper func(op PendingOperation, p map[string]any) map[string]any

var canonicalMappers = map[route]mapper{
	{EntityItem, OpUpsert}:                      canonicalItem,
	{EntityParty, OpUpsert}:                     canonicalParty,
	{EntityParty, OpUpsertCustomer}:             canonicalCustomer,
	{EntityParty, OpUpsertVendor}:               canonicalVendor,
	{EntityTransaction, OpCreateSale}:           canonicalSale,
	{EntityTransaction, OpCreatePayment}:        canonicalPayment,
	{EntityTransaction, OpCreateVendorPurchase}: canonicalVendorPurchase,
	{EntityTransaction, OpCreateExpense}:        canonicalExpense,
	{EntityTransactionLineSet, OpUpsertMany}:    canonicalLineSet,
	{EntityReminder, OpUpsert}:                  canonicalReminder,
	{EntityReminder, OpMarkDone}:                canonicalReminderDone,
}

// Canonicalize maps op to its wire body: fixed field names, coerced values and
// no null members at any depth. The result is a fresh map on every call and
// marshals to identical bytes for identical input. It returns nil when the op
// has no body.
func Canonicalize(op PendingOperation) map[string]any {
	p := coerce.Map(map[string]any(op.Payload))
	fn, ok := canonicalMappers[route{op.EntityKind, op.OpKind}]
	if !ok {
		if op.Payload == nil {
			return nil
		}
		out, _ := coerce.StripNulls(p).(map[string]any)
		return out
	}
	if p == nil {
		p = map[string]any{}
	}

	out, _ := coerce.StripNulls(fn(op, p)).(map[string]any)

	return out
}

// fields collects optional values, skipping absent ones.
type fields map[string]any

func (f fields) put(key string, value any, ok bool) {
	if ok {
		f[key] = value
	}
}

func (f fields) int(key string, v any) {
	n, ok := coerce.Int(v)
	f.put(key, n, ok)
}

func (f fields) float(key string, v any) {
	n, ok := coerce.Float(v)
	f.put(key, n, ok)
}

func (f fields) str(key string, v any) {
	s, ok := coerce.String(v)
	f.put(key, s, ok)
}

// entityIntID prefers a numeric entity id and falls back to payload "id".
func entityIntID(op PendingOperation, p map[string]any) (int64, bool) {
	if id, err := strconv.ParseInt(strings.TrimSpace(op.EntityID), 10, 64); err == nil {
		return id, true
	}

	return coerce.Int(p["id"])
}

func entityStringID(op PendingOperation, p map[string]any) (string, bool) {
	if id := strings.TrimSpace(op.EntityID); id != "" {
		return id, true
	}

	return coerce.String(p["id"])
}

func canonicalItem(op PendingOperation, p map[string]any) map[string]any {
	f := fields{}
	id, ok := entityIntID(op, p)
	f.put("id", id, ok)
	f.str("name", p["name"])
	f.str("category", p["category"])
	f.float("price", p["price"])
	f.float("costPrice", p["costPrice"])
	f.int("stock", p["stock"])
	f.float("gstPercentage", p["gstPercentage"])
	reorder, ok := coerce.Int(p["reorderPoint"])
	if !ok {
		reorder = defaultReorderPoint
	}
	f["reorderPoint"] = reorder
	f.int("vendorId", p["vendorId"])
	f.str("rackLocation", p["rackLocation"])
	f.str("barcode", p["barcode"])
	f.str("imageUri", p["imageUri"])
	f.int("expiryDateMillis", p["expiryDateMillis"])

	return f
}

func canonicalParty(op PendingOperation, p map[string]any) map[string]any {
	f := fields{}
	id, ok := entityIntID(op, p)
	f.put("id", id, ok)
	f.str("type", p["type"])
	f.str("name", p["name"])
	f.str("phone", p["phone"])
	f.str("gstNumber", p["gstNumber"])
	f.float("balance", p["balance"])

	return f
}

func canonicalCustomer(op PendingOperation, p map[string]any) map[string]any {
	f := fields{}
	id, ok := entityIntID(op, p)
	f.put("id", id, ok)
	f["type"] = "CUSTOMER"
	f.str("name", p["name"])
	f.str("phone", p["phone"])
	f["balance"] = float64(0)

	return f
}

func canonicalVendor(op PendingOperation, p map[string]any) map[string]any {
	f := fields{}
	id, ok := entityIntID(op, p)
	f.put("id", id, ok)
	f["type"] = "VENDOR"
	f.str("name", p["name"])
	f.str("phone", p["phone"])
	f.str("gstNumber", p["gstNumber"])
	f["balance"] = float64(0)

	return f
}

func canonicalSale(op PendingOperation, p map[string]any) map[string]any {
	f := fields{}
	f.str("localId", op.EntityID)
	f["type"] = "SALE"
	f.str("paymentMode", p["paymentMode"])
	f.int("customerId", p["customerId"])
	f.float("amount", p["amount"])
	f["items"] = canonicalLines(p["items"])

	return f
}

func canonicalPayment(op PendingOperation, p map[string]any) map[string]any {
	f := fields{}
	f.str("localId", op.EntityID)
	f.int("partyId", p["partyId"])
	f.str("partyType", p["partyType"])
	f.float("amount", p["amount"])
	f.str("mode", p["mode"])

	return f
}

func canonicalVendorPurchase(op PendingOperation, p map[string]any) map[string]any {
	f := fields{}
	f.str("localId", op.EntityID)
	f.int("vendorId", p["vendorId"])
	f.float("amount", p["amount"])
	f.str("mode", p["mode"])
	f.str("note", p["note"])

	return f
}

func canonicalExpense(op PendingOperation, p map[string]any) map[string]any {
	f := fields{}
	f.str("localId", op.EntityID)
	f.float("amount", p["amount"])
	f.str("mode", p["mode"])
	f.int("vendorId", p["vendorId"])
	f.str("category", p["category"])
	f.str("description", p["description"])

	return f
}

func canonicalLineSet(op PendingOperation, p map[string]any) map[string]any {
	f := fields{}
	f.str("transactionLocalId", op.EntityID)
	f["items"] = canonicalLines(p["items"])

	return f
}

func canonicalReminder(op PendingOperation, p map[string]any) map[string]any {
	f := fields{}
	id, ok := entityStringID(op, p)
	f.put("localId", id, ok)
	f.str("type", p["type"])
	f.int("refId", p["refId"])
	f.str("title", p["title"])
	f.int("dueAt", p["dueAt"])
	f.str("note", p["note"])

	return f
}

func canonicalReminderDone(op PendingOperation, p map[string]any) map[string]any {
	f := fields{}
	id, ok := entityStringID(op, p)
	f.put("id", id, ok)

	return f
}

// canonicalLines is shared by every op that carries transaction lines so they
// all emit the same line shape. Non-object elements are skipped.
func canonicalLines(v any) []any {
	raw, _ := v.([]any)
	out := make([]any, 0, len(raw))
	for _, el := range raw {
		line, ok := el.(map[string]any)
		if !ok {
			continue
		}
		f := fields{}
		f.int("itemId", line["itemId"])
		if name, ok := coerce.String(line["name"]); ok {
			f["name"] = name
		} else {
			f.str("name", line["itemNameSnapshot"])
		}
		f.int("qty", line["qty"])
		f.float("price", line["price"])
		out = append(out, map[string]any(f))
	}

	return out
}
