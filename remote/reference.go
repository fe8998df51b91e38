package remote

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/velmie/syncbox"
	"github.com/velmie/syncbox/internal/coerce"
)

const (
	partyCustomer = "CUSTOMER"
	partyVendor   = "VENDOR"
)

// Projection is a copy of the reference remote state.
type Projection struct {
	Items        map[int64]map[string]any
	Parties      map[int64]map[string]any
	Transactions map[string]map[string]any
	// SeenOpIDs lists applied op ids in application order.
	SeenOpIDs []string
}

// Counts reports projection sizes.
type Counts struct {
	Items        int
	Parties      int
	Transactions int
}

// Option configures a Reference.
type Option func(*Reference)

// WithLogger sets the logger receiving accept and reject decisions.
func WithLogger(logger syncbox.Logger) Option {
	return func(r *Reference) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Reference is a last-writer-wins in-memory remote. Each Apply runs its
// dedup check, validation, mutation and seen-marking as one critical section.
type Reference struct {
	logger syncbox.Logger

	mu           sync.Mutex
	items        map[int64]map[string]any
	parties      map[int64]map[string]any
	transactions map[string]map[string]any
	seen         map[string]struct{}
	seenOrder    []string
}

var _ syncbox.Remote = (*Reference)(nil)

// NewReference returns an empty reference remote.
func NewReference(opts ...Option) *Reference {
	r := &Reference{
		logger:       syncbox.NopLogger{},
		items:        make(map[int64]map[string]any),
		parties:      make(map[int64]map[string]any),
		transactions: make(map[string]map[string]any),
		seen:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Apply implements syncbox.Remote. Rejections leave the projection and the
// seen set untouched, so the same op id may be applied again later.
func (r *Reference) Apply(_ context.Context, env syncbox.Envelope, preview syncbox.RequestPreview) syncbox.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[env.OpID]; ok {
		return syncbox.Result{OK: true, Message: "idempotent replay: already applied opId=" + env.OpID}
	}

	if reason := validateEnvelope(env); reason != "" {
		return r.reject(env, reason)
	}

	mutate, reason := r.plan(preview.Method, preview.Path, coerce.Map(env.Body))
	if reason != "" {
		return r.reject(env, reason)
	}
	if mutate != nil {
		mutate()
	}
	r.seen[env.OpID] = struct{}{}
	r.seenOrder = append(r.seenOrder, env.OpID)
	r.logger.Debug("syncbox reference accepted", "op_id", env.OpID, "method", preview.Method, "path", preview.Path)

	return syncbox.Result{OK: true, Message: fmt.Sprintf("accepted %s %s", preview.Method, preview.Path)}
}

// Snapshot returns a deep copy of the current state.
func (r *Reference) Snapshot() Projection {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := Projection{
		Items:        make(map[int64]map[string]any, len(r.items)),
		Parties:      make(map[int64]map[string]any, len(r.parties)),
		Transactions: make(map[string]map[string]any, len(r.transactions)),
		SeenOpIDs:    append([]string(nil), r.seenOrder...),
	}
	for id, item := range r.items {
		p.Items[id] = coerce.Map(item)
	}
	for id, party := range r.parties {
		p.Parties[id] = coerce.Map(party)
	}
	for id, tx := range r.transactions {
		p.Transactions[id] = coerce.Map(tx)
	}

	return p
}

// Counts returns the number of items, parties and transactions.
func (r *Reference) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Counts{
		Items:        len(r.items),
		Parties:      len(r.parties),
		Transactions: len(r.transactions),
	}
}

// TransactionIDs returns the stored transaction ids in sorted order.
func (r *Reference) TransactionIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.transactions))
	for id := range r.transactions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func (r *Reference) reject(env syncbox.Envelope, reason string) syncbox.Result {
	r.logger.Debug("syncbox reference rejected", "op_id", env.OpID, "reason", reason)

	return syncbox.Result{Message: "rejected: " + reason}
}

func validateEnvelope(env syncbox.Envelope) string {
	switch {
	case env.APIVersion != syncbox.APIVersion:
		return fmt.Sprintf("unsupported apiVersion=%d", env.APIVersion)
	case strings.TrimSpace(env.DeviceID) == "":
		return "missing deviceId"
	case strings.TrimSpace(env.OpID) == "":
		return "missing opId"
	}

	return ""
}

// plan validates a request against the current state and returns the
// mutation to apply. Nothing is changed until the caller runs it.
func (r *Reference) plan(method, path string, body map[string]any) (func(), string) {
	rest, ok := strings.CutPrefix(path, syncbox.APIBase+"/")
	if !ok {
		return nil, "unknown path " + path
	}
	if strings.Contains(rest, syncbox.UnsupportedMarker) {
		return nil, fmt.Sprintf("unsupported operation %s %s", method, path)
	}

	switch {
	case method == http.MethodPut && strings.HasPrefix(rest, "items/"):
		return r.planItemUpsert(body)
	case method == http.MethodDelete && strings.HasPrefix(rest, "items/"):
		return r.planItemDelete(strings.TrimPrefix(rest, "items/"))
	case method == http.MethodPut && strings.HasPrefix(rest, "parties/"):
		return r.planPartyUpsert(body)
	case method == http.MethodDelete && strings.HasPrefix(rest, "parties/"):
		return r.planPartyDelete(strings.TrimPrefix(rest, "parties/"))
	case method == http.MethodPost && rest == "customers":
		return r.planTypedParty("customer", partyCustomer, body)
	case method == http.MethodPost && rest == "vendors":
		return r.planTypedParty("vendor", partyVendor, body)
	case method == http.MethodPost && rest == "transactions/sale":
		return r.planSale(body)
	case method == http.MethodPost && rest == "transactions/payment":
		return r.planPayment(body)
	case method == http.MethodPost && rest == "transactions/vendor_purchase":
		return r.planVendorPurchase(body)
	case method == http.MethodPost && rest == "transactions/expense":
		return r.planExpense(body)
	case method == http.MethodPost && strings.HasPrefix(rest, "transactions/") && strings.HasSuffix(rest, "/items"):
		localID := strings.TrimSuffix(strings.TrimPrefix(rest, "transactions/"), "/items")
		return r.planLineSet(localID, body)
	case method == http.MethodDelete && strings.HasPrefix(rest, "transactions/"):
		return r.planTransactionDelete(strings.TrimPrefix(rest, "transactions/"))
	}

	// Reminders and other routes are accepted without projection state.
	return nil, ""
}

func (r *Reference) planItemUpsert(body map[string]any) (func(), string) {
	if body == nil {
		return nil, "missing body"
	}
	id, ok := positiveInt(body["id"])
	if !ok {
		return nil, "missing/invalid item.id"
	}
	if !nonBlank(body["name"]) {
		return nil, "missing item.name"
	}
	stored := coerce.Map(body)

	return func() { r.items[id] = stored }, ""
}

func (r *Reference) planItemDelete(raw string) (func(), string) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, "invalid item id in path"
	}

	return func() { delete(r.items, id) }, ""
}

func (r *Reference) planPartyUpsert(body map[string]any) (func(), string) {
	if body == nil {
		return nil, "missing body"
	}
	id, ok := positiveInt(body["id"])
	if !ok {
		return nil, "missing/invalid party.id"
	}
	if !nonBlank(body["name"]) {
		return nil, "missing party.name"
	}
	kind, _ := coerce.String(body["type"])
	if kind != partyCustomer && kind != partyVendor {
		return nil, fmt.Sprintf("invalid party.type=%q", kind)
	}
	stored := coerce.Map(body)

	return func() { r.parties[id] = stored }, ""
}

func (r *Reference) planTypedParty(label, kind string, body map[string]any) (func(), string) {
	if body == nil {
		return nil, "missing body"
	}
	id, ok := positiveInt(body["id"])
	if !ok {
		return nil, fmt.Sprintf("missing/invalid %s.id", label)
	}
	if !nonBlank(body["phone"]) {
		return nil, fmt.Sprintf("missing %s.phone", label)
	}
	if !nonBlank(body["name"]) {
		return nil, fmt.Sprintf("missing %s.name", label)
	}
	stored := coerce.Map(body)
	stored["type"] = kind

	return func() { r.parties[id] = stored }, ""
}

func (r *Reference) planPartyDelete(raw string) (func(), string) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, "invalid party id in path"
	}

	return func() { delete(r.parties, id) }, ""
}

func (r *Reference) planSale(body map[string]any) (func(), string) {
	if body == nil {
		return nil, "missing body"
	}
	localID, ok := coerce.String(body["localId"])
	if !ok {
		return nil, "missing sale.localId"
	}
	if !nonBlank(body["paymentMode"]) {
		return nil, "missing sale.paymentMode"
	}
	if customerID, ok := positiveInt(body["customerId"]); ok {
		if _, exists := r.parties[customerID]; !exists {
			return nil, fmt.Sprintf("unknown customerId=%d (not synced yet)", customerID)
		}
	}
	lines, ok := body["items"].([]any)
	if !ok {
		return nil, "missing sale.items[]"
	}
	if reason := r.validateLines("sale.items", lines); reason != "" {
		return nil, reason
	}

	return r.storeTransaction(localID, body), ""
}

func (r *Reference) planPayment(body map[string]any) (func(), string) {
	if body == nil {
		return nil, "missing body"
	}
	localID, ok := coerce.String(body["localId"])
	if !ok {
		return nil, "missing payment.localId"
	}
	partyID, ok := positiveInt(body["partyId"])
	if !ok {
		return nil, "missing/invalid payment.partyId"
	}
	if _, exists := r.parties[partyID]; !exists {
		return nil, fmt.Sprintf("unknown partyId=%d (not synced yet)", partyID)
	}

	return r.storeTransaction(localID, body), ""
}

func (r *Reference) planVendorPurchase(body map[string]any) (func(), string) {
	if body == nil {
		return nil, "missing body"
	}
	localID, ok := coerce.String(body["localId"])
	if !ok {
		return nil, "missing vendor_purchase.localId"
	}
	vendorID, ok := positiveInt(body["vendorId"])
	if !ok {
		return nil, "missing/invalid vendorId"
	}
	if reason := r.requireVendor(vendorID); reason != "" {
		return nil, reason
	}

	return r.storeTransaction(localID, body), ""
}

func (r *Reference) planExpense(body map[string]any) (func(), string) {
	if body == nil {
		return nil, "missing body"
	}
	localID, ok := coerce.String(body["localId"])
	if !ok {
		return nil, "missing expense.localId"
	}
	if vendorID, ok := positiveInt(body["vendorId"]); ok {
		if reason := r.requireVendor(vendorID); reason != "" {
			return nil, reason
		}
	}

	return r.storeTransaction(localID, body), ""
}

func (r *Reference) planLineSet(localID string, body map[string]any) (func(), string) {
	if body == nil {
		return nil, "missing body"
	}
	tx, exists := r.transactions[localID]
	if !exists {
		return nil, fmt.Sprintf("unknown transaction=%s (not synced yet)", localID)
	}
	lines, ok := body["items"].([]any)
	if !ok {
		return nil, "missing items[]"
	}
	if reason := r.validateLines("items", lines); reason != "" {
		return nil, reason
	}
	updated := coerce.Map(tx)
	updated["items"] = coerce.Normalize(lines)

	return func() { r.transactions[localID] = updated }, ""
}

func (r *Reference) planTransactionDelete(localID string) (func(), string) {
	if strings.TrimSpace(localID) == "" || strings.Contains(localID, "/") {
		return nil, "invalid transaction id in path"
	}

	return func() { delete(r.transactions, localID) }, ""
}

func (r *Reference) storeTransaction(localID string, body map[string]any) func() {
	stored := coerce.Map(body)

	return func() { r.transactions[localID] = stored }
}

func (r *Reference) requireVendor(id int64) string {
	vendor, exists := r.parties[id]
	if !exists {
		return fmt.Sprintf("unknown vendorId=%d (not synced yet)", id)
	}
	if kind, _ := coerce.String(vendor["type"]); kind != partyVendor {
		return fmt.Sprintf("vendorId=%d is not type=VENDOR", id)
	}

	return ""
}

func (r *Reference) validateLines(label string, lines []any) string {
	if len(lines) == 0 {
		return label + "[] is empty"
	}
	for i, raw := range lines {
		line, ok := raw.(map[string]any)
		if !ok {
			return fmt.Sprintf("%s[%d] not an object", label, i)
		}
		if qty, ok := coerce.Int(line["qty"]); !ok || qty <= 0 {
			return fmt.Sprintf("%s[%d].qty invalid", label, i)
		}
		if price, ok := coerce.Float(line["price"]); !ok || price < 0 {
			return fmt.Sprintf("%s[%d].price invalid", label, i)
		}
		if itemID, ok := positiveInt(line["itemId"]); ok {
			if _, exists := r.items[itemID]; !exists {
				return fmt.Sprintf("%s[%d].itemId=%d not synced yet", label, i, itemID)
			}
			continue
		}
		if !nonBlank(line["name"]) {
			return fmt.Sprintf("%s[%d] needs itemId or name", label, i)
		}
	}

	return ""
}

func positiveInt(v any) (int64, bool) {
	n, ok := coerce.Int(v)
	if !ok || n <= 0 {
		return 0, false
	}

	return n, true
}

func nonBlank(v any) bool {
	_, ok := coerce.String(v)
	return ok
}
