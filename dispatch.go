package syncbox

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/velmie/syncbox/internal/coerce"
)

// APIBase prefixes every remote path.
const APIBase = "/v1"

// UnsupportedMarker tags fallback paths for entity and op pairs without a
// route. Remotes are expected to reject such paths.
const UnsupportedMarker = "_unsupported_"

const defaultPreviewChars = 900

// RequestPreview names the remote request an operation maps to. It performs
// no I/O and is used for debugging, dry runs and remote routing.
type RequestPreview struct {
	Method string
	Path   string
	// Body is the canonical body, nil for bodiless requests.
	Body map[string]any
}

// OneLine renders the preview as "Would METHOD PATH body=..." cut to maxChars
// runes. A non-positive maxChars uses the default of 900.
func (p RequestPreview) OneLine(maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultPreviewChars
	}
	body := "null"
	if p.Body != nil {
		if raw, err := json.Marshal(p.Body); err == nil {
			body = string(raw)
		}
	}
	line := fmt.Sprintf("Would %s %s body=%s", p.Method, p.Path, body)
	if utf8.RuneCountInString(line) <= maxChars {
		return line
	}

	return string([]rune(line)[:maxChars]) + "…"
}

// String implements fmt.Stringer.
func (p RequestPreview) String() string {
	return p.OneLine(0)
}

type routeSpec struct {
	method string
	// path is appended to APIBase. "{id}" is replaced by the entity id.
	path     string
	withBody bool
}

var routes = map[route]routeSpec{
	{EntityItem, OpUpsert}:                      {http.MethodPut, "/items/{id}", true},
	{EntityItem, OpDelete}:                      {http.MethodDelete, "/items/{id}", false},
	{EntityParty, OpUpsert}:                     {http.MethodPut, "/parties/{id}", true},
	{EntityParty, OpDelete}:                     {http.MethodDelete, "/parties/{id}", false},
	{EntityParty, OpUpsertCustomer}:             {http.MethodPost, "/customers", true},
	{EntityParty, OpUpsertVendor}:               {http.MethodPost, "/vendors", true},
	{EntityTransaction, OpDelete}:               {http.MethodDelete, "/transactions/{id}", false},
	{EntityTransaction, OpCreateSale}:           {http.MethodPost, "/transactions/sale", true},
	{EntityTransaction, OpCreatePayment}:        {http.MethodPost, "/transactions/payment", true},
	{EntityTransaction, OpCreateVendorPurchase}: {http.MethodPost, "/transactions/vendor_purchase", true},
	{EntityTransaction, OpCreateExpense}:        {http.MethodPost, "/transactions/expense", true},
	{EntityTransaction, OpUpsert}:               {http.MethodPut, "/transactions/{id}", true},
	{EntityTransactionLineSet, OpUpsertMany}:    {http.MethodPost, "/transactions/{id}/items", true},
	{EntityReminder, OpUpsert}:                  {http.MethodPost, "/reminders", true},
	{EntityReminder, OpDelete}:                  {http.MethodDelete, "/reminders/{id}", false},
	{EntityReminder, OpMarkDone}:                {http.MethodPost, "/reminders/{id}/done", false},
}

var collections = map[EntityKind]string{
	EntityItem:               "items",
	EntityParty:              "parties",
	EntityTransaction:        "transactions",
	EntityTransactionLineSet: "transaction_items",
	EntityReminder:           "reminders",
}

// SupportedRoute reports whether entity and op map to a dedicated remote route.
func SupportedRoute(entity EntityKind, op OpKind) bool {
	_, ok := routes[route{entity, op}]
	return ok
}

// Preview maps op to its remote request. Pairs without a route map to
// POST /v1/{collection}/_unsupported_{op} instead of failing.
func Preview(op PendingOperation) RequestPreview {
	spec, ok := routes[route{op.EntityKind, op.OpKind}]
	if !ok {
		return RequestPreview{
			Method: http.MethodPost,
			Path:   fmt.Sprintf("%s/%s/%s%s", APIBase, collection(op.EntityKind), UnsupportedMarker, strings.ToLower(string(op.OpKind))),
			Body:   Canonicalize(op),
		}
	}

	preview := RequestPreview{
		Method: spec.method,
		Path:   APIBase + strings.ReplaceAll(spec.path, "{id}", pathID(op)),
	}
	if spec.withBody {
		preview.Body = Canonicalize(op)
	}

	return preview
}

func collection(kind EntityKind) string {
	if name, ok := collections[kind]; ok {
		return name
	}

	return strings.ToLower(string(kind))
}

func pathID(op PendingOperation) string {
	if id := strings.TrimSpace(op.EntityID); id != "" {
		return id
	}
	if id, ok := coerce.String(coerce.Map(map[string]any(op.Payload))["id"]); ok {
		return id
	}

	return "null"
}
