package syncbox

import (
	"encoding/json"
	"testing"
)

func canonicalJSON(t *testing.T, op PendingOperation) string {
	t.Helper()
	body := Canonicalize(op)
	if body == nil {
		return "null"
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal canonical body: %v", err)
	}

	return string(raw)
}

func TestCanonicalizeProjections(t *testing.T) {
	cases := []struct {
		name string
		op   PendingOperation
		want string
	}{
		{
			name: "item upsert coerces and defaults reorder point",
			op: PendingOperation{
				EntityKind: EntityItem,
				EntityID:   "7",
				OpKind:     OpUpsert,
				Payload: Payload{
					"name":     " Rice ",
					"price":    "50",
					"stock":    3.0,
					"barcode":  "  ",
					"vendorId": nil,
					"debug":    "local-only",
				},
			},
			want: `{"id":7,"name":"Rice","price":50,"reorderPoint":10,"stock":3}`,
		},
		{
			name: "item upsert falls back to payload id",
			op: PendingOperation{
				EntityKind: EntityItem,
				EntityID:   "local-abc",
				OpKind:     OpUpsert,
				Payload:    Payload{"id": json.Number("12"), "name": "Dal", "reorderPoint": 4},
			},
			want: `{"id":12,"name":"Dal","reorderPoint":4}`,
		},
		{
			name: "customer forces type and drops gst number",
			op: PendingOperation{
				EntityKind: EntityParty,
				EntityID:   "3",
				OpKind:     OpUpsertCustomer,
				Payload:    Payload{"type": "VENDOR", "gstNumber": "GST1", "name": "Asha", "phone": "99", "balance": 120},
			},
			want: `{"balance":0,"id":3,"name":"Asha","phone":"99","type":"CUSTOMER"}`,
		},
		{
			name: "vendor keeps gst number",
			op: PendingOperation{
				EntityKind: EntityParty,
				EntityID:   "4",
				OpKind:     OpUpsertVendor,
				Payload:    Payload{"gstNumber": "GST2", "name": "Mill", "phone": "98"},
			},
			want: `{"balance":0,"gstNumber":"GST2","id":4,"name":"Mill","phone":"98","type":"VENDOR"}`,
		},
		{
			name: "sale canonicalizes lines",
			op: PendingOperation{
				EntityKind: EntityTransaction,
				EntityID:   "tx-1",
				OpKind:     OpCreateSale,
				Payload: Payload{
					"paymentMode": "CASH",
					"amount":      100,
					"customerId":  nil,
					"items": []any{
						map[string]any{"itemId": 99, "itemNameSnapshot": "Rice", "qty": 2, "price": 50, "extra": true},
						"junk",
						nil,
					},
				},
			},
			want: `{"amount":100,"items":[{"itemId":99,"name":"Rice","price":50,"qty":2}],"localId":"tx-1","paymentMode":"CASH","type":"SALE"}`,
		},
		{
			name: "line set shares the line shape",
			op: PendingOperation{
				EntityKind: EntityTransactionLineSet,
				EntityID:   "tx-1",
				OpKind:     OpUpsertMany,
				Payload: Payload{
					"items": []map[string]any{
						{"itemId": "99", "name": "Rice", "itemNameSnapshot": "old", "qty": "2", "price": 50.0},
					},
				},
			},
			want: `{"items":[{"itemId":99,"name":"Rice","price":50,"qty":2}],"transactionLocalId":"tx-1"}`,
		},
		{
			name: "payment",
			op: PendingOperation{
				EntityKind: EntityTransaction,
				EntityID:   "pay-1",
				OpKind:     OpCreatePayment,
				Payload:    Payload{"partyId": 3, "partyType": "CUSTOMER", "amount": 20.5, "mode": "UPI"},
			},
			want: `{"amount":20.5,"localId":"pay-1","mode":"UPI","partyId":3,"partyType":"CUSTOMER"}`,
		},
		{
			name: "expense without vendor",
			op: PendingOperation{
				EntityKind: EntityTransaction,
				EntityID:   "exp-1",
				OpKind:     OpCreateExpense,
				Payload:    Payload{"amount": 10, "mode": "CASH", "category": "Rent", "description": ""},
			},
			want: `{"amount":10,"category":"Rent","localId":"exp-1","mode":"CASH"}`,
		},
		{
			name: "reminder mark done uses payload id",
			op: PendingOperation{
				EntityKind: EntityReminder,
				OpKind:     OpMarkDone,
				Payload:    Payload{"id": 5},
			},
			want: `{"id":"5"}`,
		},
		{
			name: "reminder upsert",
			op: PendingOperation{
				EntityKind: EntityReminder,
				EntityID:   "r-1",
				OpKind:     OpUpsert,
				Payload:    Payload{"type": "DUE", "refId": 3, "title": "Collect", "dueAt": int64(1700000000000)},
			},
			want: `{"dueAt":1700000000000,"localId":"r-1","refId":3,"title":"Collect","type":"DUE"}`,
		},
		{
			name: "fallback strips nulls recursively",
			op: PendingOperation{
				EntityKind: EntityItem,
				EntityID:   "7",
				OpKind:     OpDelete,
				Payload:    Payload{"id": 7, "note": nil, "nested": map[string]any{"a": nil, "b": []any{nil, 1}}},
			},
			want: `{"id":7,"nested":{"b":[1]}}`,
		},
		{
			name: "fallback without payload",
			op:   PendingOperation{EntityKind: EntityItem, EntityID: "7", OpKind: OpDelete},
			want: "null",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := canonicalJSON(t, tc.op); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestCanonicalizeIsDeterministic(t *testing.T) {
	op := PendingOperation{
		EntityKind: EntityTransaction,
		EntityID:   "tx-9",
		OpKind:     OpCreateSale,
		Payload: Payload{
			"paymentMode": "CARD",
			"amount":      "99.5",
			"items": []any{
				map[string]any{"itemId": 1, "qty": 1, "price": 99.5, "name": nil},
			},
		},
	}

	first := canonicalJSON(t, op)
	for i := 0; i < 20; i++ {
		if got := canonicalJSON(t, op); got != first {
			t.Fatalf("run %d differs: %s vs %s", i, got, first)
		}
	}
}

func TestCanonicalizeNeverEmitsNil(t *testing.T) {
	op := PendingOperation{
		EntityKind: EntityParty,
		EntityID:   "x",
		OpKind:     OpUpsert,
		Payload:    Payload{"type": nil, "name": nil, "balance": "not-a-number"},
	}

	var walk func(v any)
	walk = func(v any) {
		switch x := v.(type) {
		case nil:
			t.Fatalf("nil value in canonical body")
		case map[string]any:
			for _, val := range x {
				walk(val)
			}
		case []any:
			for _, val := range x {
				walk(val)
			}
		}
	}
	body := Canonicalize(op)
	walk(body)
	if len(body) != 0 {
		t.Fatalf("expected empty body, got %v", body)
	}
}

func TestCanonicalizeDoesNotAliasPayload(t *testing.T) {
	payload := Payload{"nested": map[string]any{"a": 1}}
	op := PendingOperation{EntityKind: EntityItem, EntityID: "1", OpKind: OpDelete, Payload: payload}

	body := Canonicalize(op)
	body["nested"].(map[string]any)["a"] = 2

	if payload["nested"].(map[string]any)["a"] != 1 {
		t.Fatalf("canonical body shares memory with payload")
	}
}

func TestCanonicalizeDropsOutOfRangeIDs(t *testing.T) {
	op := PendingOperation{
		EntityKind: EntityItem,
		OpKind:     OpUpsert,
		Payload:    Payload{"id": "9223372036854775808", "name": "Rice"},
	}
	body := Canonicalize(op)
	if _, ok := body["id"]; ok {
		t.Fatalf("expected id above int64 range to be dropped, got %v", body["id"])
	}

	op.Payload = Payload{"id": 9.223372036854775807e18, "name": "Rice"}
	if id, ok := Canonicalize(op)["id"]; ok {
		t.Fatalf("expected id 2^63 to be dropped, got %v", id)
	}
}
