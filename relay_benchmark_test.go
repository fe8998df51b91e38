package syncbox

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkRelayDrainOnce(b *testing.B) {
	ctx := context.Background()
	remote := RemoteFunc(func(context.Context, Envelope, RequestPreview) Result {
		return Result{OK: true}
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		store := NewMemoryStore(MemoryStoreConfig{Generator: &sequenceGenerator{}})
		for j := 0; j < 100; j++ {
			if _, err := store.Enqueue(ctx, itemUpsert(fmt.Sprint(j+1))); err != nil {
				b.Fatalf("enqueue: %v", err)
			}
		}
		relay := NewRelay(store, remote, "bench", WithBatchSize(100))
		b.StartTimer()

		if _, err := relay.DrainOnce(ctx); err != nil {
			b.Fatalf("drain: %v", err)
		}
	}
}

func BenchmarkCanonicalizeSale(b *testing.B) {
	op := PendingOperation{
		EntityKind: EntityTransaction,
		EntityID:   "tx-1",
		OpKind:     OpCreateSale,
		Payload: Payload{
			"paymentMode": "CASH",
			"amount":      250,
			"items": []any{
				map[string]any{"itemId": 1, "qty": 2, "price": 50},
				map[string]any{"itemId": 2, "qty": 3, "price": 50},
			},
		},
	}

	for i := 0; i < b.N; i++ {
		_ = Canonicalize(op)
	}
}
