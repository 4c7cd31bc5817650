package offline

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/shopspring/decimal"
)

func TestClient_NetworkErrorQueuesOperation(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{err: networkErr()}
	queue := newTestQueue(t, openTestStore(t, ":memory:"), remote, 0)
	client := NewClient(remote, queue)

	if err := client.MarkAlertRead(ctx, 11); !errors.Is(err, ErrQueued) {
		t.Fatalf("expected ErrQueued, got %v", err)
	}
	if err := client.UpdatePrice(ctx, 2, decimal.RequireFromString("3.50")); !errors.Is(err, ErrQueued) {
		t.Fatalf("expected ErrQueued, got %v", err)
	}
	if _, err := client.LookupProduct(ctx, "4006381333931"); !errors.Is(err, ErrQueued) {
		t.Fatalf("expected ErrQueued, got %v", err)
	}

	items := queue.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 queued items, got %d", len(items))
	}
	kinds := []Kind{KindAlertAck, KindPriceUpdate, KindLookup}
	for i, kind := range kinds {
		if items[i].Kind != kind || items[i].Status != StatusPending {
			t.Fatalf("item %d: expected PENDING %s, got %+v", i, kind, items[i])
		}
	}

	remote.setErr(nil)
	result, err := queue.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if result.Replayed != 3 {
		t.Fatalf("expected all queued operations to replay, got %+v", result)
	}
}

func TestClient_RejectionIsReturnedAndNotQueued(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{err: &StatusError{Status: http.StatusNotFound, Message: "product not found"}}
	queue := newTestQueue(t, openTestStore(t, ":memory:"), remote, 0)
	client := NewClient(remote, queue)

	_, err := client.LookupProduct(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(queue.Items()) != 0 {
		t.Fatalf("expected nothing queued, got %+v", queue.Items())
	}
}

func TestClient_SuccessPassesThrough(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	queue := newTestQueue(t, openTestStore(t, ":memory:"), remote, 0)
	client := NewClient(remote, queue)

	product, err := client.LookupProduct(ctx, "4006381333931")
	if err != nil {
		t.Fatalf("LookupProduct: %v", err)
	}
	if product.SKU != "4006381333931" {
		t.Fatalf("unexpected product %+v", product)
	}
	if len(queue.Items()) != 0 {
		t.Fatalf("expected nothing queued")
	}
}
