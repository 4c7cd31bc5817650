package offline

import (
	"context"
	"errors"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrQueued is returned when an operation could not reach the server and was queued for replay.
var ErrQueued = errors.New("operation queued for replay")

// Client performs remote operations directly and falls back to the queue on network errors.
type Client struct {
	remote Remote
	queue  *Queue
}

func NewClient(remote Remote, queue *Queue) *Client {
	return &Client{remote: remote, queue: queue}
}

func (c *Client) LookupProduct(ctx context.Context, barcode string) (*domain.Product, error) {
	product, err := c.remote.LookupProduct(ctx, barcode)
	if err == nil {
		return product, nil
	}
	return nil, c.deferOnNetwork(ctx, err, KindLookup, LookupPayload{Barcode: barcode})
}

func (c *Client) MarkAlertRead(ctx context.Context, alertID uint) error {
	err := c.remote.MarkAlertRead(ctx, alertID)
	if err == nil {
		return nil
	}
	return c.deferOnNetwork(ctx, err, KindAlertAck, AlertAckPayload{AlertID: alertID})
}

func (c *Client) UpdatePrice(ctx context.Context, productID uint, price decimal.Decimal) error {
	err := c.remote.UpdatePrice(ctx, productID, price)
	if err == nil {
		return nil
	}
	return c.deferOnNetwork(ctx, err, KindPriceUpdate, PriceUpdatePayload{ProductID: productID, Price: price})
}

func (c *Client) deferOnNetwork(ctx context.Context, err error, kind Kind, payload any) error {
	if !errors.Is(err, ErrNetwork) {
		return err
	}
	if _, qerr := c.queue.Enqueue(ctx, kind, payload); qerr != nil {
		return errors.Join(err, qerr)
	}
	return ErrQueued
}
