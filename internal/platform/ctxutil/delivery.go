package ctxutil

import "context"

type deliveryDataKey struct{}

// DeliveryData identifies the queue delivery a context is working on.
type DeliveryData struct {
	DeliveryID   string
	DataSourceID string
}

func WithDeliveryData(ctx context.Context, dd *DeliveryData) context.Context {
	return context.WithValue(Default(ctx), deliveryDataKey{}, dd)
}

func GetDeliveryData(ctx context.Context) *DeliveryData {
	if ctx == nil {
		return nil
	}
	if dd, ok := ctx.Value(deliveryDataKey{}).(*DeliveryData); ok {
		return dd
	}
	return nil
}
