package relation

import "context"

// Source is the asynchronous data source a bound collection loads through.
// FetchByKey returns every row of the target entity whose key field equals
// key. Zero rows is a successful empty result, not an error; only transport
// and store failures come back as errors.
type Source interface {
	FetchByKey(ctx context.Context, entity string, keyField string, key any) ([]map[string]any, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, entity string, keyField string, key any) ([]map[string]any, error)

func (f SourceFunc) FetchByKey(ctx context.Context, entity string, keyField string, key any) ([]map[string]any, error) {
	return f(ctx, entity, keyField, key)
}
