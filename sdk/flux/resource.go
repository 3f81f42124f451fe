package flux

import (
	"context"
	"encoding/json"
	"fmt"
)

// resource implements the five operations shared by every kind.
// An empty collection means the top-level organisations collection.
type resource[T any] struct {
	c          *Client
	name       string
	collection string
	validates  bool
}

func (r resource[T]) endpoint(orgID string, id ...string) string {
	if r.collection == "" {
		if len(id) == 0 {
			return "organisations"
		}
		return orgPath(id[0])
	}
	return orgPath(orgID, append([]string{r.collection}, id...)...)
}

func (r resource[T]) create(ctx context.Context, orgID string, in any) (T, error) {
	var out T
	if err := checkInput(r.name, in); err != nil {
		return out, err
	}
	err := r.call(ctx, opCreate, r.endpoint(orgID), in, &out)
	return out, err
}

func (r resource[T]) list(ctx context.Context, orgID string, f Filter) (Listing[T], error) {
	return r.listAt(ctx, opList, r.endpoint(orgID), f)
}

func (r resource[T]) listAt(ctx context.Context, op operation, endpoint string, f Filter) (Listing[T], error) {
	var items []T
	resp, err := r.send(ctx, op, withQuery(endpoint, f), nil)
	if err != nil {
		return Listing[T]{}, err
	}
	if resp.status == op.noContent {
		return Listing[T]{Absent: true}, nil
	}
	if err := r.decode(op, resp, &items); err != nil {
		return Listing[T]{}, err
	}
	if items == nil {
		items = []T{}
	}
	return Listing[T]{Items: items}, nil
}

func (r resource[T]) get(ctx context.Context, orgID, id string) (T, error) {
	var out T
	err := r.call(ctx, opGet, r.endpoint(orgID, id), nil, &out)
	return out, err
}

func (r resource[T]) edit(ctx context.Context, orgID, id string, in any) (T, error) {
	var out T
	if err := checkInput(r.name, in); err != nil {
		return out, err
	}
	err := r.call(ctx, opEdit, r.endpoint(orgID, id), in, &out)
	return out, err
}

func (r resource[T]) delete(ctx context.Context, orgID, id string) error {
	_, err := r.send(ctx, opDelete, r.endpoint(orgID, id), nil)
	return err
}

func (r resource[T]) call(ctx context.Context, op operation, endpoint string, body, out any) error {
	resp, err := r.send(ctx, op, endpoint, body)
	if err != nil {
		return err
	}
	return r.decode(op, resp, out)
}

// send performs the request and classifies its status.
func (r resource[T]) send(ctx context.Context, op operation, endpoint string, body any) (response, error) {
	resp, err := r.c.do(ctx, op, r.name, endpoint, body)
	if err != nil {
		return resp, err
	}
	if kind := classify(op, r.validates, resp.status); kind != nil {
		return resp, &Error{
			Op:         op.name,
			Resource:   r.name,
			StatusCode: resp.status,
			Body:       excerpt(resp.body),
			Err:        kind,
		}
	}
	return resp, nil
}

func (r resource[T]) decode(op operation, resp response, out any) error {
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &Error{
			Op:         op.name,
			Resource:   r.name,
			StatusCode: resp.status,
			Body:       excerpt(resp.body),
			Err:        ErrUnexpected,
			cause:      fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}
