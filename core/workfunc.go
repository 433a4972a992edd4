package core

import (
	"context"
	"fmt"
	"reflect"
)

// WorkFunc is the normalized work-function signature used by the pipeline.
// shared is the read-only context from the source's setup; history holds the
// prior turns of a multi-turn case (nil for single-turn cases).
type WorkFunc func(ctx context.Context, input any, shared any, history []Exchange) (any, error)

var (
	contextType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	exchangeType = reflect.TypeOf([]Exchange(nil))
)

// AdaptWorkFunc resolves a user supplied function into a WorkFunc once, at
// configuration time. Accepted shapes take an optional leading
// context.Context followed by one to three positional parameters (input,
// shared context, history) and return either a single value or a
// (value, error) pair, e.g.:
//
//	func(input string) string
//	func(ctx context.Context, input any, shared *Client) (string, error)
//	func(input string, shared any, history []core.Exchange) (string, error)
//
// Unsupported shapes do not panic: the returned WorkFunc fails every call
// with a descriptive error so each unit records it as an error result.
func AdaptWorkFunc(fn any) WorkFunc {
	switch f := fn.(type) {
	case nil:
		return failingWork(ErrNoWorkFunc)
	case WorkFunc:
		return f
	case func(context.Context, any, any, []Exchange) (any, error):
		return f
	}

	rv := reflect.ValueOf(fn)
	rt := rv.Type()
	if rt.Kind() != reflect.Func {
		return failingWork(fmt.Errorf("work function must be a func, got %T", fn))
	}
	if rt.IsVariadic() {
		return failingWork(fmt.Errorf("work function must not be variadic: %s", rt))
	}

	offset := 0
	if rt.NumIn() > 0 && rt.In(0).Implements(contextType) {
		offset = 1
	}
	arity := rt.NumIn() - offset
	if arity < 1 || arity > 3 {
		return failingWork(&ArityError{Arity: arity})
	}

	switch {
	case rt.NumOut() == 1 && rt.Out(0) != errorType:
	case rt.NumOut() == 2 && rt.Out(1) == errorType:
	default:
		return failingWork(fmt.Errorf("work function must return a value or (value, error): %s", rt))
	}

	return func(ctx context.Context, input any, shared any, history []Exchange) (any, error) {
		args := make([]reflect.Value, 0, rt.NumIn())
		if offset == 1 {
			args = append(args, reflect.ValueOf(ctx))
		}
		positional := []any{input, shared, history}
		for i := 0; i < arity; i++ {
			arg, err := argValue(positional[i], rt.In(offset+i))
			if err != nil {
				return nil, fmt.Errorf("work function argument %d: %w", i+1, err)
			}
			args = append(args, arg)
		}

		out := rv.Call(args)
		if len(out) == 2 && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}
}

func argValue(v any, want reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(want), nil
	}
	if h, ok := v.([]Exchange); ok && h == nil && want != exchangeType {
		return reflect.Zero(want), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(want) {
		return rv, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, want)
}

func failingWork(err error) WorkFunc {
	return func(context.Context, any, any, []Exchange) (any, error) {
		return nil, err
	}
}
