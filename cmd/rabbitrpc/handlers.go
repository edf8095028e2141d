package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/glimte/rabbitrpc"
)

var (
	errUnknownHandler = errors.New("unknown handler")
	errBadRequest     = errors.New("bad request")
)

var builtinHandlers = map[string]rabbitrpc.Handler{
	"echo":  rabbitrpc.HandlerFunc(echo),
	"arith": rabbitrpc.HandlerFunc(arith),
}

func lookupHandler(name string) (rabbitrpc.Handler, error) {
	h, ok := builtinHandlers[name]
	if !ok {
		names := make([]string, 0, len(builtinHandlers))
		for n := range builtinHandlers {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w %q, available: %v", errUnknownHandler, name, names)
	}
	return h, nil
}

func echo(_ context.Context, request any) (any, error) {
	return request, nil
}

// arith evaluates {"op": "sum"|"sub"|"mul"|"div", "args": [...]}. Integer
// arguments give an integer result except for div.
func arith(_ context.Context, request any) (any, error) {
	req, ok := request.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: want a mapping, got %T", errBadRequest, request)
	}
	op, _ := req["op"].(string)
	switch op {
	case "sum", "sub", "mul", "div":
	default:
		return nil, fmt.Errorf("%w: unknown op %q", errBadRequest, op)
	}
	args, ok := req["args"].([]any)
	if !ok || len(args) == 0 {
		return nil, fmt.Errorf("%w: args must be a non-empty list", errBadRequest)
	}

	nums := make([]float64, len(args))
	allInts := true
	for i, a := range args {
		switch v := a.(type) {
		case int:
			nums[i] = float64(v)
		case int64:
			nums[i] = float64(v)
		case float64:
			nums[i] = v
			allInts = false
		default:
			return nil, fmt.Errorf("%w: argument %d is %T, not a number", errBadRequest, i, a)
		}
	}

	result := nums[0]
	for _, n := range nums[1:] {
		switch op {
		case "sum":
			result += n
		case "sub":
			result -= n
		case "mul":
			result *= n
		case "div":
			if n == 0 {
				return nil, fmt.Errorf("%w: division by zero", errBadRequest)
			}
			result /= n
		}
	}

	if allInts && op != "div" {
		return int(result), nil
	}
	return result, nil
}
