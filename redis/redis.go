package redis

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"

	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
	"github.com/cesarpv27/Azure.Repositories-sub001/encoding"
)

// keyNotFound will detect whether error signifies key not found by Redis.
func keyNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// setStruct stores value as JSON. expiration 0 means no expiry.
func setStruct(ctx context.Context, c redis.Cmdable, key string, value any, expiration time.Duration) error {
	ba, err := encoding.ValueMarshaler.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, ba, expiration).Err()
}

// getStruct reads a value stored by setStruct. A missing key returns false and a nil error.
func getStruct(ctx context.Context, c redis.Cmdable, key string, target any) (bool, error) {
	ba, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if keyNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := encoding.ValueMarshaler.Unmarshal(ba, target); err != nil {
		return false, err
	}
	return true, nil
}

// translateScriptError turns the error replies of the Lua scripts, which carry a catalog code, into a
// StatusError of kind. Other errors are returned as is.
func translateScriptError(kind azerrors.ResourceKind, err error) error {
	if err == nil {
		return nil
	}
	var rerr redis.Error
	if !errors.As(err, &rerr) {
		return err
	}
	// Servers may prefix or decorate the reply, e.g. "ERR QueueNotFound".
	for _, code := range strings.FieldsFunc(rerr.Error(), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if e, ok := azerrors.Lookup(kind, code, 0); ok {
			return azerrors.NewStatusError(e, err)
		}
	}
	return err
}

// scanKeys returns the keys matching pattern.
func scanKeys(ctx context.Context, c redis.Cmdable, pattern string) ([]string, error) {
	var r []string
	var cursor uint64
	for {
		keys, next, err := c.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return nil, err
		}
		r = append(r, keys...)
		if next == 0 {
			return r, nil
		}
		cursor = next
	}
}
