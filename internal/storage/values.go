package storage

import (
	"context"
	"strconv"
	"time"
)

// Reader and Writer are the halves of Store used by the typed helpers.
type Reader interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

type Writer interface {
	Set(ctx context.Context, key, value string) error
}

type KV interface {
	Reader
	Writer
	Delete(ctx context.Context, key string) error
}

// GetString returns the value for key, or def if unset.
func GetString(ctx context.Context, st Reader, key, def string) (string, error) {
	v, ok, err := st.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// GetFloat returns the float value for key, or def if unset or unparsable.
func GetFloat(ctx context.Context, st Reader, key string, def float64) (float64, bool, error) {
	v, ok, err := st.Get(ctx, key)
	if err != nil || !ok {
		return def, false, err
	}
	f, perr := strconv.ParseFloat(v, 64)
	if perr != nil {
		return def, false, nil
	}
	return f, true, nil
}

func SetFloat(ctx context.Context, st Writer, key string, v float64) error {
	return st.Set(ctx, key, strconv.FormatFloat(v, 'f', -1, 64))
}

// GetBool returns the bool value for key, or def if unset or unparsable.
func GetBool(ctx context.Context, st Reader, key string, def bool) (bool, error) {
	v, ok, err := st.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, perr := strconv.ParseBool(v)
	if perr != nil {
		return def, nil
	}
	return b, nil
}

func SetBool(ctx context.Context, st Writer, key string, v bool) error {
	return st.Set(ctx, key, strconv.FormatBool(v))
}

// GetTime reads a unix-millisecond timestamp. Unset returns the zero time.
func GetTime(ctx context.Context, st Reader, key string) (time.Time, error) {
	v, ok, err := st.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	ms, perr := strconv.ParseInt(v, 10, 64)
	if perr != nil || ms <= 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

func SetTime(ctx context.Context, st KV, key string, t time.Time) error {
	if t.IsZero() {
		return st.Delete(ctx, key)
	}
	return st.Set(ctx, key, strconv.FormatInt(t.UnixMilli(), 10))
}
