package channel

import (
	"time"

	"github.com/tidwall/gjson"

	errspkg "github.com/drblury/statusrelay/internal/runtime/errors"
)

// parseObject parses body as a JSON object.
func parseObject(body, what string) (gjson.Result, error) {
	if !gjson.Valid(body) {
		return gjson.Result{}, errspkg.Decodef(errspkg.ErrMalformedEnvelope, "%s is not valid json", what)
	}
	result := gjson.Parse(body)
	if !result.IsObject() {
		return gjson.Result{}, errspkg.Decodef(errspkg.ErrMalformedEnvelope, "%s is not an object", what)
	}
	return result, nil
}

// upstreamTime reads the broker timestamp at path. An absent or empty value is
// listed in r.MissingAttributes and yields the zero time.
func upstreamTime(r *Record, env gjson.Result, path string) (time.Time, error) {
	ts := env.Get(path)
	if ts.String() == "" {
		r.MissingAttributes = append(r.MissingAttributes, path)
		return time.Time{}, nil
	}
	return parseISOTime(ts.String())
}
