package errclass

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/limmutable/orchestrator/orcherr"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

type httpErr struct {
	status int
}

func (e *httpErr) Error() string  { return "http error" }
func (e *httpErr) HTTPStatus() int { return e.status }

type namedErr struct {
	name string
}

func (e *namedErr) Error() string    { return e.name }
func (e *namedErr) ErrorName() string { return e.name }

type retryAfterErr struct {
	httpErr
	header string
}

func (e *retryAfterErr) RetryAfterHeader() string { return e.header }

// Exhaustiveness over the representative error set, with
// is_retryable <=> category == TRANSIENT.
func TestProperty_ClassifierExhaustiveness(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want orcherr.Category
	}{
		{"timeout", context.DeadlineExceeded, orcherr.Transient},
		{"http_401", &httpErr{401}, orcherr.Critical},
		{"http_429", &httpErr{429}, orcherr.Transient},
		{"http_500", &httpErr{500}, orcherr.Transient},
		{"http_503", &httpErr{503}, orcherr.Transient},
		{"http_400", &httpErr{400}, orcherr.Permanent},
		{"http_403", &httpErr{403}, orcherr.Permanent},
		{"http_404", &httpErr{404}, orcherr.Permanent},
		{"validation", &ValidationError{Field: "date", Reason: "bad format"}, orcherr.Permanent},
		{"resource_exhausted", &namedErr{"ResourceExhausted"}, orcherr.Transient},
		{"unauthenticated", &namedErr{"Unauthenticated"}, orcherr.Critical},
		{"unknown", errors.New("something weird"), orcherr.Permanent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want == orcherr.Transient, got.Retryable())
		})
	}
}

func TestProperty_ClassifierNeverPanics(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		status := rapid.SampledFrom([]int{0, 200, 400, 401, 403, 404, 429, 500, 501, 502, 503, 504, 529}).Draw(rt, "status")
		name := rapid.SampledFrom([]string{"", "ResourceExhausted", "DeadlineExceeded", "Unauthenticated", "PermissionDenied", "InvalidArgument", "bogus"}).Draw(rt, "name")

		var err error
		switch rapid.IntRange(0, 2).Draw(rt, "kind") {
		case 0:
			err = &httpErr{status}
		case 1:
			err = &namedErr{name}
		default:
			err = errors.New("plain")
		}

		cat := Classify(err)
		assert.Contains(t, []orcherr.Category{orcherr.Transient, orcherr.Permanent, orcherr.Critical}, cat)
	})
}

func TestRetryAfter_Seconds(t *testing.T) {
	err := &retryAfterErr{httpErr: httpErr{429}, header: "120"}
	d, ok := RetryAfter(err)
	assert.True(t, ok)
	assert.Equal(t, 120*time.Second, d)
}

func TestRetryAfter_HTTPDate(t *testing.T) {
	future := time.Now().Add(90 * time.Second).UTC()
	err := &retryAfterErr{httpErr: httpErr{429}, header: future.Format(time.RFC1123)}
	d, ok := RetryAfter(err)
	assert.True(t, ok)
	assert.InDelta(t, 90*time.Second, d, float64(3*time.Second))
}

func TestRetryAfter_Absent(t *testing.T) {
	_, ok := RetryAfter(errors.New("no hint"))
	assert.False(t, ok)
}

func TestRetryAfter_PastDateClampsToZero(t *testing.T) {
	past := time.Now().Add(-time.Hour).UTC()
	err := &retryAfterErr{httpErr: httpErr{429}, header: past.Format(time.RFC1123)}
	d, ok := RetryAfter(err)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), d)
}
