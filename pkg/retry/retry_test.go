package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"google.golang.org/api/googleapi"
)

func fastConfig() *Config {
	return &Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestDo(t *testing.T) {
	Convey("Given a function that fails transiently twice", t, func() {
		calls := 0
		var retried []int
		cfg := fastConfig()
		cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

		err := Do(context.Background(), cfg, func(context.Context) error {
			calls++
			if calls < 3 {
				return &googleapi.Error{Code: http.StatusServiceUnavailable}
			}
			return nil
		})

		Convey("Then it succeeds on the third attempt", func() {
			So(err, ShouldBeNil)
			So(calls, ShouldEqual, 3)
			So(retried, ShouldResemble, []int{1, 2})
		})
	})

	Convey("Given a permanent error", t, func() {
		calls := 0
		perm := &googleapi.Error{Code: http.StatusForbidden}
		err := Do(context.Background(), fastConfig(), func(context.Context) error {
			calls++
			return perm
		})

		Convey("Then it is returned without retrying", func() {
			So(calls, ShouldEqual, 1)
			So(errors.Is(err, perm), ShouldBeTrue)
		})
	})

	Convey("Given retries that never succeed", t, func() {
		calls := 0
		_, err := DoWithResult(context.Background(), fastConfig(), func(context.Context) (int, error) {
			calls++
			return calls, errors.New("connection reset by peer")
		})

		Convey("Then MaxRetries+1 attempts are made", func() {
			So(err, ShouldNotBeNil)
			So(calls, ShouldEqual, 4)
		})
	})

	Convey("Given a cancelled context during backoff", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := &Config{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}
		err := Do(ctx, cfg, func(context.Context) error {
			cancel()
			return errors.New("service unavailable")
		})
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

func TestIsRetryable(t *testing.T) {
	Convey("Given classified errors", t, func() {
		So(IsRetryable(nil), ShouldBeFalse)
		So(IsRetryable(context.DeadlineExceeded), ShouldBeFalse)
		So(IsRetryable(&googleapi.Error{Code: http.StatusTooManyRequests}), ShouldBeTrue)
		So(IsRetryable(&googleapi.Error{Code: http.StatusBadRequest}), ShouldBeFalse)
		So(IsRetryable(&googleapi.Error{Code: http.StatusBadRequest,
			Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}), ShouldBeTrue)
		So(IsRetryable(errors.New("syntax error at [1:1]")), ShouldBeFalse)
	})
}
