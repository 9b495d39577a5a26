package retry

import (
	"errors"
	"math/rand"
	"net/http"
	"time"
)

var (
	DefaultRetry    = Retry{Base: 4, Cap: 64, Tries: 12}
	ErrOutOfRetries = errors.New("tried too many times")
)

type Retry struct {
	Base  int // Min amount of time to sleep per iteration
	Cap   int // Max amount of time to sleep per iteration
	Tries int // Number of times to retry
}

func (r Retry) Sleep(i int) {
	// powerInt returns the base-x exponential of y.
	powerInt := func(x, y int) int {
		ret := 1
		for i := 0; i < y; i++ {
			ret *= x
		}
		return ret
	}

	// minInt returns the minimum of two ints.
	minInt := func(x, y int) int {
		if x < y {
			return x
		}
		return y
	}

	sleepFor := rand.Intn(minInt(r.Cap, r.Base*powerInt(2, i)))
	time.Sleep(time.Duration(sleepFor) * time.Second)
}

// RetryRequest runs the request with the default retry policy, retrying on HTTP 429.
func RetryRequest(c *http.Client, req *http.Request) (*http.Response, error) {
	return RetryRequestWithRetry(c, req, DefaultRetry)
}

// RetryRequestWithRetry runs the request, retrying on HTTP 429 until the policy is exhausted.
func RetryRequestWithRetry(c *http.Client, req *http.Request, r Retry) (*http.Response, error) {
	var resp *http.Response
	var err error
	for i := 0; i < r.Tries; i++ {
		resp, err = c.Do(req)
		if err != nil {
			return resp, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		resp.Body.Close()
		r.Sleep(i)
	}
	return resp, ErrOutOfRetries
}
