package provider

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// SharedHTTPClient returns an HTTP client with connection pooling. It carries
// no overall timeout: adapters bound each call with their own timer.
func SharedHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// errTimedOut reports that fetch gave up waiting on the timer.
var errTimedOut = errors.New("request timed out")

type fetchResult struct {
	status int
	body   []byte
	err    error
}

// fetch performs the request built by build and reads the full body, racing
// both against timeout. When the timer wins the in-flight request is
// cancelled and whatever it eventually produces is dropped. A timeout <= 0
// disables the timer.
func fetch(ctx context.Context, client *http.Client, timeout time.Duration, build func(ctx context.Context) (*http.Request, error)) (int, []byte, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := build(reqCtx)
	if err != nil {
		return 0, nil, err
	}

	// Buffered so the goroutine never blocks after we stop listening.
	done := make(chan fetchResult, 1)
	go func() {
		resp, err := client.Do(req)
		if err != nil {
			done <- fetchResult{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		done <- fetchResult{status: resp.StatusCode, body: body, err: err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-done:
		return r.status, r.body, r.err
	case <-expired:
		return 0, nil, errTimedOut
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// seconds renders a timeout for user-facing messages.
func seconds(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}

// succeeded is the one rule every adapter uses: any 2xx is a success.
func succeeded(status int) bool {
	return status >= 200 && status <= 299
}
