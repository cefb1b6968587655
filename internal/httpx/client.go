// Package httpx builds the HTTP client shared by the network-facing parts
// of the updater.
package httpx

import (
	"fmt"
	"runtime"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
)

// UserAgent identifies the updater to remote APIs.
func UserAgent(version string) string {
	return fmt.Sprintf("nazupdate/%s (%s; %s)", version, runtime.GOOS, runtime.GOARCH)
}

// New returns a client with retries and JSON codecs configured.
func New(version string) *req.Client {
	return req.C().
		SetTimeout(15*time.Second).
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(1*time.Second).
		SetUserAgent(UserAgent(version)).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal)
}
