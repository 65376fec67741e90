/*
Package resilience provides circuit breakers for page fetches.

A breaker counts request outcomes. In the closed state requests pass and
failures are counted; once ReadyToTrip agrees it opens and rejects every
request with ErrCircuitOpen until Timeout elapses. It then admits up to
MaxRequests trial requests (half-open) and closes again when they all
succeed, or reopens on the first failure.

	breakers := resilience.NewGroup("page-fetch", resilience.Settings{
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	doc, err := resilience.Execute(breakers.Get(host), func() (*Document, error) {
		return load(ctx, url)
	})

Context cancellation is not a failure by default: a browser closed mid-load
must not count against the page's host.
*/
package resilience
