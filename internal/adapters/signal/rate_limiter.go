package signal

import "golang.org/x/time/rate"

// newEventLimiter caps inbound events per connection. A non-positive rate
// disables the cap.
func newEventLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
