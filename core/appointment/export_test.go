package appointment

import "time"

// SetNow freezes the service clock until the returned func is called.
func SetNow(now time.Time) (restore func()) {
	prev := nowFunc
	nowFunc = func() time.Time { return now }
	return func() { nowFunc = prev }
}
