package attendance

import "time"

// SetNow mocks the clock of the package until the returned func is called.
func SetNow(now func() time.Time) (restore func()) {
	orig := nowFunc
	nowFunc = now
	return func() { nowFunc = orig }
}
