package registration

import "time"

// SetNow mocks the clock of the service; the returned func restores it.
func SetNow(now func() time.Time) (restore func()) {
	orig := nowFunc
	nowFunc = now
	return func() { nowFunc = orig }
}
