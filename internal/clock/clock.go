// Package clock abstracts time so chain-client retry loops can be tested.
package clock

import "time"

type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type Real struct{}

func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (Real) Now() time.Time                         { return time.Now() }
