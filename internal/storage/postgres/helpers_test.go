package postgres

import "time"

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func ptr[T any](v T) *T {
	return &v
}
