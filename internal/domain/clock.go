package domain

import "time"

// Clock supplies the current instant. Expiry and staleness checks are pure
// functions of this value plus stored timestamps, which keeps them
// deterministic under test.
type Clock func() time.Time

// RealClock is the production clock.
func RealClock() time.Time { return time.Now() }
