// Package datetime renders times the way the assistant reports them to
// the model and to tool bodies.
package datetime

import (
	"strings"
	"time"
	_ "time/tzdata" // zones resolve on hosts without a zoneinfo database
)

// Clock is a time source bound to a timezone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock returns a Clock for the configured IANA zone. An empty or
// unknown zone falls back to the host zone, then UTC.
func NewClock(zone string) *Clock {
	return &Clock{loc: ResolveZone(zone), now: time.Now}
}

// NewFixedClock returns a Clock that always reports t. Used by tests.
func NewFixedClock(t time.Time, zone string) *Clock {
	return &Clock{loc: ResolveZone(zone), now: func() time.Time { return t }}
}

// ResolveZone loads the named location with the fallbacks NewClock uses.
func ResolveZone(zone string) *time.Location {
	if zone = strings.TrimSpace(zone); zone != "" {
		if loc, err := time.LoadLocation(zone); err == nil {
			return loc
		}
	}
	if host := time.Now().Location(); host != nil && host.String() != "" {
		return host
	}
	return time.UTC
}

// Now returns the current time in the clock's zone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Zone returns the IANA name of the clock's zone.
func (c *Clock) Zone() string {
	return c.loc.String()
}

// In returns t converted to zone, or to the clock's zone when zone is
// empty or unknown.
func (c *Clock) In(t time.Time, zone string) time.Time {
	if zone != "" {
		if loc, err := time.LoadLocation(zone); err == nil {
			return t.In(loc)
		}
	}
	return t.In(c.loc)
}

// Header renders the time preamble placed at the top of system prompts.
func (c *Clock) Header() string {
	return "Timezone: " + c.Zone() + "\nCurrent time: " + FormatLong(c.Now())
}

// Relative describes t relative to the clock's current time.
func (c *Clock) Relative(t time.Time) string {
	return FormatRelative(t, c.now())
}
