// Package run carries the identity and resolved clock of one pipeline run.
package run

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Layouts used in output names.
const (
	DateLayout  = "2006-01-02"
	StampLayout = "2006-01-02-1504"
)

// Context is created once per invocation and passed to every stage, so all
// outputs of a run share one date even across midnight.
type Context struct {
	Now      time.Time
	Location *time.Location
	Date     string
	Stamp    string
	ID       uuid.UUID
}

// New resolves now in the named IANA zone ("" or "Local" keeps the local zone).
func New(now time.Time, tz string) (Context, error) {
	loc := time.Local

	if tz != "" && tz != "Local" {
		var err error

		loc, err = time.LoadLocation(tz)
		if err != nil {
			return Context{}, fmt.Errorf("unknown time zone %q: %w", tz, err)
		}
	}

	local := now.In(loc)

	return Context{
		ID:       uuid.New(),
		Now:      local,
		Location: loc,
		Date:     local.Format(DateLayout),
		Stamp:    local.Format(StampLayout),
	}, nil
}

// String returns the run id and date.
func (c Context) String() string {
	return fmt.Sprintf("run %s (%s)", c.ID, c.Stamp)
}
