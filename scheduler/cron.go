package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	pkgError "github.com/AzielCF/az-wabot/pkg/error"
)

// ParseCron validates a standard 5-field cron expression with an optional
// IANA timezone.
func ParseCron(expression, timezone string) (cron.Schedule, error) {
	spec := expression
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return nil, pkgError.BadCronError(fmt.Sprintf("unknown timezone %q", timezone))
		}
		spec = "CRON_TZ=" + timezone + " " + expression
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, pkgError.BadCronError(fmt.Sprintf("invalid cron expression %q: %v", expression, err))
	}
	return sched, nil
}

// NextCronFire returns the first fire instant strictly after the given
// time, in UTC.
func NextCronFire(expression, timezone string, after time.Time) (time.Time, error) {
	sched, err := ParseCron(expression, timezone)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after).UTC(), nil
}
