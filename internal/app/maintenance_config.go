package app

import "github.com/charlesng35/burnnote/internal/app/maintenance"

// CleanerOptions converts MaintenanceConfig into maintenance options.
func (c MaintenanceConfig) CleanerOptions() []maintenance.Option {
	opts := []maintenance.Option{
		maintenance.WithAuditRetentionDays(c.AuditRetentionDays),
		maintenance.WithInactiveUserAge(c.InactiveUserAge),
	}
	for job, spec := range c.Schedules {
		opts = append(opts, maintenance.WithSchedule(job, spec))
	}
	return opts
}
