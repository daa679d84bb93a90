package models

import "time"

// ServiceStatus is a heartbeat row identifying a running service process.
type ServiceStatus struct {
	ServiceName   string    `gorm:"primaryKey;column:service_name"`
	Status        string    `gorm:"column:status"`
	LastHeartbeat time.Time `gorm:"column:last_heartbeat"`
	Details       string    `gorm:"column:details"`
}

func (ServiceStatus) TableName() string {
	return "service_status"
}

// SystemStat holds key-value pairs for system-wide counters.
type SystemStat struct {
	StatKey   string    `gorm:"primaryKey;column:stat_key"`
	StatValue int64     `gorm:"column:stat_value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (SystemStat) TableName() string {
	return "system_stats"
}

// Stat keys maintained by the engine.
const (
	StatAnnouncementsSent = "total_announcements_sent"
	StatCommandsHandled   = "total_commands_handled"
	StatWelcomesSent      = "total_welcomes_sent"
)
