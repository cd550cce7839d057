package model

import (
	"fmt"
	"time"
)

// UsageDateLayout is the day granularity of usage records.
const UsageDateLayout = "2006-01-02"

// UsageRecord counts messages sent to one bot on one day.
type UsageRecord struct {
	ID    string `json:"id"`
	BotID string `json:"botId"`
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// UsageID returns the deterministic record id for a bot and day.
func UsageID(botID string, day time.Time) string {
	return fmt.Sprintf("%s@%s", botID, day.Format(UsageDateLayout))
}
