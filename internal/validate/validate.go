package validate

import "fmt"

// Input length limits for user- and player-supplied values.
const (
	MaxURLLength       = 2048
	MaxVideoRefLength  = 64
	MaxWatchTimeLength = 32
)

func checkLen(value string, max int, field string) string {
	if len(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func URL(s string) string       { return checkLen(s, MaxURLLength, "url") }
func VideoRef(s string) string  { return checkLen(s, MaxVideoRefLength, "video_id") }
func WatchTime(s string) string { return checkLen(s, MaxWatchTimeLength, "watch_time") }

// FieldLimits returns a map of field names to max lengths for the /api/limits endpoint.
func FieldLimits() map[string]int {
	return map[string]int{
		"url":       MaxURLLength,
		"videoId":   MaxVideoRefLength,
		"watchTime": MaxWatchTimeLength,
	}
}
