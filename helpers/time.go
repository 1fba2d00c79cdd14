package helpers

import "time"

// Config values are plain ints, zero means "use default".
func IntSecondDefault(x int, def time.Duration) time.Duration {
	if x <= 0 {
		return def
	}
	return time.Duration(x) * time.Second
}

func IntMillisecondDefault(x int, def time.Duration) time.Duration {
	if x <= 0 {
		return def
	}
	return time.Duration(x) * time.Millisecond
}
