/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package slot maps wall-clock instants to 15-minute UTC publishing windows.
package slot

import (
	"fmt"
	"time"
)

// Window is the fixed width of a publishing slot.
const Window = 15 * time.Minute

// Resolve maps an instant to the identifier of the slot containing it.
// The identifier is the slot's floor boundary formatted as HH_MM in UTC,
// stable for the whole window and changing only at :00/:15/:30/:45.
func Resolve(now time.Time) string {
	utc := now.UTC()
	floored := (utc.Minute() / 15) * 15
	return fmt.Sprintf("%02d_%02d", utc.Hour(), floored)
}

// Floor returns the UTC floor boundary of the slot containing now.
func Floor(now time.Time) time.Time {
	return now.UTC().Truncate(Window)
}

// ValidID reports whether id names a slot boundary: HH_MM with a zero-padded
// 24h hour and a minute on a quarter-hour boundary.
func ValidID(id string) bool {
	var hour, minute int
	if _, err := fmt.Sscanf(id, "%2d_%2d", &hour, &minute); err != nil {
		return false
	}
	if id != fmt.Sprintf("%02d_%02d", hour, minute) {
		return false
	}
	return hour >= 0 && hour <= 23 && minute%15 == 0
}
