package domain

import "time"

// Invitation records one successful redemption. A user may redeem only
// once, so ReceivingUser is unique across all rows.
type Invitation struct {
	ID            string
	BroadcastUser string
	ReceivingUser string
	CreatedAt     time.Time
}
