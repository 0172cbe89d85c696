package model

import "time"

// ViolationType tags the policy breach recorded by a Violation.
type ViolationType string

const (
	ViolationTimeout              ViolationType = "TIMEOUT"
	ViolationForcedCancel         ViolationType = "FORCED_CANCEL"
	ViolationAdministrativeAction ViolationType = "ADMINISTRATIVE_ACTION"
)

// Violation is an append-only record of a policy breach.
type Violation struct {
	ID         uint64        `json:"id"`                   // violations.id
	MemberID   uint64        `json:"member_id"`            // violations.member_id
	BookingID  *uint64       `json:"booking_id,omitempty"` // violations.booking_id (nullable)
	CreateTime time.Time     `json:"create_time"`          // violations.create_time
	Type       ViolationType `json:"type"`                 // violations.type
	Content    string        `json:"content"`              // violations.content
}
