package domain

// MemberSubmission is one member's row in the scheduling board.
// swagger:model MemberSubmission
type MemberSubmission struct {
	MemberID  string `json:"member_id"`
	Username  string `json:"username,omitempty"`
	IsGM      bool   `json:"is_gm"`
	Days      []Day  `json:"days"`
	Submitted bool   `json:"submitted"`
}

// ScheduleView is the read model for the date-adjustment screen: the session
// snapshot, every member's submission, and the computed intersection. It is
// a pure function of a single session snapshot plus profile lookups and is
// recomputed freely on every change notification.
// swagger:model ScheduleView
type ScheduleView struct {
	Session      *Session           `json:"session"`
	Members      []MemberSubmission `json:"members"`
	Intersection Intersection       `json:"intersection"`
}
