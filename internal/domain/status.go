package domain

// Action statuses. Forward order is Potential -> Active -> Staged ->
// Endorsed -> Completed; Canceled and Failed are terminal exits
// reachable from any non-terminal status.
const (
	PotentialActionStatus = "PotentialActionStatus"
	ActiveActionStatus    = "ActiveActionStatus"
	StagedActionStatus    = "StagedActionStatus"
	EndorsedActionStatus  = "EndorsedActionStatus"
	CompletedActionStatus = "CompletedActionStatus"
	CanceledActionStatus  = "CanceledActionStatus"
	FailedActionStatus    = "FailedActionStatus"
)

// StatusRank returns the forward position of a status, or -1 for
// terminal exits and unknown values.
func StatusRank(status string) int {
	switch status {
	case PotentialActionStatus:
		return 0
	case ActiveActionStatus:
		return 1
	case StagedActionStatus:
		return 2
	case EndorsedActionStatus:
		return 3
	case CompletedActionStatus:
		return 4
	}
	return -1
}

// IsTerminalStatus reports whether no further transition is allowed.
func IsTerminalStatus(status string) bool {
	switch status {
	case CompletedActionStatus, CanceledActionStatus, FailedActionStatus:
		return true
	}
	return false
}

// StatusPath lists the forward statuses strictly after from, up to and
// including to. Used to replay skipped intermediate transitions.
func StatusPath(from, to string) []string {
	fr, tr := StatusRank(from), StatusRank(to)
	if fr < 0 || tr < 0 || tr <= fr {
		return nil
	}
	all := []string{PotentialActionStatus, ActiveActionStatus, StagedActionStatus, EndorsedActionStatus, CompletedActionStatus}
	return all[fr+1 : tr+1]
}

// Permission types granted through DigitalDocumentPermission entries.
const (
	ReadPermission    = "ReadPermission"
	WritePermission   = "WritePermission"
	AdminPermission   = "AdminPermission"
	PerformPermission = "PerformActionPermission"
)

// Audience types. PublicAudience matches every caller, anonymous
// included; the rest match agents holding an active role of the same
// name on the resource chain.
const (
	PublicAudience        = "public"
	UserAudience          = "user"
	EditorAudience        = "editor"
	AuthorAudience        = "author"
	ReviewerAudience      = "reviewer"
	ProducerAudience      = "producer"
	AdministratorAudience = "administrator"
)
