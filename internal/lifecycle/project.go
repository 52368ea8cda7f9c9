package lifecycle

// ProjectStatus enumerates project (offer) lifecycle states.
type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "DRAFT"
	ProjectSent       ProjectStatus = "SENT"
	ProjectAccepted   ProjectStatus = "ACCEPTED"
	ProjectDeclined   ProjectStatus = "DECLINED"
	ProjectInProgress ProjectStatus = "IN_PROGRESS"
	ProjectCompleted  ProjectStatus = "COMPLETED"
	ProjectCancelled  ProjectStatus = "CANCELLED"
)

// ProjectTable is the project transition table. A declined offer can be
// revised back into a draft.
var ProjectTable = NewTable("project", map[ProjectStatus][]ProjectStatus{
	ProjectDraft:      {ProjectSent, ProjectCancelled},
	ProjectSent:       {ProjectAccepted, ProjectDeclined, ProjectCancelled},
	ProjectAccepted:   {ProjectInProgress, ProjectCancelled},
	ProjectInProgress: {ProjectCompleted, ProjectCancelled},
	ProjectDeclined:   {ProjectDraft},
	ProjectCompleted:  {},
	ProjectCancelled:  {},
})

var projectLabels = map[ProjectStatus]string{
	ProjectDraft:      "Draft",
	ProjectSent:       "Offer sent",
	ProjectAccepted:   "Accepted",
	ProjectDeclined:   "Declined",
	ProjectInProgress: "In progress",
	ProjectCompleted:  "Completed",
	ProjectCancelled:  "Cancelled",
}

// IsValid checks if the status is a known project state.
func (s ProjectStatus) IsValid() bool {
	return ProjectTable.Known(s)
}

// Label returns the human readable name.
func (s ProjectStatus) Label() string {
	return projectLabels[s]
}

// AllowedTransitions returns the states reachable from s.
func (s ProjectStatus) AllowedTransitions() []ProjectStatus {
	return ProjectTable.Allowed(s)
}

// CanTransitionTo reports whether s → to is allowed.
func (s ProjectStatus) CanTransitionTo(to ProjectStatus) bool {
	return ProjectTable.CanTransition(s, to)
}

// IsTerminal is true for COMPLETED and CANCELLED.
func (s ProjectStatus) IsTerminal() bool {
	return ProjectTable.IsTerminal(s)
}

// IsOpenOffer reports whether the offer awaits the client's answer.
func (s ProjectStatus) IsOpenOffer() bool {
	return s == ProjectSent
}
