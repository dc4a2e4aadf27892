package domain

const (
	EventNameUserJoined         = "user.joined"
	EventNameUserLeft           = "user.left"
	EventNameTestStarted        = "test.started"
	EventNameResultSaved        = "result.saved"
	EventNameResultsPurged      = "results.purged"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventUserJoined struct {
	Username string
	Roster   []string
}

func (EventUserJoined) Name() string { return EventNameUserJoined }

// EventUserLeft is published on logout and on disconnect of a bound connection.
type EventUserLeft struct {
	Username string
	Roster   []string
	Logout   bool
}

func (EventUserLeft) Name() string { return EventNameUserLeft }

type EventTestStarted struct {
	Announcement Announcement
}

func (EventTestStarted) Name() string { return EventNameTestStarted }

type EventResultSaved struct {
	Result Result
}

func (EventResultSaved) Name() string { return EventNameResultSaved }

type EventResultsPurged struct {
	Username string
	Deleted  int64
}

func (EventResultsPurged) Name() string { return EventNameResultsPurged }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
