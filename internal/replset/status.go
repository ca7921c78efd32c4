package replset

import (
	"strings"
	"time"
)

// MemberState is the numeric member state reported by replSetGetStatus.
type MemberState int

const (
	StateStartup    MemberState = 0
	StatePrimary    MemberState = 1
	StateSecondary  MemberState = 2
	StateRecovering MemberState = 3
	StateStartup2   MemberState = 5
	StateUnknown    MemberState = 6
	StateArbiter    MemberState = 7
	StateDown       MemberState = 8
	StateRollback   MemberState = 9
	StateRemoved    MemberState = 10
)

// MemberStatus is one entry of the members array in replSetGetStatus.
type MemberStatus struct {
	ID            int         `bson:"_id" json:"id"`
	Name          string      `bson:"name" json:"name"`
	Health        float64     `bson:"health" json:"health"`
	State         MemberState `bson:"state" json:"state"`
	StateStr      string      `bson:"stateStr" json:"stateStr"`
	Uptime        int64       `bson:"uptime" json:"uptime"`
	ConfigVersion int64       `bson:"configVersion" json:"configVersion"`
	ConfigTerm    int64       `bson:"configTerm" json:"configTerm"`
	Self          bool        `bson:"self" json:"self"`
}

// Role is the lowercase state string, e.g. "primary".
func (m MemberStatus) Role() string {
	return strings.ToLower(m.StateStr)
}

// Status is the snapshot returned by replSetGetStatus. Counters are owned
// by the node; this tool only reads them.
type Status struct {
	Set     string         `bson:"set" json:"set"`
	Date    time.Time      `bson:"date" json:"date"`
	MyState MemberState    `bson:"myState" json:"myState"`
	Term    int64          `bson:"term" json:"term"`
	Members []MemberStatus `bson:"members" json:"members"`
}

// Self returns the member entry for the node that answered the command.
func (s *Status) Self() (MemberStatus, bool) {
	for _, m := range s.Members {
		if m.Self {
			return m, true
		}
	}
	return MemberStatus{}, false
}

// Primary returns the current primary, if any.
func (s *Status) Primary() (MemberStatus, bool) {
	for _, m := range s.Members {
		if m.State == StatePrimary {
			return m, true
		}
	}
	return MemberStatus{}, false
}

// Converged reports whether the answering node is primary of set id.
func (s *Status) Converged(id string) bool {
	if s == nil || s.Set != id || s.MyState != StatePrimary {
		return false
	}
	self, ok := s.Self()
	return ok && self.State == StatePrimary
}
