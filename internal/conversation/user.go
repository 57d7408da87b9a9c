package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UserKind enumerates the participants of a conversation.
type UserKind string

const (
	KindJake       UserKind = "jake"        // the primary human, rendered as "Me"
	KindZack       UserKind = "zack"        // a second human
	KindDocker     UserKind = "docker"      // output of the execution backend
	KindSystem     UserKind = "system"      // engine announcements
	KindTaskReport UserKind = "task_report" // synthesized when a subtask completes
)

// User identifies a message author. Creator is set only for KindTaskReport
// and names who the report is attributed to.
type User struct {
	Kind    UserKind `json:"kind"`
	Creator *User    `json:"creator,omitempty"`
}

func Jake() User   { return User{Kind: KindJake} }
func Zack() User   { return User{Kind: KindZack} }
func Docker() User { return User{Kind: KindDocker} }
func System() User { return User{Kind: KindSystem} }

// TaskReport wraps creator in a task report author.
func TaskReport(creator User) User {
	c := creator
	return User{Kind: KindTaskReport, Creator: &c}
}

// Equal compares two users structurally.
func (u User) Equal(o User) bool {
	if u.Kind != o.Kind {
		return false
	}
	if u.Kind != KindTaskReport {
		return true
	}
	if u.Creator == nil || o.Creator == nil {
		return u.Creator == o.Creator
	}
	return u.Creator.Equal(*o.Creator)
}

// IsPrimary reports whether u is the human whose turns become training targets.
func (u User) IsPrimary() bool {
	return u.Kind == KindJake
}

// String returns the display name used in prompts.
func (u User) String() string {
	switch u.Kind {
	case KindJake:
		return "Me"
	case KindZack:
		return "Zack"
	case KindDocker:
		return "Docker"
	case KindSystem:
		return "System"
	case KindTaskReport:
		creator := "Unknown"
		if u.Creator != nil {
			creator = u.Creator.String()
		}
		return creator + " (from subtask)"
	}
	return string(u.Kind)
}

func (u User) validate() error {
	switch u.Kind {
	case KindJake, KindZack, KindDocker, KindSystem:
		if u.Creator != nil {
			return fmt.Errorf("user %q cannot carry a creator", u.Kind)
		}
		return nil
	case KindTaskReport:
		if u.Creator == nil {
			return fmt.Errorf("task_report user requires a creator")
		}
		return u.Creator.validate()
	}
	return fmt.Errorf("unknown user kind %q", u.Kind)
}

// UnmarshalJSON rejects unknown kinds and malformed task reports.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	decoded := User(p)
	if err := decoded.validate(); err != nil {
		return err
	}
	*u = decoded
	return nil
}

// ParseUser parses a user name as typed on the command line. Task reports
// are written "task_report:<creator>".
func ParseUser(s string) (User, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if creator, ok := strings.CutPrefix(name, "task_report:"); ok {
		c, err := ParseUser(creator)
		if err != nil {
			return User{}, err
		}
		return TaskReport(c), nil
	}
	switch name {
	case "jake", "me":
		return Jake(), nil
	case "zack":
		return Zack(), nil
	case "docker":
		return Docker(), nil
	case "system":
		return System(), nil
	}
	return User{}, fmt.Errorf("unknown user %q (want jake, zack, docker, system or task_report:<user>)", s)
}
