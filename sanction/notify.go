package sanction

import (
	"fmt"
	"time"
)

// =============================================================================
// MESSAGE - Chat notification, independent of the delivery channel
// =============================================================================

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// MaxMessageFields is the number of entries shown in one message.
const MaxMessageFields = 10

type Field struct {
	Name  string
	Value string
}

type Message struct {
	Title       string
	Description string
	Fields      []Field
	Timestamp   time.Time
	Footer      string
	Level       Level
}

// Entry is one notified rental in the batch.
type Entry struct {
	StudentName string
	StudentID   string
	ItemName    string
	Delay       time.Duration
	Tier        Tier
	Kind        DecisionKind
	PhoneNumber string
}

// BuildBatchMessage summarises the entries of one run. Only the first
// MaxMessageFields entries get a field; the footer counts the rest.
func BuildBatchMessage(entries []Entry, now time.Time) Message {
	msg := Message{
		Title:       "🚨 Overdue rental sanctions",
		Description: fmt.Sprintf("%d student(s) received a new or escalated sanction.", len(entries)),
		Timestamp:   now,
		Level:       LevelWarning,
	}

	shown := entries
	if len(shown) > MaxMessageFields {
		shown = shown[:MaxMessageFields]
	}
	for _, e := range shown {
		value := fmt.Sprintf("Item: %s\nDelay: %s\nSanction: %s\nPhone: %s",
			e.ItemName, FormatDelay(e.Delay), e.Tier.Label(), e.PhoneNumber)
		msg.Fields = append(msg.Fields, Field{
			Name:  fmt.Sprintf("%s (%s)", e.StudentName, e.StudentID),
			Value: value,
		})
	}

	if extra := len(entries) - len(shown); extra > 0 {
		msg.Footer = fmt.Sprintf("+%d more", extra)
	} else {
		msg.Footer = "Return delay check"
	}
	return msg
}

// BuildErrorMessage reports a run that could not complete.
func BuildErrorMessage(err error, now time.Time) Message {
	return Message{
		Title:       "❌ Return delay check failed",
		Description: err.Error(),
		Timestamp:   now,
		Footer:      "Return delay check",
		Level:       LevelError,
	}
}
