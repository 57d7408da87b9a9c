package logging

import (
	"time"

	"go.uber.org/zap"
)

// AuditEventType names a structured audit record.
type AuditEventType string

const (
	AuditActionApplied  AuditEventType = "action_applied"
	AuditActionRejected AuditEventType = "action_rejected"
	AuditEvaluation     AuditEventType = "evaluation"
	AuditCommandRun     AuditEventType = "command_run"
	AuditExport         AuditEventType = "export"
)

// AuditEvent is one structured audit entry. It is written through the
// "audit" child logger so it can be filtered out of regular output.
type AuditEvent struct {
	EventType      AuditEventType
	ConversationID string
	MessageID      string
	Action         string
	Target         string
	Success        bool
	Duration       time.Duration
	Err            error
	Fields         map[string]interface{}
}

// AuditLogger writes audit events scoped to one conversation.
type AuditLogger struct {
	conversationID string
}

// Audit returns an unscoped audit logger.
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditWithConversation scopes audit events to a conversation.
func AuditWithConversation(id string) *AuditLogger {
	return &AuditLogger{conversationID: id}
}

// Log writes the event.
func (a *AuditLogger) Log(event AuditEvent) {
	if event.ConversationID == "" {
		event.ConversationID = a.conversationID
	}

	fields := []zap.Field{
		zap.String("event", string(event.EventType)),
		zap.Bool("success", event.Success),
	}
	if event.ConversationID != "" {
		fields = append(fields, zap.String("conversation", event.ConversationID))
	}
	if event.MessageID != "" {
		fields = append(fields, zap.String("message", event.MessageID))
	}
	if event.Action != "" {
		fields = append(fields, zap.String("action", event.Action))
	}
	if event.Target != "" {
		fields = append(fields, zap.String("target", event.Target))
	}
	if event.Duration > 0 {
		fields = append(fields, zap.Duration("duration", event.Duration))
	}
	if event.Err != nil {
		fields = append(fields, zap.Error(event.Err))
	}
	for k, v := range event.Fields {
		fields = append(fields, zap.Any(k, v))
	}

	l := Base().Named("audit")
	if event.Success {
		l.Info(string(event.EventType), fields...)
	} else {
		l.Warn(string(event.EventType), fields...)
	}
}

// ActionApplied records a reducer action outcome.
func (a *AuditLogger) ActionApplied(action, messageID string, err error) {
	event := AuditEvent{
		EventType: AuditActionApplied,
		MessageID: messageID,
		Action:    action,
		Success:   err == nil,
		Err:       err,
	}
	if err != nil {
		event.EventType = AuditActionRejected
	}
	a.Log(event)
}

// Evaluation records one message evaluation.
func (a *AuditLogger) Evaluation(messageID string, commands, followUps int, duration time.Duration, err error) {
	a.Log(AuditEvent{
		EventType: AuditEvaluation,
		MessageID: messageID,
		Success:   err == nil,
		Duration:  duration,
		Err:       err,
		Fields: map[string]interface{}{
			"commands":   commands,
			"follow_ups": followUps,
		},
	})
}

// CommandRun records one backend invocation.
func (a *AuditLogger) CommandRun(command string, exitCode int, duration time.Duration, err error) {
	a.Log(AuditEvent{
		EventType: AuditCommandRun,
		Target:    command,
		Success:   err == nil,
		Duration:  duration,
		Err:       err,
		Fields:    map[string]interface{}{"exit_code": exitCode},
	})
}

// Export records a training data export.
func (a *AuditLogger) Export(path string, records int, err error) {
	a.Log(AuditEvent{
		EventType: AuditExport,
		Target:    path,
		Success:   err == nil,
		Err:       err,
		Fields:    map[string]interface{}{"records": records},
	})
}
