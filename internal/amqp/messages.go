package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"finreport/internal/core"
)

// Routing keys used on the report exchange.
const (
	RoutingReportGenerated = "report.generated"
	RoutingReportRequested = "report.requested"
)

// ReportGeneratedMessage announces a persisted report. It carries only
// identifiers; consumers load the full report from the report store.
type ReportGeneratedMessage struct {
	ReportID    string    `json:"reportId"`
	UserID      string    `json:"userId"`
	Period      string    `json:"period"`
	GeneratedAt time.Time `json:"generatedAt"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReportRequestedMessage asks a worker to generate a report.
type ReportRequestedMessage struct {
	UserID    string    `json:"userId"`
	Period    string    `json:"period"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReportGeneratedMessage(r core.FinancialReport) *ReportGeneratedMessage {
	return &ReportGeneratedMessage{
		ReportID:    r.ID,
		UserID:      r.UserID,
		Period:      r.Period.String(),
		GeneratedAt: r.GeneratedAt,
		Timestamp:   time.Now(),
	}
}

func NewReportRequestedMessage(userID string, period core.Period) *ReportRequestedMessage {
	return &ReportRequestedMessage{
		UserID:    userID,
		Period:    period.String(),
		Timestamp: time.Now(),
	}
}

func (m *ReportGeneratedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *ReportRequestedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportGeneratedMessageFromJSON decodes and checks a report.generated body.
func ReportGeneratedMessageFromJSON(data []byte) (*ReportGeneratedMessage, error) {
	var msg ReportGeneratedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ReportID == "" {
		return nil, fmt.Errorf("report.generated message without report id")
	}
	return &msg, nil
}

// ReportRequestedMessageFromJSON decodes and checks a report.requested body.
// The period is validated here so malformed requests never reach the service.
func ReportRequestedMessageFromJSON(data []byte) (*ReportRequestedMessage, error) {
	var msg ReportRequestedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, core.ErrEmptyUserID
	}
	if _, err := core.ParsePeriod(msg.Period); err != nil {
		return nil, fmt.Errorf("%w: %q", err, msg.Period)
	}
	return &msg, nil
}
