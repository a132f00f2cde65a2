// Slack incident notification methods.

package client

import (
	"fmt"
	"time"

	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

// SendIncidentOpened posts the opening message for a fresh incident and
// stores its thread_ts so follow-ups land in the same thread.
func (c *SlackClient) SendIncidentOpened(rec model.IncidentRecord) error {
	if !c.IsConfigured() {
		return fmt.Errorf("slack bot token or channel ID not configured")
	}

	title := fmt.Sprintf("%s [%s] %s",
		c.emojiBySeverity(rec.Severity),
		rec.Severity,
		rec.AlertName,
	)

	msg := SlackMessage{
		Channel: c.channelID,
		Attachments: []SlackAttachment{
			{
				Color: c.colorBySeverity(rec.Severity),
				Title: title,
				Text:  rec.Description,
				Fields: []SlackField{
					{Title: "Namespace", Value: rec.Namespace, Short: true},
					{Title: "Severity", Value: rec.Severity, Short: true},
					{Title: "Target", Value: rec.Target, Short: true},
					{Title: "Incident", Value: rec.ID, Short: true},
				},
				Footer:     "ai-sre-agent",
				FooterIcon: "https://kubernetes.io/images/favicon.png",
				Ts:         time.Now().Unix(),
			},
		},
	}

	resp, err := c.send(msg)
	if err != nil {
		return err
	}
	if resp.TS != "" {
		c.StoreThreadTS(rec.Fingerprint, resp.TS)
	}
	return nil
}

// SendApprovalRequested posts the gate message for a decision waiting on an
// operator. Replies into the incident thread when one exists.
func (c *SlackClient) SendApprovalRequested(ap model.PendingApproval, fingerprint string) error {
	if !c.IsConfigured() {
		return fmt.Errorf("slack bot token or channel ID not configured")
	}

	msg := SlackMessage{
		Channel: c.channelID,
		Attachments: []SlackAttachment{
			{
				Color: "#ffc107",
				Title: fmt.Sprintf("⏸️ Approval required: %s", ap.Action),
				Text:  ap.Rationale,
				Fields: []SlackField{
					{Title: "Risk", Value: ap.RiskTier, Short: true},
					{Title: "Confidence", Value: fmt.Sprintf("%.2f", ap.Confidence), Short: true},
					{Title: "Approval ID", Value: ap.ID, Short: false},
				},
				Footer: "ai-sre-agent",
				Ts:     time.Now().Unix(),
			},
		},
	}
	if threadTS, ok := c.GetThreadTS(fingerprint); ok {
		msg.ThreadTS = threadTS
	}

	_, err := c.send(msg)
	return err
}

// SendOutcome posts the final message for a resolved incident as a thread
// reply, then drops the thread mapping.
func (c *SlackClient) SendOutcome(rec model.IncidentRecord, body string) error {
	if !c.IsConfigured() {
		return fmt.Errorf("slack bot token or channel ID not configured")
	}

	msg := SlackMessage{
		Channel: c.channelID,
		Attachments: []SlackAttachment{
			{
				Color: c.colorByOutcome(rec.VerifyOutcome),
				Title: fmt.Sprintf("%s %s resolved (%s)", c.emojiByOutcome(rec.VerifyOutcome), rec.AlertName, rec.Resolution),
				Text:  body,
				Ts:    time.Now().Unix(),
			},
		},
	}
	if threadTS, ok := c.GetThreadTS(rec.Fingerprint); ok {
		msg.ThreadTS = threadTS
	}

	if _, err := c.send(msg); err != nil {
		return err
	}
	c.DeleteThreadTS(rec.Fingerprint)
	return nil
}

func (c *SlackClient) colorBySeverity(severity string) string {
	switch severity {
	case model.SeverityCritical:
		return "#dc3545" // red
	case model.SeverityWarning:
		return "#ffc107" // yellow
	default:
		return "#17a2b8" // blue
	}
}

func (c *SlackClient) emojiBySeverity(severity string) string {
	if severity == model.SeverityCritical {
		return "🔥"
	}
	return "⚠️"
}

func (c *SlackClient) colorByOutcome(outcome string) string {
	switch outcome {
	case model.VerifyHealthy:
		return "#36a64f" // green
	case model.VerifyUnhealthy:
		return "#dc3545"
	default:
		return "#6c757d" // grey for unknown / no verification
	}
}

func (c *SlackClient) emojiByOutcome(outcome string) string {
	switch outcome {
	case model.VerifyHealthy:
		return "✅"
	case model.VerifyUnhealthy:
		return "❌"
	default:
		return "❔"
	}
}
