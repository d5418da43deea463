package notify

import (
	"fmt"
	"strings"
	"time"
)

// webhookPayload is the body posted to the Slack webhook. Channel is
// honored by legacy webhooks and ignored by channel-bound ones.
type webhookPayload struct {
	Channel string  `json:"channel,omitempty"`
	Text    string  `json:"text"`
	Blocks  []block `json:"blocks,omitempty"`
}

type block struct {
	Type   string       `json:"type"`
	Text   *textObject  `json:"text,omitempty"`
	Fields []textObject `json:"fields,omitempty"`
}

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func headerBlock(s string) block {
	return block{Type: "header", Text: &textObject{Type: "plain_text", Text: s}}
}

func sectionBlock(md string) block {
	return block{Type: "section", Text: &textObject{Type: "mrkdwn", Text: md}}
}

// fieldsBlock renders label/value pairs as side-by-side fields.
func fieldsBlock(pairs ...[2]string) block {
	fields := make([]textObject, 0, len(pairs))
	for _, p := range pairs {
		fields = append(fields, textObject{Type: "mrkdwn", Text: "*" + p[0] + "*\n" + p[1]})
	}
	return block{Type: "section", Fields: fields}
}

// buildPayload renders the webhook body for a message.
func buildPayload(msg Message) webhookPayload {
	return webhookPayload{
		Channel: msg.Channel,
		Text:    headline(msg),
		Blocks:  blocksFor(msg),
	}
}

// headline is the plain-text fallback shown in desktop notifications and
// clients that do not render blocks.
func headline(msg Message) string {
	switch msg.Kind {
	case KindSimulation:
		return fmt.Sprintf("Guardrail simulation: %s matched (%.2f USD), no changes made", msg.PolicyID, msg.AmountUSD)
	case KindApprovalRequest:
		return fmt.Sprintf("Guardrail approval required: %s (%.2f USD)", msg.PolicyID, msg.AmountUSD)
	case KindExecution:
		return fmt.Sprintf("Guardrail executed: %s", msg.PolicyID)
	case KindRollback:
		if msg.Error != "" {
			return fmt.Sprintf("Guardrail rollback failed: %s", msg.ExecutionID)
		}
		return fmt.Sprintf("Guardrail rolled back: %s", msg.ExecutionID)
	case KindEscalation:
		return fmt.Sprintf("Guardrail rollback needs manual intervention: %s", msg.ExecutionID)
	}
	return fmt.Sprintf("Guardrail notification: %s", msg.PolicyID)
}

func blocksFor(msg Message) []block {
	switch msg.Kind {
	case KindSimulation:
		return simulationBlocks(msg)
	case KindApprovalRequest:
		return approvalRequestBlocks(msg)
	case KindExecution:
		return executionBlocks(msg)
	case KindRollback:
		return rollbackBlocks(msg)
	case KindEscalation:
		return escalationBlocks(msg)
	}
	return []block{sectionBlock(headline(msg))}
}

func simulationBlocks(msg Message) []block {
	body := fmt.Sprintf(":mag: Policy `%s` matched event `%s` (%.2f USD) in simulate mode. No changes were made.",
		msg.PolicyID, msg.EventID, msg.AmountUSD)
	return []block{
		headerBlock("Guardrail simulation"),
		sectionBlock(body),
		fieldsBlock(
			[2]string{"Would deny", codeList(msg.DenyActions)},
			[2]string{"Targets", codeList(msg.Targets)},
		),
	}
}

func approvalRequestBlocks(msg Message) []block {
	blocks := []block{
		headerBlock("Guardrail approval required"),
	}
	if m := mentionText(msg.Mentions); m != "" {
		blocks = append(blocks, sectionBlock(m))
	}

	body := fmt.Sprintf(":warning: Policy `%s` matched event `%s` (%.2f USD). Approving will deny %d action(s) on %d principal(s).",
		msg.PolicyID, msg.EventID, msg.AmountUSD, len(msg.DenyActions), len(msg.Targets))
	blocks = append(blocks,
		sectionBlock(body),
		fieldsBlock(
			[2]string{"Deny actions", codeList(msg.DenyActions)},
			[2]string{"Targets", codeList(msg.Targets)},
			[2]string{"Auto rollback", ttlText(msg.TTLMinutes)},
			[2]string{"Execution", "`" + msg.ExecutionID + "`"},
		),
	)

	links := fmt.Sprintf("<%s|:white_check_mark: Approve> | <%s|:x: Reject>", msg.ApproveURL, msg.RejectURL)
	if !msg.ExpiresAt.IsZero() {
		links += fmt.Sprintf("\nLinks expire at %s.", clock(msg.ExpiresAt))
	}
	blocks = append(blocks, sectionBlock(links))
	return blocks
}

func executionBlocks(msg Message) []block {
	body := fmt.Sprintf(":no_entry: Policy `%s` denied %d action(s) on %s.",
		msg.PolicyID, len(msg.DenyActions), codeList(msg.Targets))
	if !msg.RollbackAt.IsZero() {
		body += fmt.Sprintf(" Rolls back automatically at %s.", clock(msg.RollbackAt))
	}
	return []block{
		headerBlock("Guardrail executed"),
		sectionBlock(body),
		fieldsBlock(
			[2]string{"Denied", codeList(msg.DenyActions)},
			[2]string{"Execution", "`" + msg.ExecutionID + "`"},
		),
	}
}

func rollbackBlocks(msg Message) []block {
	if msg.Error != "" {
		body := fmt.Sprintf(":warning: Rollback of `%s` on %s failed (attempt %d): %s",
			msg.ExecutionID, codeList(msg.Targets), msg.Failures, msg.Error)
		return []block{headerBlock("Guardrail rollback failed"), sectionBlock(body)}
	}
	body := fmt.Sprintf(":leftwards_arrow_with_hook: Execution `%s` rolled back; %s restored.",
		msg.ExecutionID, codeList(msg.Targets))
	return []block{headerBlock("Guardrail rolled back"), sectionBlock(body)}
}

func escalationBlocks(msg Message) []block {
	blocks := []block{headerBlock("Guardrail rollback needs manual intervention")}
	if m := mentionText(msg.Mentions); m != "" {
		blocks = append(blocks, sectionBlock(m))
	}
	body := fmt.Sprintf(":rotating_light: Rollback of `%s` on %s has failed %d times. The deny policy is still attached. Last error: %s",
		msg.ExecutionID, codeList(msg.Targets), msg.Failures, msg.Error)
	blocks = append(blocks, sectionBlock(body))
	return blocks
}

// mentionText renders Slack user mentions. A leading "@" is stripped so
// both "U024BE7LH" and "@U024BE7LH" work.
func mentionText(users []string) string {
	if len(users) == 0 {
		return ""
	}
	parts := make([]string, 0, len(users))
	for _, u := range users {
		parts = append(parts, "<@"+strings.TrimPrefix(u, "@")+">")
	}
	return strings.Join(parts, " ")
}

func codeList(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, "`"+it+"`")
	}
	return strings.Join(parts, ", ")
}

func ttlText(minutes int) string {
	if minutes <= 0 {
		return "disabled"
	}
	return fmt.Sprintf("after %d minutes", minutes)
}

func clock(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 MST")
}
