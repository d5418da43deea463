package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// snsEnvelope is the SNS delivery wrapper. The inner Message is itself a JSON
// document in one of the other supported formats.
type snsEnvelope struct {
	Records []struct {
		EventSource string `json:"EventSource"`
		Sns         struct {
			Message string `json:"Message"`
		} `json:"Sns"`
	} `json:"Records"`
}

// budgetsNotification is the AWS Budgets alert body, as found inside an SNS
// message or an EventBridge detail.
type budgetsNotification struct {
	BudgetName         string  `json:"budgetName"`
	AccountID          string  `json:"accountId"`
	NotificationArn    string  `json:"notificationArn"`
	NotificationType   string  `json:"notificationType"`
	ThresholdType      string  `json:"thresholdType"`
	Threshold          float64 `json:"threshold"`
	ComparisonOperator string  `json:"comparisonOperator"`
	Time               string  `json:"time"`
	CalculatedSpend    struct {
		ActualSpend struct {
			Amount any    `json:"amount"`
			Unit   string `json:"unit"`
		} `json:"actualSpend"`
	} `json:"calculatedSpend"`
}

// eventBridgeEnvelope is the generic EventBridge event wrapper.
type eventBridgeEnvelope struct {
	ID         string          `json:"id"`
	DetailType string          `json:"detail-type"`
	Account    string          `json:"account"`
	Region     string          `json:"region"`
	Time       string          `json:"time"`
	Detail     json.RawMessage `json:"detail"`
}

// anomalyAlert is the AWS Cost Anomaly Detection alert body.
type anomalyAlert struct {
	AnomalyID        string `json:"anomalyId"`
	AccountID        string `json:"accountId"`
	AnomalyStartDate string `json:"anomalyStartDate"`
	AnomalyEndDate   string `json:"anomalyEndDate"`
	Impact           struct {
		TotalImpact      any `json:"totalImpact"`
		TotalActualSpend any `json:"totalActualSpend"`
	} `json:"impact"`
	RootCauses []struct {
		Service       string `json:"service"`
		Region        string `json:"region"`
		LinkedAccount string `json:"linkedAccount"`
	} `json:"rootCauses"`
}

// Parse normalizes a raw ingest payload into a CostEvent. Recognized shapes,
// probed in order: SNS envelope (recursing into the inner message),
// EventBridge budget notification, Cost Anomaly Detection alert, bare AWS
// Budgets notification, already-normalized CostEvent. Unrecognized payloads
// return ErrUnsupportedFormat; recognized but malformed payloads return a
// ParseError.
func Parse(raw []byte) (*CostEvent, error) {
	var probe struct {
		Records    []json.RawMessage `json:"Records"`
		DetailType string            `json:"detail-type"`
		AnomalyID  string            `json:"anomalyId"`
		BudgetName string            `json:"budgetName"`
		Source     Source            `json:"source"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &ParseError{Format: "json", Cause: err}
	}

	switch {
	case len(probe.Records) > 0:
		return parseSNS(raw)
	case probe.DetailType != "":
		return parseEventBridge(raw)
	case probe.AnomalyID != "":
		return parseAnomalyAlert(raw)
	case probe.BudgetName != "":
		return parseBudgetsNotification(raw, "", "")
	case probe.Source != "":
		return parseDirect(raw)
	}
	return nil, ErrUnsupportedFormat
}

// parseSNS unwraps the first SNS record and re-parses its message body.
func parseSNS(raw []byte) (*CostEvent, error) {
	var env snsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{Format: "sns", Cause: err}
	}
	if len(env.Records) == 0 {
		return nil, &ParseError{Format: "sns", Cause: fmt.Errorf("no records")}
	}
	rec := env.Records[0]
	if rec.EventSource != "aws:sns" {
		return nil, &ParseError{Format: "sns", Cause: fmt.Errorf("unexpected event source %q", rec.EventSource)}
	}
	if rec.Sns.Message == "" {
		return nil, &ParseError{Format: "sns", Cause: fmt.Errorf("empty message")}
	}
	ev, err := Parse([]byte(rec.Sns.Message))
	if err != nil {
		return nil, &ParseError{Format: "sns", Cause: err}
	}
	return ev, nil
}

// parseEventBridge handles budget notifications routed through EventBridge.
// The envelope carries the account id and a stable event id; the budget body
// lives in detail.
func parseEventBridge(raw []byte) (*CostEvent, error) {
	var env eventBridgeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{Format: "eventbridge", Cause: err}
	}
	if env.DetailType != "AWS Budget Notification" {
		return nil, &ParseError{Format: "eventbridge", Cause: fmt.Errorf("unsupported detail-type %q", env.DetailType)}
	}
	eventID := env.ID
	if eventID == "" {
		eventID = NewEventID()
	}
	ev, err := parseBudgetsNotification(env.Detail, eventID, env.Account)
	if err != nil {
		return nil, err
	}
	if env.Region != "" {
		ev.Details[DetailRegion] = env.Region
	}
	if ts, ok := parseTimestamp(env.Time); ok {
		ev.WindowStart, ev.WindowEnd = ts, ts
	}
	return ev, nil
}

// parseBudgetsNotification normalizes a bare AWS Budgets alert body.
// eventID and accountID, when non-empty, come from an outer envelope and win
// over anything derivable from the body.
func parseBudgetsNotification(raw []byte, eventID, accountID string) (*CostEvent, error) {
	var n budgetsNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, &ParseError{Format: "budgets", Cause: err}
	}
	if n.BudgetName == "" {
		return nil, &ParseError{Format: "budgets", Cause: fmt.Errorf("missing budgetName")}
	}

	amount, err := parseAmount(n.CalculatedSpend.ActualSpend.Amount)
	if err != nil {
		return nil, &ParseError{Format: "budgets", Cause: err}
	}

	if accountID == "" {
		accountID = budgetsAccountID(&n)
	}
	if !ValidAccountID(accountID) {
		return nil, &ParseError{Format: "budgets", Cause: fmt.Errorf("could not extract a 12-digit account id")}
	}

	if eventID == "" {
		eventID = fmt.Sprintf("budget-%s-%d", n.BudgetName, time.Now().UTC().Unix())
	}

	ts, ok := parseTimestamp(n.Time)
	if !ok {
		ts = time.Now().UTC()
	}

	currency := n.CalculatedSpend.ActualSpend.Unit
	if currency == "" {
		currency = "USD"
	}

	ev := &CostEvent{
		EventID:     eventID,
		Source:      SourceBudget,
		AccountID:   accountID,
		AmountUSD:   amount,
		WindowStart: ts,
		WindowEnd:   ts,
		Details: map[string]string{
			DetailBudgetName:      n.BudgetName,
			"notification_type":   defaultString(n.NotificationType, "ACTUAL"),
			"threshold_type":      defaultString(n.ThresholdType, "PERCENTAGE"),
			"threshold":           strconv.FormatFloat(n.Threshold, 'f', -1, 64),
			"comparison_operator": defaultString(n.ComparisonOperator, "GREATER_THAN"),
			"currency":            currency,
		},
	}
	if err := ev.Validate(); err != nil {
		return nil, &ParseError{Format: "budgets", Cause: err}
	}
	return ev, nil
}

// parseAnomalyAlert normalizes a Cost Anomaly Detection alert. The anomaly id
// yields a stable event id so redeliveries of the same anomaly fold together.
func parseAnomalyAlert(raw []byte) (*CostEvent, error) {
	var a anomalyAlert
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, &ParseError{Format: "anomaly", Cause: err}
	}
	if a.AnomalyID == "" {
		return nil, &ParseError{Format: "anomaly", Cause: fmt.Errorf("missing anomalyId")}
	}

	amount, err := parseAmount(a.Impact.TotalImpact)
	if err != nil || amount <= 0 {
		amount, err = parseAmount(a.Impact.TotalActualSpend)
	}
	if err != nil {
		return nil, &ParseError{Format: "anomaly", Cause: err}
	}

	start, ok := parseTimestamp(a.AnomalyStartDate)
	if !ok {
		start = time.Now().UTC()
	}
	end, ok := parseTimestamp(a.AnomalyEndDate)
	if !ok {
		end = start
	}

	details := map[string]string{
		DetailAnomalyID: a.AnomalyID,
	}
	if len(a.RootCauses) > 0 {
		rc := a.RootCauses[0]
		if rc.Service != "" {
			details[DetailService] = rc.Service
		}
		if rc.Region != "" {
			details[DetailRegion] = rc.Region
		}
	}

	ev := &CostEvent{
		EventID:     "anomaly-" + a.AnomalyID,
		Source:      SourceAnomaly,
		AccountID:   a.AccountID,
		AmountUSD:   amount,
		WindowStart: start,
		WindowEnd:   end,
		Details:     details,
	}
	if err := ev.Validate(); err != nil {
		return nil, &ParseError{Format: "anomaly", Cause: err}
	}
	return ev, nil
}

// parseDirect accepts an already-normalized CostEvent document.
func parseDirect(raw []byte) (*CostEvent, error) {
	var ev CostEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, &ParseError{Format: "costevent", Cause: err}
	}
	if ev.EventID == "" {
		ev.EventID = NewEventID()
	}
	if err := ev.Validate(); err != nil {
		return nil, &ParseError{Format: "costevent", Cause: err}
	}
	return &ev, nil
}

// budgetsAccountID extracts the account id from a budgets body: the
// notification ARN (arn:aws:budgets::123456789012:budget/*) first, then an
// explicit accountId field.
func budgetsAccountID(n *budgetsNotification) string {
	if n.NotificationArn != "" {
		parts := strings.Split(n.NotificationArn, ":")
		if len(parts) >= 5 && ValidAccountID(parts[4]) {
			return parts[4]
		}
	}
	if ValidAccountID(n.AccountID) {
		return n.AccountID
	}
	return ""
}

// parseAmount coerces the amount field, which AWS delivers as either a JSON
// number or a numeric string.
func parseAmount(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("missing amount")
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("invalid amount type %T", v)
	}
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
