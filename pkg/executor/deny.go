package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

const denyPolicyPrefix = "guardrails-deny"

// DenyPolicyName returns the managed policy name for a guardrail's deny set.
// The name embeds a digest of the sorted action list, so a policy whose deny
// set changes produces a fresh managed policy instead of mutating one that
// older executions still reference.
func DenyPolicyName(policyID string, deny []string) string {
	sorted := append([]string(nil), deny...)
	sort.Strings(sorted)
	payload, _ := json.Marshal(sorted)
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s-%s-%s", denyPolicyPrefix, policyID, hex.EncodeToString(sum[:4]))
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Sid      string   `json:"Sid,omitempty"`
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource string   `json:"Resource"`
}

// DenyPolicyDocument renders the IAM policy document denying the given
// actions on every resource.
func DenyPolicyDocument(deny []string) (string, error) {
	sorted := append([]string(nil), deny...)
	sort.Strings(sorted)
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Sid:      "CostGuardrailDeny",
			Effect:   "Deny",
			Action:   sorted,
			Resource: "*",
		}},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding deny document: %w", err)
	}
	return string(raw), nil
}
