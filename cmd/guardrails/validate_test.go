package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePoliciesValidFile(t *testing.T) {
	validateFlags.file = "testdata/valid-policy.yaml"
	validateFlags.dir = ""
	validateFlags.format = "text"

	if err := validatePolicies(nil, nil); err != nil {
		t.Errorf("validatePolicies() with a valid file returned error: %v", err)
	}
}

func TestValidatePoliciesInvalidFile(t *testing.T) {
	validateFlags.file = "testdata/invalid-policy.yaml"
	validateFlags.dir = ""
	validateFlags.format = "text"

	if err := validatePolicies(nil, nil); err == nil {
		t.Error("validatePolicies() with an invalid file should return error")
	}
}

func TestValidatePoliciesNonexistentFile(t *testing.T) {
	validateFlags.file = "testdata/nonexistent.yaml"
	validateFlags.dir = ""
	validateFlags.format = "text"

	if err := validatePolicies(nil, nil); err == nil {
		t.Error("validatePolicies() with a missing file should return error")
	}
}

func TestValidatePoliciesNoFileOrDir(t *testing.T) {
	validateFlags.file = ""
	validateFlags.dir = ""
	validateFlags.format = "text"

	if err := validatePolicies(nil, nil); err == nil {
		t.Error("validatePolicies() without --file or --dir should return error")
	}
}

// JSON mode reports the same results and must keep the non-zero exit for CI.
func TestValidatePoliciesJSONFormat(t *testing.T) {
	validateFlags.file = "testdata/valid-policy.yaml"
	validateFlags.dir = ""
	validateFlags.format = "json"

	if err := validatePolicies(nil, nil); err != nil {
		t.Errorf("validatePolicies() json with a valid file returned error: %v", err)
	}

	validateFlags.file = "testdata/invalid-policy.yaml"
	if err := validatePolicies(nil, nil); err == nil {
		t.Error("validatePolicies() json with an invalid file should return error")
	}
}

func TestValidatePoliciesDirectory(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile("testdata/valid-policy.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "valid.yaml"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	validateFlags.file = ""
	validateFlags.dir = dir
	validateFlags.format = "text"

	if err := validatePolicies(nil, nil); err != nil {
		t.Errorf("validatePolicies() with a clean directory returned error: %v", err)
	}

	// One bad file fails the whole run.
	bad, err := os.ReadFile("testdata/invalid-policy.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), bad, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := validatePolicies(nil, nil); err == nil {
		t.Error("validatePolicies() with a broken file in the directory should return error")
	}
}

func TestValidatePoliciesEmptyDirectory(t *testing.T) {
	validateFlags.file = ""
	validateFlags.dir = t.TempDir()
	validateFlags.format = "text"

	if err := validatePolicies(nil, nil); err == nil {
		t.Error("validatePolicies() with no policy files should return error")
	}
}

func TestValidatePolicyFile(t *testing.T) {
	tests := []struct {
		name         string
		file         string
		wantValid    bool
		wantPolicyID string
	}{
		{
			name:         "valid policy",
			file:         "testdata/valid-policy.yaml",
			wantValid:    true,
			wantPolicyID: "prod-ec2-spike",
		},
		{
			name:         "invalid policy keeps its id",
			file:         "testdata/invalid-policy.yaml",
			wantValid:    false,
			wantPolicyID: "broken-policy",
		},
		{
			name:      "nonexistent file",
			file:      "testdata/nonexistent.yaml",
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validatePolicyFile(tt.file)
			if result.Valid != tt.wantValid {
				t.Errorf("validatePolicyFile(%q).Valid = %v, want %v", tt.file, result.Valid, tt.wantValid)
			}
			if result.PolicyID != tt.wantPolicyID {
				t.Errorf("validatePolicyFile(%q).PolicyID = %q, want %q", tt.file, result.PolicyID, tt.wantPolicyID)
			}
			if !tt.wantValid && len(result.Errors) == 0 {
				t.Error("invalid result carries no errors")
			}
		})
	}
}
