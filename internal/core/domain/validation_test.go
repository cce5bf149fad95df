package domain

import (
	"errors"
	"testing"
)

func TestValidatePlatformID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"cpe:2.3:a:apache:http_server:2.4.49:*:*:*:*:*:*:*", true},
		{"cpe:2.3:o:microsoft:windows_10:1809:*:*:*:*:*:*:*", true},
		{"cpe:/o:microsoft:windows_xp::sp3", true},
		{"", false},
		{"   ", false},
		{"apache httpd", false},
		{"cpe:2.3:a:apache", false},
	}

	for _, tt := range tests {
		err := ValidatePlatformID(tt.id)
		if tt.valid && err != nil {
			t.Errorf("ValidatePlatformID(%q) = %v; want nil", tt.id, err)
		}
		if !tt.valid {
			if err == nil {
				t.Errorf("ValidatePlatformID(%q) = nil; want error", tt.id)
			} else if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ValidatePlatformID(%q) error %v is not ErrInvalidInput", tt.id, err)
			}
		}
	}
}

func TestIsCPE23(t *testing.T) {
	if !IsCPE23("cpe:2.3:h:cisco:wap321:-:*:*:*:*:*:*:*") {
		t.Error("expected hardware CPE 2.3 string to be valid")
	}
	if IsCPE23("cpe:/h:cisco:wap321") {
		t.Error("CPE 2.2 URI must not be reported as CPE 2.3")
	}
}
