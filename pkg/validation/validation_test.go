package validation

import "testing"

func TestValidateRoomName(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "Friday night jam", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too short", "ab", true},
		{"too long", string(make([]byte, 101)), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRoomName(tc.input)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateRoomName(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
		})
	}
}

func TestValidateTrackID(t *testing.T) {
	if err := ValidateTrackID("track_abc-123"); err != nil {
		t.Errorf("Expected valid track ID, got: %v", err)
	}
	if err := ValidateTrackID(""); err == nil {
		t.Error("Expected error for empty track ID")
	}
	if err := ValidateTrackID("has spaces"); err == nil {
		t.Error("Expected error for track ID with spaces")
	}
}

func TestValidateMinimumScore(t *testing.T) {
	if err := ValidateMinimumScore(1); err != nil {
		t.Errorf("Expected 1 to be valid, got: %v", err)
	}
	if err := ValidateMinimumScore(0); err == nil {
		t.Error("Expected error for score 0")
	}
	if err := ValidateMinimumScore(1001); err == nil {
		t.Error("Expected error for score above cap")
	}
}

func TestValidateChatMessage(t *testing.T) {
	if err := ValidateChatMessage("hello"); err != nil {
		t.Errorf("Expected valid message, got: %v", err)
	}
	if err := ValidateChatMessage("  "); err == nil {
		t.Error("Expected error for blank message")
	}
}
