package store

import "testing"

func TestValidateShapeAcceptsWellFormedTape(t *testing.T) {
	if err := validateShape([]byte(sampleTape)); err != nil {
		t.Fatalf("expected valid tape to pass schema validation: %v", err)
	}
}

func TestValidateShapeRejectsMissingRequiredFields(t *testing.T) {
	if err := validateShape([]byte(`{"meta": {}, "session": {}, "exchanges": []}`)); err == nil {
		t.Fatal("expected schema validation to reject a tape missing required meta fields")
	}
}
