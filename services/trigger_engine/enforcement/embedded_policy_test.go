package enforcement

import (
	"crypto/sha256"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestEmbeddedDataIntegrity(t *testing.T) {
	// 1. Ensure the embedded slice is not empty
	if len(IntentTriggerPatterns) == 0 {
		t.Fatal("Embedded trigger data is empty. Did the build fail to include 'intent_trigger_patterns.yaml'?")
	}

	// 2. Ensure it is valid YAML (The 'Verify' step)
	var dump map[string]interface{}
	if err := yaml.Unmarshal(IntentTriggerPatterns, &dump); err != nil {
		t.Fatalf("Embedded data is not valid YAML: %v", err)
	}

	// 3. Ensure we can calculate a hash (The 'Verify' command logic)
	hash := sha256.Sum256(IntentTriggerPatterns)
	if len(hash) != 32 {
		t.Errorf("Hash calculation failed, expected 32 bytes, got %d", len(hash))
	}
	t.Logf("Current Trigger Table Hash: %x", hash)

	// 4. Test if the trigger table is too short
	if len(IntentTriggerPatterns) < 30 {
		t.Fatal("there are no intent trigger patterns")
	}
	t.Logf("Embedded trigger table size > 0: %d bytes", len(IntentTriggerPatterns))
}
