package errs

import (
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessagesNameTheField(t *testing.T) {
	err := Config("train_test_split_ratio", 1.5, "must be in (0,1)")
	if !strings.Contains(err.Error(), "train_test_split_ratio=1.5") {
		t.Fatalf("message = %q", err.Error())
	}
	err = Data("target", "column is entirely missing")
	if !strings.Contains(err.Error(), `"target"`) || !strings.Contains(err.Error(), "entirely missing") {
		t.Fatalf("message = %q", err.Error())
	}
	if got := Data("", "dataset has %d rows", 0).Error(); got != "data validation failed: dataset has 0 rows" {
		t.Fatalf("message = %q", got)
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("analyze: %w", Config("target", "y", "column not found"))
	if !IsConfig(wrapped) || IsData(wrapped) {
		t.Fatalf("expected config error classification")
	}
	wrapped = fmt.Errorf("train: %w", Data("y", "single class"))
	if !IsData(wrapped) || IsConfig(wrapped) {
		t.Fatalf("expected data error classification")
	}
}
