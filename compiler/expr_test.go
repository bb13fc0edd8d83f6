package compiler

import "testing"

func TestEvaluateExpressionArithmetic(t *testing.T) {
	cases := map[string]string{
		"1 + 2 * 3":   "7",
		"(1 + 2) * 3": "9",
		"10 / 4":      "2.5",
		"10 % 3":      "1",
		"-5 + 2":      "-3",
	}
	for src, want := range cases {
		got, err := EvaluateExpression(src)
		if err != nil {
			t.Fatalf("EvaluateExpression(%q) failed: %v", src, err)
		}
		if got != want {
			t.Errorf("EvaluateExpression(%q) = %q, want %q", src, got, want)
		}
	}
}

func TestEvaluateExpressionComparisonAndBoolean(t *testing.T) {
	cases := map[string]string{
		"1 < 2":           "true",
		"2 <= 2":          "true",
		"3 == 3":          "true",
		"3 != 4":          "true",
		"true && false":   "false",
		"true || false":   "true",
		`"a" == "a"`:      "true",
	}
	for src, want := range cases {
		got, err := EvaluateExpression(src)
		if err != nil {
			t.Fatalf("EvaluateExpression(%q) failed: %v", src, err)
		}
		if got != want {
			t.Errorf("EvaluateExpression(%q) = %q, want %q", src, got, want)
		}
	}
}

func TestEvaluateExpressionTernary(t *testing.T) {
	got, err := EvaluateExpression("1 < 2 ? 10 : 20")
	if err != nil {
		t.Fatalf("EvaluateExpression failed: %v", err)
	}
	if got != "10" {
		t.Errorf("got %q, want %q", got, "10")
	}
}

func TestEvaluateExpressionUnsubstitutedIdentifierErrors(t *testing.T) {
	_, err := EvaluateExpression("$width + 1")
	if err == nil {
		t.Fatal("expected an error for an unsubstituted variable reference, got nil")
	}
}

func TestEvaluateExpressionTrailingInputErrors(t *testing.T) {
	_, err := EvaluateExpression("1 + 2 3")
	if err == nil {
		t.Fatal("expected an error for trailing input, got nil")
	}
}
