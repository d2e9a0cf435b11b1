package domain

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Operator
	}{
		{name: "moov_prefix", input: "0112345678", want: OperatorMoov},
		{name: "mtn_prefix", input: "0512345678", want: OperatorMTN},
		{name: "orange_prefix", input: "0712345678", want: OperatorOrange},
		{name: "unrecognized_prefix", input: "0212345678", want: OperatorUnknown},
		{name: "single_char", input: "0", want: OperatorUnknown},
		{name: "empty", input: "", want: OperatorUnknown},
		{name: "prefix_only", input: "07", want: OperatorOrange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.input); got != tt.want {
				t.Fatalf("Classify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestOperatorDisplayName(t *testing.T) {
	if got := OperatorUnknown.DisplayName(); got != "Inconnu" {
		t.Fatalf("expected unknown operator to render as Inconnu, got %q", got)
	}
	if got := OperatorOrange.DisplayName(); got != "Orange" {
		t.Fatalf("expected Orange, got %q", got)
	}
}

func TestInternationalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "local_number", input: "0712345678", want: "+2250712345678"},
		{name: "already_international", input: "+2250712345678", want: "+2250712345678"},
		{name: "bare_country_code", input: "2250712345678", want: "+2250712345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Internationalize(tt.input); got != tt.want {
				t.Fatalf("Internationalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
