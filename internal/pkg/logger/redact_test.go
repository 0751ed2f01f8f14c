package logger

import "testing"

func TestRedactIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.54", "203.0.113.x"},
		{"10.1.2.3", "10.1.2.x"},
		{"2001:db8:85a3:0:0:8a2e:370:7334", "2001:db8::x"},
		{"not-an-ip", "x.x.x.x"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := RedactIP(tt.in); got != tt.want {
			t.Errorf("RedactIP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"garbage", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
