package events

import "testing"

func TestNopImplementsLogger(t *testing.T) {
	var l Logger = Nop{}
	if err := l.LogRunEvent("r1", "t1", 1, "received", "", ""); err != nil {
		t.Errorf("Nop.LogRunEvent: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Nop.Close: %v", err)
	}
}
