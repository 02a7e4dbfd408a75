package record

import (
	"strings"
	"testing"
)

func TestValidateEntry(t *testing.T) {
	valid := DictionaryEntry{
		RecordingID: "rec-1",
		Start:       0.0,
		End:         2.0,
		Accuracy:    AccuracyUnconfirmed,
	}
	if err := ValidateEntry(valid); err != nil {
		t.Errorf("expected valid entry, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*DictionaryEntry)
		want   string
	}{
		{"missing recording", func(e *DictionaryEntry) { e.RecordingID = "" }, "recording id"},
		{"negative start", func(e *DictionaryEntry) { e.Start = -1 }, "negative"},
		{"inverted region", func(e *DictionaryEntry) { e.Start, e.End = 3, 2 }, "before end"},
		{"zero-length region", func(e *DictionaryEntry) { e.Start, e.End = 2, 2 }, "before end"},
		{"bad accuracy", func(e *DictionaryEntry) { e.Accuracy = "maybe" }, "accuracy"},
	}
	for _, c := range cases {
		e := valid
		c.mutate(&e)
		err := ValidateEntry(e)
		if err == nil {
			t.Errorf("%s: expected error", c.name)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: expected error mentioning %q, got %v", c.name, c.want, err)
		}
	}
}

func TestRegionKey_RoundsMillisecondJitter(t *testing.T) {
	a := RegionKey(1.2345004, 2.0)
	b := RegionKey(1.2345, 2.0000004)
	if a != b {
		t.Errorf("expected sub-millisecond jitter to collapse: %q vs %q", a, b)
	}
	if RegionKey(1.234, 2.0) == RegionKey(1.236, 2.0) {
		t.Error("expected distinct milliseconds to produce distinct keys")
	}
}
