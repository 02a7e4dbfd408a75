package record

import (
	"errors"
	"fmt"
)

// ValidateEntry checks a [DictionaryEntry] for structural validity.
//
// Rules:
//   - RecordingID must be non-empty.
//   - Start must be strictly less than End, and both non-negative.
//   - Accuracy must be a recognised [AccuracyStatus].
func ValidateEntry(e DictionaryEntry) error {
	var errs []error

	if e.RecordingID == "" {
		errs = append(errs, errors.New("recording id must not be empty"))
	}
	if e.Start < 0 {
		errs = append(errs, fmt.Errorf("region start %.3f must not be negative", e.Start))
	}
	if e.Start >= e.End {
		errs = append(errs, fmt.Errorf("region start %.3f must be before end %.3f", e.Start, e.End))
	}
	if !e.Accuracy.IsValid() {
		errs = append(errs, fmt.Errorf("accuracy status %q is not recognised", e.Accuracy))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
