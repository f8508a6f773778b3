package audit

import "errors"

// multi fans a record out to several sinks.
type multi struct {
	sinks []Recorder
}

// Multi returns a Recorder that writes to every given sink. All sinks are
// attempted even when an earlier one fails; the errors are joined.
// Multi() with no sinks is a valid no-op recorder.
func Multi(sinks ...Recorder) Recorder {
	return &multi{sinks: sinks}
}

func (m *multi) Record(entry Entry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
