package metrics

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordPublish forwards the event to all sinks, returning the first error.
func (m *MultiSink) RecordPublish(ev PublishEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordPublish(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordCommand forwards the event to all sinks, returning the first error.
func (m *MultiSink) RecordCommand(ev CommandEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordCommand(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordState forwards snapshots to sinks that record them.
func (m *MultiSink) RecordState(ev StateEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(StateRecorder); ok {
			if err := rec.RecordState(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
