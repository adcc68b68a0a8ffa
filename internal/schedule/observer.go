package schedule

// Observer receives progress from a Scheduler. Calls come from the scheduling
// goroutine only.
type Observer interface {
	// Progress is reported after every batch barrier.
	Progress(processed, total int)
	// RecordFailed is reported once per failed record.
	RecordFailed(ordinal int, name string, err error)
}

// BatchObserver is optionally implemented by observers that want to see every
// drawn batch.
type BatchObserver interface {
	BatchDispatched(batch int, indices []int)
}

// StateObserver is optionally implemented by observers that track the
// scheduler state machine.
type StateObserver interface {
	StateChanged(s State)
}

// Observers fans out to several observers.
type Observers []Observer

func (o Observers) Progress(processed, total int) {
	for _, x := range o {
		x.Progress(processed, total)
	}
}

func (o Observers) RecordFailed(ordinal int, name string, err error) {
	for _, x := range o {
		x.RecordFailed(ordinal, name, err)
	}
}

func (o Observers) BatchDispatched(batch int, indices []int) {
	for _, x := range o {
		if b, ok := x.(BatchObserver); ok {
			b.BatchDispatched(batch, indices)
		}
	}
}

func (o Observers) StateChanged(s State) {
	for _, x := range o {
		if so, ok := x.(StateObserver); ok {
			so.StateChanged(s)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Progress(int, int) {}
func (nopObserver) RecordFailed(int, string, error) {}

// FileObserver is optionally implemented by observers that want to know when
// a driver starts scheduling a new input file.
type FileObserver interface {
	FileStarted(path string, records int)
}

func (o Observers) FileStarted(path string, records int) {
	for _, x := range o {
		if f, ok := x.(FileObserver); ok {
			f.FileStarted(path, records)
		}
	}
}
