package progress

import (
	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
)

// ErrLocked is returned when another process holds the progress lock.
var ErrLocked = eris.New("progress: another enricher is already running against this progress file")

// Lock guards a progress file against concurrent writers.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes an exclusive, non-blocking lock next to the progress
// file at path.
func AcquireLock(path string) (*Lock, error) {
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, eris.Wrap(err, "progress: acquire lock")
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return eris.Wrap(l.fl.Unlock(), "progress: release lock")
}
