package engine_test

import (
	"context"
	"maps"
	"sync"

	"github.com/sells-group/sheet-enricher/internal/lookup"
	"github.com/sells-group/sheet-enricher/internal/model"
)

type memProgress struct {
	mu      sync.Mutex
	p       model.Progress
	saves   []model.Progress
	loadErr error
	saveErr error
}

func newMemProgress(p model.Progress) *memProgress {
	return &memProgress{p: p}
}

func (m *memProgress) Load() (model.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return model.Progress{}, m.loadErr
	}
	return m.p, nil
}

func (m *memProgress) Save(p model.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.p = p
	m.saves = append(m.saves, p)
	return nil
}

func (m *memProgress) current() model.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p
}

type staticSource struct {
	rows  [][]string
	err   error
	reads int
}

func (s *staticSource) ReadRows(context.Context) ([][]string, error) {
	s.reads++
	return s.rows, s.err
}

type recordingSink struct {
	mu    sync.Mutex
	calls []model.CycleMap
	err   error
}

func (s *recordingSink) Apply(ctx context.Context, rows [][]string, results model.CycleMap) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.calls = append(s.calls, maps.Clone(results))
	if s.err != nil {
		return 0, s.err
	}
	n := 0
	for _, row := range rows {
		if len(row) > 0 {
			if _, ok := results[row[0]]; ok {
				n++
			}
		}
	}
	return n, nil
}

// merged returns every result written across calls, later calls winning.
func (s *recordingSink) merged() model.CycleMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := model.CycleMap{}
	for _, c := range s.calls {
		maps.Copy(out, c)
	}
	return out
}

type fakeProvider struct {
	mu         sync.Mutex
	profiles   map[string]string
	fallbacks  map[string]string
	details    map[string]lookup.Details
	findErr    map[string]error
	detailsErr error
	// onFind runs before FindProfile answers; a non-nil error is returned.
	onFind func(ctx context.Context, name string) error
	calls  []string
	closed int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		profiles:  map[string]string{},
		fallbacks: map[string]string{},
		details:   map[string]lookup.Details{},
		findErr:   map[string]error{},
	}
}

func (f *fakeProvider) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeProvider) FindProfile(ctx context.Context, name string) (string, error) {
	f.record("find:" + name)
	if f.onFind != nil {
		if err := f.onFind(ctx, name); err != nil {
			return "", err
		}
	}
	return f.profiles[name], f.findErr[name]
}

func (f *fakeProvider) FindProfileFallback(_ context.Context, name string) (string, error) {
	f.record("fallback:" + name)
	return f.fallbacks[name], nil
}

func (f *fakeProvider) FetchDetails(_ context.Context, url string) (lookup.Details, error) {
	f.record("details:" + url)
	return f.details[url], f.detailsErr
}

func (f *fakeProvider) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeProvider) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

type memLedger struct {
	mu       sync.Mutex
	begun    []model.Run
	finished []model.Run
	cycles   []model.CycleRecord
}

func (l *memLedger) BeginRun(_ context.Context, run *model.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.begun = append(l.begun, *run)
	return nil
}

func (l *memLedger) RecordCycle(_ context.Context, rec *model.CycleRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cycles = append(l.cycles, *rec)
	return nil
}

func (l *memLedger) FinishRun(_ context.Context, run *model.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished = append(l.finished, *run)
	return nil
}

// sheet builds a header row followed by one single-cell row per name.
func sheet(names ...string) [][]string {
	rows := [][]string{{"Company"}}
	for _, n := range names {
		rows = append(rows, []string{n})
	}
	return rows
}
