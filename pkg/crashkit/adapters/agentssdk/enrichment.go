// enrichment.go keeps per-run context captured by hooks so that an error
// surfacing at the runner boundary can be attributed to the operation in
// flight.

package agentssdk

import "sync"

// Enrichment is what the hooks learned about a run.
type Enrichment struct {
	AgentName   string
	Model       string
	ToolName    string
	ToolCallID  string
	Operation   string
	OperationID string

	// History is the run's most recent operations, oldest first.
	History []OperationRecord
}

// EnrichmentStore holds enrichment per run ID. Implementations must be safe
// for concurrent use.
type EnrichmentStore interface {
	// Update applies fn to the enrichment for runID, creating it if needed.
	// fn runs under the store lock and must not call back into the store.
	Update(runID string, fn func(e *Enrichment))

	// Record appends an operation to the run's history.
	Record(runID string, op OperationRecord)

	// Finish updates the most recent operation of kind.
	Finish(runID, kind string, fn func(op *OperationRecord))

	// Get returns a copy of the enrichment for runID.
	Get(runID string) (Enrichment, bool)

	// Delete forgets runID.
	Delete(runID string)
}

type runState struct {
	enrichment Enrichment
	history    history
}

type memoryStore struct {
	mu          sync.Mutex
	runs        map[string]*runState
	historySize int
}

// NewEnrichmentStore returns an in-memory store keeping historySize
// operations per run (DefaultHistorySize when <= 0).
func NewEnrichmentStore(historySize int) EnrichmentStore {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &memoryStore{runs: make(map[string]*runState), historySize: historySize}
}

func (s *memoryStore) stateLocked(runID string) *runState {
	st, ok := s.runs[runID]
	if !ok {
		st = &runState{history: history{size: s.historySize}}
		s.runs[runID] = st
	}
	return st
}

func (s *memoryStore) Update(runID string, fn func(e *Enrichment)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.stateLocked(runID).enrichment)
}

func (s *memoryStore) Record(runID string, op OperationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateLocked(runID).history.add(op)
}

func (s *memoryStore) Finish(runID, kind string, fn func(op *OperationRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.runs[runID]
	if !ok {
		return
	}
	if op := st.history.last(kind); op != nil {
		fn(op)
	}
}

func (s *memoryStore) Get(runID string) (Enrichment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.runs[runID]
	if !ok {
		return Enrichment{}, false
	}
	e := st.enrichment
	e.History = st.history.all()
	for i := range e.History {
		if llm := e.History[i].LLM; llm != nil {
			cp := *llm
			e.History[i].LLM = &cp
		}
		if tool := e.History[i].Tool; tool != nil {
			cp := *tool
			e.History[i].Tool = &cp
		}
	}
	return e, true
}

func (s *memoryStore) Delete(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}
