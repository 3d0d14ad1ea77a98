package roster

// SetPending flips the in-flight request flag for a seat.
func (r *Registry) SetPending(id string, pending bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agents[id]; ok {
		agent.PendingRequest = pending
	}
}

// SetMemory overwrites the agent's memory note. Memory is a single short
// note, never appended to.
func (r *Registry) SetMemory(id, note string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agents[id]; ok {
		agent.Memory = note
	}
}

// Memory returns the agent's current memory note.
func (r *Registry) Memory(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agents[id]; ok {
		return agent.Memory
	}
	return ""
}

// SetFingerprint records the snapshot hash the agent last saw and reports
// whether it changed.
func (r *Registry) SetFingerprint(id, fingerprint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[id]
	if !ok {
		return false
	}
	changed := agent.LastFingerprint != fingerprint
	agent.LastFingerprint = fingerprint
	return changed
}

// RecordOutcome updates the agent's lifetime counters for one resolved
// request. Called unconditionally at the end of every turn.
func (r *Registry) RecordOutcome(id string, success bool, tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[id]
	if !ok {
		return
	}
	agent.Counters.Requests++
	if success {
		agent.Counters.Successes++
	} else {
		agent.Counters.Failures++
	}
	agent.Counters.Tokens += tokens
}

// CountersFor returns a copy of the agent's counters.
func (r *Registry) CountersFor(id string) Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agents[id]; ok {
		return agent.Counters
	}
	return Counters{}
}
