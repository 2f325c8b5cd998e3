package engine

// Stats counts what happened during one or more entity updates.
type Stats struct {
	Updated              int `json:"updated" msgpack:"updated"`
	LocalFirings         int `json:"local_firings" msgpack:"local_firings"`
	BroadcastEvaluations int `json:"broadcast_evaluations" msgpack:"broadcast_evaluations"`
	BroadcastFirings     int `json:"broadcast_firings" msgpack:"broadcast_firings"`
	SkippedRules         int `json:"skipped_rules" msgpack:"skipped_rules"`
	QuotaHits            int `json:"quota_hits" msgpack:"quota_hits"`
	DispatchFailures     int `json:"dispatch_failures" msgpack:"dispatch_failures"`
	RejectedWrites       int `json:"rejected_writes" msgpack:"rejected_writes"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Updated += o.Updated
	s.LocalFirings += o.LocalFirings
	s.BroadcastEvaluations += o.BroadcastEvaluations
	s.BroadcastFirings += o.BroadcastFirings
	s.SkippedRules += o.SkippedRules
	s.QuotaHits += o.QuotaHits
	s.DispatchFailures += o.DispatchFailures
	s.RejectedWrites += o.RejectedWrites
}

// Firings is the total number of rules that passed their guard and
// applied.
func (s Stats) Firings() int {
	return s.LocalFirings + s.BroadcastFirings
}
