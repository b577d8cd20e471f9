// Package ledger is the persisted recipient ledger: address -> owed/remaining
// whole-token amounts, plus the pacing counters. The JSON file is the sole
// source of truth; a restarted process resumes from exactly what it holds.
package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// State is the singleton scheduler state, one file per campaign.
type State struct {
	Token          string           `json:"token"`
	Decimals       int              `json:"decimals"`
	Totals         map[string]int64 `json:"totals"`
	Remaining      map[string]int64 `json:"remaining"`
	Cursor         uint64           `json:"cursor"` // last scanned block (bonus campaigns)
	LastAddr       string           `json:"lastAddr"`
	SentToday      int              `json:"sentToday"`
	DayKey         string           `json:"dayKey"`
	EstDailyBudget int              `json:"estDailyBudget"`
	Deadline       string           `json:"deadline,omitempty"` // completion-horizon day, set on first rollover

	path string
}

// Load reads the state file, or returns a fresh state if it does not exist yet.
func Load(path string) (*State, error) {
	st := &State{
		Totals:    map[string]int64{},
		Remaining: map[string]int64{},
		path:      path,
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, errors.Wrap(err, "read state file")
	}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, errors.Wrapf(err, "corrupt state file %s", path)
	}
	if st.Totals == nil {
		st.Totals = map[string]int64{}
	}
	if st.Remaining == nil {
		st.Remaining = map[string]int64{}
	}
	return st, nil
}

// Save writes the whole state with 2-space indentation, atomically
// (temp file + rename) so a kill mid-write cannot truncate the ledger.
func (s *State) Save() error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create state dir")
	}
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrap(err, "write state file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "replace state file")
	}
	return nil
}

// MergeReport summarizes one CSV merge pass.
type MergeReport struct {
	NewRecipients int
	ToppedUp      int
	Unchanged     int
}

// Merge folds CSV totals into the ledger. New address: remaining seeded with the
// full total. Raised total: remaining topped up by exactly the delta, so a
// partially paid recipient is neither overpaid nor shorted. A lowered or absent
// total never reduces remaining, already-promised obligations are kept.
// Re-merging an unchanged CSV is a no-op.
func (s *State) Merge(totals map[string]int64) MergeReport {
	var rep MergeReport
	for addr, total := range totals {
		prev, known := s.Totals[addr]
		switch {
		case !known:
			s.Totals[addr] = total
			s.Remaining[addr] = total
			rep.NewRecipients++
		case total > prev:
			s.Totals[addr] = total
			s.Remaining[addr] += total - prev
			rep.ToppedUp++
		default:
			rep.Unchanged++
		}
	}
	return rep
}

// Credit tops up a single recipient (bonus crediting path).
func (s *State) Credit(addr string, amount int64) {
	if amount <= 0 {
		return
	}
	s.Totals[addr] += amount
	s.Remaining[addr] += amount
}

// ApplySend records a confirmed transfer of amount whole tokens.
func (s *State) ApplySend(addr string, amount int64) error {
	rem, ok := s.Remaining[addr]
	if !ok || amount <= 0 || amount > rem {
		return errors.Newf("invalid send of %d against remaining %d for %s", amount, rem, addr)
	}
	s.Remaining[addr] = rem - amount
	s.LastAddr = addr
	s.SentToday++
	return nil
}

// Exclude zeroes a recipient's remaining balance (security-policy violation).
// The entry stays in the ledger so a later CSV re-import cannot revive it
// without an explicit raised total.
func (s *State) Exclude(addr string) {
	s.Remaining[addr] = 0
}

// Unfinished returns the addresses still owed tokens.
func (s *State) Unfinished() []string {
	out := make([]string, 0, len(s.Remaining))
	for addr, rem := range s.Remaining {
		if rem > 0 {
			out = append(out, addr)
		}
	}
	return out
}

// TotalRemaining sums the unpaid whole tokens across all recipients.
func (s *State) TotalRemaining() int64 {
	var sum int64
	for _, rem := range s.Remaining {
		if rem > 0 {
			sum += rem
		}
	}
	return sum
}

// RollDay resets the per-day counters at local midnight.
func (s *State) RollDay(dayKey string, budget int) {
	s.DayKey = dayKey
	s.SentToday = 0
	s.EstDailyBudget = budget
}

// Path returns the backing file path.
func (s *State) Path() string { return s.path }
