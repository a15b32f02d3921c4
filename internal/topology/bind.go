package topology

import (
	"fmt"
	"log/slog"
	"sort"
)

// BoundTermination is a StagedTermination whose symbolic cable label has been
// replaced by the server-assigned cable ID. This is the wire shape of the
// termination load file.
type BoundTermination struct {
	CableID           int64  `json:"cable_id" parquet:"cable_id"`
	CableEnd          string `json:"cable_end" parquet:"cable_end"`
	TerminationTypeID int64  `json:"termination_type_id" parquet:"termination_type_id"`
	TerminationID     int64  `json:"termination_id" parquet:"termination_id"`
}

// UnmatchedPolicy decides what Bind does with a staged termination whose
// cable label is absent from the resolved ID map.
type UnmatchedPolicy int

const (
	// UnmatchedWarn drops the termination and logs each missing label.
	UnmatchedWarn UnmatchedPolicy = iota
	// UnmatchedDrop drops the termination silently; the result still counts
	// the missing labels.
	UnmatchedDrop
	// UnmatchedError fails the whole bind when any label is unresolved.
	UnmatchedError
)

// Binder rewrites staged terminations once cable IDs are known. The zero
// value warns on unmatched labels using slog.Default.
type Binder struct {
	Policy UnmatchedPolicy
	Logger *slog.Logger
}

// BindResult carries the rewritten terminations and the labels that had no
// resolved cable ID.
type BindResult struct {
	Terminations []BoundTermination
	Unmatched    []string
}

// Bind rewrites every staged termination's cable label to the ID in
// labelToID. Terminations are emitted in input order; both ends of a cable
// whose label is unresolved are handled per the policy. This is a pure
// rewrite; staged input is never modified.
func (b Binder) Bind(staged []StagedTermination, labelToID map[string]int64) (BindResult, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	result := BindResult{
		Terminations: make([]BoundTermination, 0, len(staged)),
	}
	missing := make(map[string]bool)

	for _, t := range staged {
		id, ok := labelToID[t.CableLabel]
		if !ok {
			missing[t.CableLabel] = true
			continue
		}
		result.Terminations = append(result.Terminations, BoundTermination{
			CableID:           id,
			CableEnd:          t.End,
			TerminationTypeID: t.TerminationTypeID,
			TerminationID:     t.TerminationID,
		})
	}

	for label := range missing {
		result.Unmatched = append(result.Unmatched, label)
	}
	sort.Strings(result.Unmatched)

	if len(result.Unmatched) > 0 {
		switch b.Policy {
		case UnmatchedError:
			return BindResult{}, fmt.Errorf("bind: %d cable labels unresolved (first: %s)",
				len(result.Unmatched), result.Unmatched[0])
		case UnmatchedWarn:
			logger.Warn("dropping terminations for unresolved cable labels",
				"count", len(result.Unmatched), "first", result.Unmatched[0])
		}
	}

	return result, nil
}
