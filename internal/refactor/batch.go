package refactor

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// batchStep is one entry of batch's operations[].
type batchStep struct {
	Operation string          `json:"operation"`
	Params    json.RawMessage `json:"params"`
}

type batchParams struct {
	Operations []batchStep `json:"operations"`
}

// executeBatch runs a sequence of operations inside a single transaction
// (spec §4.9 batch). It does not serialize intra-file ordering conflicts
// between steps (SPEC_FULL.md §E.3): each step's plan is computed against
// whatever is on disk at the moment it runs, which already reflects any
// earlier step's writes within the same transaction.
func (d *Dispatcher) executeBatch(raw json.RawMessage) (*Result, error) {
	var p batchParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if len(p.Operations) == 0 {
		err := ntserr.New(ntserr.KindInvalidArgument, "batch requires at least one operation")
		return errorResult("batch", err), err
	}
	if err := validateBatchSteps(p.Operations); err != nil {
		return errorResult("batch", err), err
	}

	if err := d.mgr.Begin("batch"); err != nil {
		return errorResult("batch", err), err
	}

	var allChanges []FileChange
	var diags []string
	for i, step := range p.Operations {
		fn, err := lookup(step.Operation)
		if err != nil {
			_ = d.mgr.Rollback()
			return partialResult(allChanges, diags, i, step.Operation, err), nil
		}
		changes, stepDiags, err := fn(d, step.Params)
		if err != nil {
			_ = d.mgr.Rollback()
			return partialResult(allChanges, diags, i, step.Operation, err), nil
		}
		if err := d.applyChanges(changes); err != nil {
			_ = d.mgr.Rollback()
			return partialResult(allChanges, diags, i, step.Operation, err), nil
		}
		allChanges = append(allChanges, changes...)
		diags = append(diags, stepDiags...)
	}

	txnID, err := d.mgr.Commit("batch")
	if err != nil {
		return errorResult("batch", err), err
	}
	status := StatusOK
	if len(allChanges) == 0 {
		status = StatusNoChanges
	}
	affected, total := aggregateCounts(allChanges)
	return &Result{
		Status:        status,
		Operation:     "batch",
		TransactionID: txnID,
		Changes:       summarize(allChanges),
		AffectedFiles: affected,
		TotalChanges:  total,
		Diagnostics:   diags,
	}, nil
}

// validateBatchSteps resolves every step's operation name before anything
// runs, collecting every unknown operation into one aggregated error
// (rather than failing on the first) so the caller can fix a whole batch
// request in one round trip instead of discovering typos one at a time.
func validateBatchSteps(steps []batchStep) error {
	var errs *multierror.Error
	for i, step := range steps {
		if _, err := lookup(step.Operation); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("step %d: %w", i, err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return ntserr.Wrap(ntserr.KindInvalidArgument, err, "batch contains invalid steps: %s", err)
	}
	return nil
}

// partialResult builds the *partial* status Result spec §4.9 requires
// when a batch step fails: the transaction has already been rolled back,
// so Changes reflects only what would have applied before the failing
// step, for diagnostic purposes; none of it is committed.
func partialResult(applied []FileChange, diags []string, failedIndex int, failedOp string, failure error) *Result {
	diags = append(diags, fmt.Sprintf("step %d (%s) failed: %v", failedIndex, failedOp, failure))
	affected, total := aggregateCounts(applied)
	return &Result{
		Status:        StatusPartial,
		Operation:     "batch",
		Changes:       summarize(applied),
		AffectedFiles: affected,
		TotalChanges:  total,
		Error:         failure.Error(),
		Diagnostics:   diags,
	}
}
