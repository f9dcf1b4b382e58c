package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/avelar-fin/loan-service/internal/models"
)

// Update pairs an existing installment row with the recalculated entry that
// replaces it.
type Update struct {
	ID    int64
	Entry Entry
}

// Diff is the minimal set of ledger mutations that aligns the persisted
// schedule with a recalculated breakdown. Slice order follows breakdown
// order and must be applied as-is.
type Diff struct {
	Updates   []Update
	Inserts   []Entry
	DeleteIDs []int64
}

// Reconcile matches the updateable subset of existing installments against
// a recalculated breakdown by position: index 0 to index 0, and so on. The
// two sequences describe the same conceptual future schedule after a
// balance change, so positional alignment is used instead of date matching.
//
// Only pending and cancelled rows on or after cutover (when given) are
// considered; every other row is preserved untouched. Extra existing rows
// beyond the breakdown are deleted, extra breakdown entries are inserted
// as new pending rows.
func Reconcile(existing []models.Installment, breakdown []Entry, cutover *time.Time) (Diff, error) {
	if len(breakdown) == 0 {
		return Diff{}, fmt.Errorf("%w: empty recalculated breakdown", ErrInvalidInput)
	}

	updateable := make([]models.Installment, 0, len(existing))
	for _, inst := range existing {
		if !inst.Status.IsUpdateable() {
			continue
		}
		if cutover != nil && inst.PaymentDate.Before(*cutover) {
			continue
		}
		updateable = append(updateable, inst)
	}
	sort.SliceStable(updateable, func(i, j int) bool {
		if updateable[i].PaymentDate.Equal(updateable[j].PaymentDate) {
			return updateable[i].PaymentNumber < updateable[j].PaymentNumber
		}
		return updateable[i].PaymentDate.Before(updateable[j].PaymentDate)
	})

	var diff Diff
	for i, entry := range breakdown {
		if i < len(updateable) {
			diff.Updates = append(diff.Updates, Update{ID: updateable[i].ID, Entry: entry})
		} else {
			diff.Inserts = append(diff.Inserts, entry)
		}
	}
	for i := len(breakdown); i < len(updateable); i++ {
		diff.DeleteIDs = append(diff.DeleteIDs, updateable[i].ID)
	}

	return diff, nil
}
