package ycrdt

import (
	"github.com/Horusiath/y-crdt/block"
)

// Transaction accumulates one commit's worth of mutation: every block it
// integrated, the delete-set it grew, which clients' block lists it
// touched (for the merge-adjacent pass), and the per-branch events it
// produced for the observer dispatch that follows commit (spec §4.3).
type Transaction struct {
	doc    *Doc
	Origin any

	ds              block.DeleteSet
	touchedClients  map[block.ClientID]bool
	touchedBranches map[*block.Branch]bool
	events          map[*block.Branch][]Event
	newBlocks       []*block.Block
}

func newTransaction(doc *Doc, origin any) *Transaction {
	return &Transaction{
		doc:             doc,
		Origin:          origin,
		ds:              block.NewDeleteSet(),
		touchedClients:  make(map[block.ClientID]bool),
		touchedBranches: make(map[*block.Branch]bool),
		events:          make(map[*block.Branch][]Event),
	}
}

// integrate runs b through the doc's Integrator and records its client as
// touched for this commit's merge-adjacent pass (spec §4.3 step 3).
func (tx *Transaction) integrate(b *block.Block) error {
	if _, err := tx.doc.integrator.Integrate(b); err != nil {
		return err
	}
	tx.touchedClients[b.ID.Client] = true
	tx.newBlocks = append(tx.newBlocks, b)
	return nil
}

// delete marks branch's index range [from, from+n) deleted and folds the
// touched spans into the transaction's delete-set (spec §4.2/§4.3).
func (tx *Transaction) delete(branch *block.Branch, from, n int) ([]block.Range, error) {
	touched, err := tx.doc.store.Delete(branch, from, n)
	if err != nil {
		return nil, err
	}
	for _, r := range touched {
		tx.ds.Add(r.ID(), r.Len())
		tx.touchedClients[r.Client] = true
	}
	tx.touchedBranches[branch] = true
	return touched, nil
}

// recordEvent appends ev to branch's event batch for this commit and marks
// branch touched so the commit's dispatch pass visits it.
func (tx *Transaction) recordEvent(branch *block.Branch, ev Event) {
	tx.touchedBranches[branch] = true
	ev.Origin = tx.Origin
	tx.events[branch] = append(tx.events[branch], ev)
}
