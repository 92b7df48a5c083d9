package ycrdt

import (
	"github.com/Horusiath/y-crdt/block"
	"github.com/Horusiath/y-crdt/codec"
)

// ApplyUpdate decodes data (in the given codec version) and integrates
// every block it carries into doc, inside a single transaction, applying
// the decoded delete-set last (spec §4.5 "apply_update"). Re-applying an
// update is a no-op for the blocks the store already holds: a decoded
// block whose first id Store.GetItem already resolves is skipped before
// integration, and re-adding its delete-set ranges is idempotent.
func ApplyUpdate(doc *Doc, data []byte, version codec.Version) error {
	blocks, ds, err := codec.DecodeUpdate(data, version)
	if err != nil {
		return err
	}
	return doc.Transact(nil, func(tx *Transaction) error {
		for _, b := range blocks {
			if _, err := doc.store.GetItem(b.ID); err == nil {
				// Already have this clock locally; skip re-integrating it
				// but still let its delete-set entry (if any) apply below.
				continue
			}
			if err := tx.integrate(b); err != nil {
				return err
			}
		}
		for client, set := range ds {
			for _, r := range set.Ranges() {
				tx.ds.Add(block.ID{Client: client, Clock: r.Start}, r.Len())
			}
			tx.touchedClients[client] = true
		}
		return nil
	})
}
