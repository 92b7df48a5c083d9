// Package ycrdt implements the document-level API over package block's
// store and YATA integrator: transactions, the shared-type handles (Array,
// Map, Text, Xml*), weak links, and the observer graph (spec §§4.3-4.7,
// §6, §9).
package ycrdt

import (
	"sync"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/Horusiath/y-crdt/block"
	"github.com/Horusiath/y-crdt/codec"
	"github.com/Horusiath/y-crdt/yerr"
)

// Doc is a single collaborative document: one block store, one client id,
// and the registries (collections, subdocs, subscriptions) that turn the
// low-level block/YATA machinery into the host-facing API of spec §6.
type Doc struct {
	mu sync.Mutex

	store      *block.Store
	integrator *block.Integrator

	clientID     block.ClientID
	guid         string
	collectionID string
	gc           bool
	autoLoad     bool
	shouldLoad   bool
	logger       zerolog.Logger

	tx                 *Transaction
	inObserverDispatch bool

	collections map[*block.Branch]*collection

	// linkEdges maps a source branch (the thing being quoted) to the
	// branches that quote it through a WeakLink, so deep-observe
	// propagation can bubble across links as well as up the parent chain
	// (spec §9's "deep observe crosses weak links").
	linkEdges map[*block.Branch][]*block.Branch

	subdocs map[string]*Doc

	updateSubs   map[xid.ID]func(update []byte, origin any)
	updateV2Subs map[xid.ID]func(update []byte, origin any)
	afterTxSubs  map[xid.ID]func(tx *Transaction)
	destroySubs  map[xid.ID]func()
}

// NewDoc constructs a Doc from opts, defaulting ClientID/Guid/Logger per
// spec §6.
func NewDoc(opts Options) *Doc {
	store := block.NewStore()
	return &Doc{
		store:        store,
		integrator:   block.NewIntegrator(store),
		clientID:     block.ClientID(resolveClientID(opts)),
		guid:         resolveGuid(opts),
		collectionID: opts.CollectionID,
		gc:           opts.GC,
		autoLoad:     opts.AutoLoad,
		shouldLoad:   opts.ShouldLoad,
		logger:       resolveLogger(opts),
		collections:  make(map[*block.Branch]*collection),
		linkEdges:    make(map[*block.Branch][]*block.Branch),
		subdocs:      make(map[string]*Doc),
		updateSubs:   make(map[xid.ID]func([]byte, any)),
		updateV2Subs: make(map[xid.ID]func([]byte, any)),
		afterTxSubs:  make(map[xid.ID]func(*Transaction)),
		destroySubs:  make(map[xid.ID]func()),
	}
}

// ClientID returns the replica id this Doc writes new blocks under.
func (d *Doc) ClientID() uint64 { return uint64(d.clientID) }

// Guid returns the document's globally unique id.
func (d *Doc) Guid() string { return d.guid }

// StateVector returns the store's current state vector (spec §4.5).
func (d *Doc) StateVector() block.StateVector { return d.store.StateVector() }

func (d *Doc) registerCollection(branch *block.Branch, c *collection) {
	d.mu.Lock()
	d.collections[branch] = c
	d.mu.Unlock()
}

func (d *Doc) addLinkEdge(source, owner *block.Branch) {
	d.mu.Lock()
	d.linkEdges[source] = append(d.linkEdges[source], owner)
	d.mu.Unlock()
}

// resolveParentRef mirrors the Integrator's own parent resolution, for
// code (deep-observe bubbling, weak-link dereferencing) that needs to walk
// from a ParentRef to a Branch without going through an Integrate call.
func (d *Doc) resolveParentRef(ref block.ParentRef) (*block.Branch, bool) {
	if ref.TypeHeader.HasValue() {
		return d.store.TypeBranch(ref.TypeHeader)
	}
	if ref.RootName == "" {
		return nil, false
	}
	return d.store.Root(ref.RootName)
}

// parentBranch returns the branch containing the Type block that
// introduced b, or nil if b is a root (roots have no parent).
func (d *Doc) parentBranch(b *block.Branch) *block.Branch {
	if !b.HeaderID.HasValue() {
		return nil
	}
	header, err := d.store.GetItem(b.HeaderID)
	if err != nil {
		return nil
	}
	parent, ok := d.resolveParentRef(header.Parent)
	if !ok {
		return nil
	}
	return parent
}

// Transact runs fn inside a transaction, committing it (running the
// six-step commit algorithm of spec §4.3) once fn returns without error. A
// nested Transact call on the same goroutine reuses the outer, still-open
// transaction rather than starting a new one; a call from inside this
// commit's own observer dispatch is genuine re-entrancy and fails with
// yerr.TransactionReentry instead of deadlocking or corrupting state.
func (d *Doc) Transact(origin any, fn func(tx *Transaction) error) error {
	d.mu.Lock()
	if d.inObserverDispatch {
		d.mu.Unlock()
		return yerr.New(yerr.TransactionReentry, "cannot start a transaction from inside observer dispatch")
	}
	if d.tx != nil {
		tx := d.tx
		d.mu.Unlock()
		return fn(tx)
	}
	tx := newTransaction(d, origin)
	d.tx = tx
	d.mu.Unlock()

	fnErr := fn(tx)

	d.mu.Lock()
	d.tx = nil
	d.mu.Unlock()

	if fnErr != nil {
		return fnErr
	}
	return d.commit(tx)
}

// commit runs spec §4.3's six steps: coalesce the delete-set, mark deleted,
// merge adjacent blocks over touched clients, dispatch events to shallow
// then deep observers (sharing one per-commit visited-set for the deep
// pass), emit after-transaction, and finally encode+dispatch an update if
// anyone is subscribed.
func (d *Doc) commit(tx *Transaction) error {
	tx.ds.Coalesce()
	d.store.ApplyDeleteSet(tx.ds)

	for client := range tx.touchedClients {
		d.store.MergeClientAdjacent(client)
	}

	d.mu.Lock()
	d.inObserverDispatch = true
	d.mu.Unlock()

	for branch := range tx.touchedBranches {
		if c := d.collections[branch]; c != nil {
			for _, ev := range tx.events[branch] {
				c.fireShallow(ev)
			}
		}
	}
	visited := make(map[*block.Branch]bool)
	for branch := range tx.touchedBranches {
		d.bubbleDeep(branch, tx.events[branch], visited)
	}

	for _, fn := range d.afterTxSubs {
		d.callAfterTransaction(fn, tx)
	}

	d.mu.Lock()
	d.inObserverDispatch = false
	d.mu.Unlock()

	d.dispatchUpdate(tx)
	return nil
}

func (d *Doc) callAfterTransaction(fn func(*Transaction), tx *Transaction) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn().Interface("panic", r).Msg("after-transaction callback panicked")
		}
	}()
	fn(tx)
}

// bubbleDeep fires branch's deep observers (if any), then recurses into
// its parent branch and every branch that quotes it through a weak link,
// using visited to dedupe across diamond-shaped propagation graphs (spec
// §9 "the propagator maintains a visited-set per commit").
func (d *Doc) bubbleDeep(branch *block.Branch, events []Event, visited map[*block.Branch]bool) {
	if branch == nil || visited[branch] {
		return
	}
	visited[branch] = true
	if c := d.collections[branch]; c != nil {
		c.fireDeep(events)
	}
	d.bubbleDeep(d.parentBranch(branch), events, visited)
	for _, owner := range d.linkEdges[branch] {
		d.bubbleDeep(owner, events, visited)
	}
}

func (d *Doc) dispatchUpdate(tx *Transaction) {
	d.mu.Lock()
	hasV1 := len(d.updateSubs) > 0
	hasV2 := len(d.updateV2Subs) > 0
	d.mu.Unlock()
	if !hasV1 && !hasV2 {
		return
	}
	if len(tx.newBlocks) == 0 && len(tx.ds) == 0 {
		return
	}
	if hasV1 {
		data, err := codec.EncodeUpdateV1(tx.newBlocks, tx.ds)
		if err != nil {
			d.logger.Debug().Err(err).Msg("failed to encode v1 update for dispatch")
		} else {
			for _, fn := range d.updateSubs {
				fn(data, tx.Origin)
			}
		}
	}
	if hasV2 {
		data, err := codec.EncodeUpdateV2(tx.newBlocks, tx.ds)
		if err != nil {
			d.logger.Debug().Err(err).Msg("failed to encode v2 update for dispatch")
		} else {
			for _, fn := range d.updateV2Subs {
				fn(data, tx.Origin)
			}
		}
	}
}

// OnUpdate subscribes fn to every future commit's v1-encoded update.
func (d *Doc) OnUpdate(fn func(update []byte, origin any)) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, sub := newSubscription(func(id xid.ID) {
		d.mu.Lock()
		delete(d.updateSubs, id)
		d.mu.Unlock()
	})
	d.updateSubs[id] = fn
	return sub
}

// OnUpdateV2 subscribes fn to every future commit's v2-encoded update.
func (d *Doc) OnUpdateV2(fn func(update []byte, origin any)) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, sub := newSubscription(func(id xid.ID) {
		d.mu.Lock()
		delete(d.updateV2Subs, id)
		d.mu.Unlock()
	})
	d.updateV2Subs[id] = fn
	return sub
}

// OnAfterTransaction subscribes fn to run once per commit, after observer
// dispatch and before the update is encoded.
func (d *Doc) OnAfterTransaction(fn func(tx *Transaction)) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, sub := newSubscription(func(id xid.ID) {
		d.mu.Lock()
		delete(d.afterTxSubs, id)
		d.mu.Unlock()
	})
	d.afterTxSubs[id] = fn
	return sub
}

// OnDestroy subscribes fn to run once, when Destroy is called.
func (d *Doc) OnDestroy(fn func()) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, sub := newSubscription(func(id xid.ID) {
		d.mu.Lock()
		delete(d.destroySubs, id)
		d.mu.Unlock()
	})
	d.destroySubs[id] = fn
	return sub
}

// Destroy fires every OnDestroy callback. Subdocs registered through
// LoadSubdoc stay registered.
func (d *Doc) Destroy() {
	d.mu.Lock()
	subs := make([]func(), 0, len(d.destroySubs))
	for _, fn := range d.destroySubs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Subdocs returns the subdocuments currently registered under this Doc.
// Subdoc attach/detach tracking here is a simplified registry keyed by
// guid rather than a full diff against SubDoc content blocks scattered
// through the store; see DESIGN.md.
func (d *Doc) Subdocs() map[string]*Doc {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]*Doc, len(d.subdocs))
	for k, v := range d.subdocs {
		out[k] = v
	}
	return out
}

// LoadSubdoc creates (or returns, if already registered) a child Doc for
// guid, tracked under this Doc's subdoc registry.
func (d *Doc) LoadSubdoc(guid string, opts Options) *Doc {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.subdocs[guid]; ok {
		return existing
	}
	opts.Guid = guid
	child := NewDoc(opts)
	d.subdocs[guid] = child
	return child
}

// GetArray returns the named root Array, creating it on first use.
func GetArray[T any](d *Doc, name string) (*Array[T], error) {
	branch, err := d.store.GetOrCreateBranch(name, block.KindArray)
	if err != nil {
		return nil, err
	}
	col := newCollection()
	if err := col.attach(d, branch, name); err != nil {
		return nil, err
	}
	return &Array[T]{col: col}, nil
}

// GetMap returns the named root Map, creating it on first use.
func GetMap[T any](d *Doc, name string) (*Map[T], error) {
	branch, err := d.store.GetOrCreateBranch(name, block.KindMap)
	if err != nil {
		return nil, err
	}
	col := newCollection()
	if err := col.attach(d, branch, name); err != nil {
		return nil, err
	}
	return &Map[T]{col: col}, nil
}

// GetText returns the named root Text, creating it on first use.
func GetText(d *Doc, name string) (*Text, error) {
	branch, err := d.store.GetOrCreateBranch(name, block.KindText)
	if err != nil {
		return nil, err
	}
	col := newCollection()
	if err := col.attach(d, branch, name); err != nil {
		return nil, err
	}
	return &Text{col: col}, nil
}

// GetXmlFragment returns the named root XmlFragment, creating it on first
// use.
func GetXmlFragment(d *Doc, name string) (*XmlFragment, error) {
	branch, err := d.store.GetOrCreateBranch(name, block.KindXmlFragment)
	if err != nil {
		return nil, err
	}
	col := newCollection()
	if err := col.attach(d, branch, name); err != nil {
		return nil, err
	}
	return &XmlFragment{col: col}, nil
}
