package timeslot

import "sort"

// Overlay holds a viewer's own joins and leaves that the store has not yet
// echoed back. It is merged over the last authoritative member set so the
// viewer sees their change immediately.
//
// Lifecycle of an entry: Set when the write is issued; Drop if the write
// fails; Ack when it succeeds; removed by the first Reconcile of its slot
// after Ack. An entry never survives more than one reconciliation.
//
// Overlay is not safe for concurrent use; its owner serializes access.
type Overlay struct {
	seq     uint64
	entries map[string]map[string]*pendingOp
}

type pendingOp struct {
	joined bool
	acked  bool
	token  uint64
}

// NewOverlay returns an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{entries: make(map[string]map[string]*pendingOp)}
}

// Set records a pending join (joined=true) or leave and returns a token
// identifying this operation.
func (o *Overlay) Set(slot, userID string, joined bool) uint64 {
	o.seq++
	bySlot, ok := o.entries[slot]
	if !ok {
		bySlot = make(map[string]*pendingOp)
		o.entries[slot] = bySlot
	}
	bySlot[userID] = &pendingOp{joined: joined, token: o.seq}
	return o.seq
}

// Ack marks the operation identified by token as applied by the store.
// Stale tokens (superseded by a newer Set) are ignored.
func (o *Overlay) Ack(slot, userID string, token uint64) {
	if op := o.lookup(slot, userID); op != nil && op.token == token {
		op.acked = true
	}
}

// Drop discards the operation identified by token, e.g. after its write
// failed.
func (o *Overlay) Drop(slot, userID string, token uint64) {
	if op := o.lookup(slot, userID); op != nil && op.token == token {
		o.remove(slot, userID)
	}
}

// Reconcile is called when an authoritative snapshot of slot arrives; it
// discards every acknowledged entry of that slot.
func (o *Overlay) Reconcile(slot string) {
	for userID, op := range o.entries[slot] {
		if op.acked {
			o.remove(slot, userID)
		}
	}
}

// Apply merges the pending entries of slot over authoritative and returns
// the sorted result. authoritative is not modified.
func (o *Overlay) Apply(slot string, authoritative []string) []string {
	set := make(map[string]bool, len(authoritative))
	for _, id := range authoritative {
		set[id] = true
	}
	for userID, op := range o.entries[slot] {
		if op.joined {
			set[userID] = true
		} else {
			delete(set, userID)
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Pending reports the pending state of userID in slot, if any.
func (o *Overlay) Pending(slot, userID string) (joined, ok bool) {
	op := o.lookup(slot, userID)
	if op == nil {
		return false, false
	}
	return op.joined, true
}

// Len returns the number of pending entries.
func (o *Overlay) Len() int {
	n := 0
	for _, bySlot := range o.entries {
		n += len(bySlot)
	}
	return n
}

func (o *Overlay) lookup(slot, userID string) *pendingOp {
	return o.entries[slot][userID]
}

func (o *Overlay) remove(slot, userID string) {
	delete(o.entries[slot], userID)
	if len(o.entries[slot]) == 0 {
		delete(o.entries, slot)
	}
}
