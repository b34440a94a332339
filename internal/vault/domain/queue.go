package vault

import (
	"time"

	"cosmossdk.io/math"
)

// Queue holds early-exit requests. Ids start at 1 and are never reused.
type Queue struct {
	requests []Request
	byOwner  map[string][]uint64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{byOwner: make(map[string][]uint64)}
}

// Enqueue records a request settling SettlementDelay after now.
// The caller burns shares before or together with this call.
func (q *Queue) Enqueue(owner, receiver string, shares, gross, penalty math.Uint, now time.Time) (Request, error) {
	if !gross.GT(penalty) {
		return Request{}, ErrPenaltyExceedsProceeds.Wrapf("gross %s, penalty %s", gross, penalty)
	}
	request := Request{
		ID:             q.LastID() + 1,
		Owner:          owner,
		Receiver:       receiver,
		Shares:         shares,
		Penalty:        penalty,
		RequestTime:    now,
		SettlementDate: now.Add(SettlementDelay),
	}
	q.requests = append(q.requests, request)
	q.byOwner[owner] = append(q.byOwner[owner], request.ID)
	return request, nil
}

// attach records the tranche pieces consumed by request id.
func (q *Queue) attach(id uint64, pieces []Tranche) {
	q.requests[id-1].Pieces = append([]Tranche(nil), pieces...)
}

// CheckDue returns the request when it can be processed at now.
func (q *Queue) CheckDue(id uint64, now time.Time) (Request, error) {
	request, ok := q.Get(id)
	if !ok || request.Shares.IsZero() {
		return Request{}, ErrUnknownRequest.Wrapf("request %d", id)
	}
	if request.IsProcessed {
		return Request{}, ErrAlreadyProcessed.Wrapf("request %d", id)
	}
	if request.IsCancelled {
		return Request{}, ErrAlreadyCancelled.Wrapf("request %d", id)
	}
	if now.Before(request.SettlementDate) {
		return Request{}, ErrNotYetDue.Wrapf("request %d settles at %s", id, request.SettlementDate.Format(time.RFC3339))
	}
	return request, nil
}

// Process marks a due request processed. gross is the current value of its shares.
func (q *Queue) Process(id uint64, now time.Time, gross math.Uint) (Settlement, error) {
	request, err := q.CheckDue(id, now)
	if err != nil {
		return Settlement{}, err
	}
	if !gross.GT(request.Penalty) {
		return Settlement{}, ErrPenaltyExceedsProceeds.Wrapf("request %d: gross %s, penalty %s", id, gross, request.Penalty)
	}
	q.requests[id-1].IsProcessed = true
	return Settlement{
		RequestID: id,
		Receiver:  request.Receiver,
		Gross:     gross,
		Net:       gross.Sub(request.Penalty),
		Penalty:   request.Penalty,
	}, nil
}

// Cancel marks an open request cancelled and returns it so its shares can be restored.
func (q *Queue) Cancel(id uint64, caller string) (Request, error) {
	request, ok := q.Get(id)
	if !ok || request.Shares.IsZero() {
		return Request{}, ErrUnknownRequest.Wrapf("request %d", id)
	}
	if caller != request.Owner {
		return Request{}, ErrNotOwner.Wrapf("request %d", id)
	}
	if request.IsProcessed {
		return Request{}, ErrAlreadyProcessed.Wrapf("request %d", id)
	}
	if request.IsCancelled {
		return Request{}, ErrAlreadyCancelled.Wrapf("request %d", id)
	}
	q.requests[id-1].IsCancelled = true
	request.IsCancelled = true
	return request, nil
}

// ListDue scans every id from 1 to LastID and returns the open requests due at now.
func (q *Queue) ListDue(now time.Time) []uint64 {
	var due []uint64
	for i := range q.requests {
		if q.requests[i].DueAt(now) {
			due = append(due, q.requests[i].ID)
		}
	}
	return due
}

// ListDueByOwner returns the owner's open requests due at now.
func (q *Queue) ListDueByOwner(owner string, now time.Time) []uint64 {
	var due []uint64
	for _, id := range q.byOwner[owner] {
		if q.requests[id-1].DueAt(now) {
			due = append(due, id)
		}
	}
	return due
}

// Get returns the request with id.
func (q *Queue) Get(id uint64) (Request, bool) {
	if id == 0 || id > uint64(len(q.requests)) {
		return Request{}, false
	}
	return q.requests[id-1], true
}

// ByOwner returns every request created by owner, in id order.
func (q *Queue) ByOwner(owner string) []Request {
	ids := q.byOwner[owner]
	out := make([]Request, 0, len(ids))
	for _, id := range ids {
		out = append(out, q.requests[id-1])
	}
	return out
}

// OpenShares sums the shares of owner's open requests.
func (q *Queue) OpenShares(owner string) math.Uint {
	total := math.ZeroUint()
	for _, id := range q.byOwner[owner] {
		if q.requests[id-1].Open() {
			total = total.Add(q.requests[id-1].Shares)
		}
	}
	return total
}

// PendingShares sums the shares of every open request.
func (q *Queue) PendingShares() math.Uint {
	total := math.ZeroUint()
	for i := range q.requests {
		if q.requests[i].Open() {
			total = total.Add(q.requests[i].Shares)
		}
	}
	return total
}

// Open counts requests that are neither processed nor cancelled.
func (q *Queue) Open() int {
	count := 0
	for i := range q.requests {
		if q.requests[i].Open() {
			count++
		}
	}
	return count
}

// LastID is the highest id allocated so far.
func (q *Queue) LastID() uint64 { return uint64(len(q.requests)) }

// Clone returns a deep copy.
func (q *Queue) Clone() *Queue {
	out := &Queue{
		requests: append([]Request(nil), q.requests...),
		byOwner:  make(map[string][]uint64, len(q.byOwner)),
	}
	for owner, ids := range q.byOwner {
		out.byOwner[owner] = append([]uint64(nil), ids...)
	}
	return out
}

// restore appends a persisted request. Requests must arrive in id order.
func (q *Queue) restore(request Request) error {
	if request.ID != q.LastID()+1 {
		return ErrUnknownRequest.Wrapf("restoring request %d after %d", request.ID, q.LastID())
	}
	q.requests = append(q.requests, request)
	q.byOwner[request.Owner] = append(q.byOwner[request.Owner], request.ID)
	return nil
}
