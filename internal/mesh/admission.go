package mesh

import (
	"sync"
	"time"

	"github.com/lingomeet/mesh/internal/domain"
)

// AdmissionQueue is the host-side waiting room. Idempotent per requester id;
// entries disappear when resolved or when the requester leaves presence.
type AdmissionQueue struct {
	mu    sync.Mutex
	byID  map[domain.UserID]domain.JoinRequest
	order []domain.UserID
}

func NewAdmissionQueue() *AdmissionQueue {
	return &AdmissionQueue{byID: make(map[domain.UserID]domain.JoinRequest)}
}

// Add enqueues a request unless the requester already has one pending.
// Reports whether a new entry was created.
func (q *AdmissionQueue) Add(id domain.UserID, name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[id]; ok {
		return false
	}
	q.byID[id] = domain.JoinRequest{RequesterID: id, RequesterName: name, RequestedAt: time.Now()}
	q.order = append(q.order, id)
	return true
}

// Remove drops the pending entry for id, if any.
func (q *AdmissionQueue) Remove(id domain.UserID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[id]; !ok {
		return false
	}
	delete(q.byID, id)
	for i, qid := range q.order {
		if qid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Snapshot returns pending requests in arrival order.
func (q *AdmissionQueue) Snapshot() []domain.JoinRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.JoinRequest, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.byID[id])
	}
	return out
}

// Len reports how many requests are pending.
func (q *AdmissionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}
