// Package store provides a generic, thread-safe, in-memory table for the
// pizza twin. Rows are keyed by auto-incrementing integer IDs, listed in
// insertion order, and paginated the way the JWT Pizza service pages results.
package store

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Table is a thread-safe in-memory table of rows of type T.
type Table[T any] struct {
	mu     sync.RWMutex
	rows   map[int64]T
	order  []int64
	nextID int64
	first  int64
}

// New creates a table whose first generated ID is firstID (1 when <= 0).
func New[T any](firstID int64) *Table[T] {
	if firstID <= 0 {
		firstID = 1
	}
	return &Table[T]{
		rows:   make(map[int64]T),
		nextID: firstID,
		first:  firstID,
	}
}

// Insert assigns the next ID, lets build fill the row with it, and stores it.
func (t *Table[T]) Insert(build func(id int64) T) T {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	row := build(id)
	t.rows[id] = row
	t.order = append(t.order, id)
	return row
}

// Put stores a row under an explicit ID. Existing rows keep their position.
// The ID counter is advanced past id so later inserts never collide.
func (t *Table[T]) Put(id int64, row T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = row
	if id >= t.nextID {
		t.nextID = id + 1
	}
}

// Get returns the row for id.
func (t *Table[T]) Get(id int64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	return row, ok
}

// Update applies fn to the stored row under the write lock.
// It reports false when id does not exist.
func (t *Table[T]) Update(id int64, fn func(row T) T) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, false
	}
	row = fn(row)
	t.rows[id] = row
	return row, true
}

// Delete removes a row. Returns true if the row existed.
func (t *Table[T]) Delete(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.rows[id]; !exists {
		return false
	}
	delete(t.rows, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns all rows in insertion order.
func (t *Table[T]) List() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rows[id])
	}
	return out
}

// Find returns the first row, in insertion order, that satisfies pred.
func (t *Table[T]) Find(pred func(row T) bool) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range t.order {
		if pred(t.rows[id]) {
			return t.rows[id], true
		}
	}
	var zero T
	return zero, false
}

// Filter returns rows that satisfy pred, in insertion order.
func (t *Table[T]) Filter(pred func(row T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []T
	for _, id := range t.order {
		if pred(t.rows[id]) {
			out = append(out, t.rows[id])
		}
	}
	return out
}

// Count returns the number of rows.
func (t *Table[T]) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Page is one page of a listing. More is true when later pages exist.
type Page[T any] struct {
	Rows []T `json:"rows"`
	More bool `json:"more"`
}

// Paginate returns page number page (0-based) of size limit from rows.
// A limit <= 0 returns everything.
func Paginate[T any](rows []T, page, limit int) Page[T] {
	if limit <= 0 {
		return Page[T]{Rows: rows}
	}
	if page < 0 {
		page = 0
	}
	start := page * limit
	if start >= len(rows) {
		return Page[T]{Rows: []T{}}
	}
	end := start + limit
	more := end < len(rows)
	if end > len(rows) {
		end = len(rows)
	}
	return Page[T]{Rows: rows[start:end], More: more}
}

// Reset clears all rows and restarts the ID counter.
func (t *Table[T]) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = make(map[int64]T)
	t.order = nil
	t.nextID = t.first
}

// Snapshot returns all rows keyed by decimal ID, ready for JSON encoding.
func (t *Table[T]) Snapshot() map[string]T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]T, len(t.rows))
	for id, row := range t.rows {
		out[strconv.FormatInt(id, 10)] = row
	}
	return out
}

// LoadSnapshot replaces all rows. IDs are ordered numerically and the
// counter continues after the largest one.
func (t *Table[T]) LoadSnapshot(snapshot map[string]T) error {
	ids := make([]int64, 0, len(snapshot))
	rows := make(map[int64]T, len(snapshot))
	for k, row := range snapshot {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		rows[id] = row
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = rows
	t.order = ids
	t.nextID = t.first
	if n := len(ids); n > 0 && ids[n-1] >= t.nextID {
		t.nextID = ids[n-1] + 1
	}
	return nil
}

// MarshalJSON serializes the table as its snapshot.
func (t *Table[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}

// UnmarshalJSON replaces the table contents from a snapshot.
func (t *Table[T]) UnmarshalJSON(data []byte) error {
	var snapshot map[string]T
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	return t.LoadSnapshot(snapshot)
}

// Clock is a simulated clock; order timestamps come from it so tests can
// move time forward.
type Clock struct {
	mu     sync.RWMutex
	offset time.Duration
}

// NewClock creates a clock with no offset.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the simulated time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// Reset clears the offset.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
}

// Offset returns the current offset.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}
