package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/remote"
	"github.com/hitoshi/cartsync/internal/repository"
)

// --- インメモリのリポジトリ ---

type memoryOrderRepo struct {
	mu     sync.Mutex
	orders map[int64]*model.Order
	meta   map[int64]map[string]string
	notes  map[int64][]string
}

func newMemoryOrderRepo(orders ...*model.Order) *memoryOrderRepo {
	r := &memoryOrderRepo{
		orders: make(map[int64]*model.Order),
		meta:   make(map[int64]map[string]string),
		notes:  make(map[int64][]string),
	}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *memoryOrderRepo) FindByID(_ context.Context, id int64) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *memoryOrderRepo) Save(_ context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
	return nil
}

func (r *memoryOrderRepo) UpdateStatus(_ context.Context, id int64, status model.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", model.ErrOrderNotFound, id)
	}
	o.Status = status
	return nil
}

func (r *memoryOrderRepo) MarkPaid(_ context.Context, id int64, paidAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", model.ErrOrderNotFound, id)
	}
	if o.DatePaid == nil {
		o.DatePaid = &paidAt
	}
	return nil
}

func (r *memoryOrderRepo) GetMeta(_ context.Context, orderID int64, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta[orderID][key], nil
}

func (r *memoryOrderRepo) ListMeta(_ context.Context, orderID int64) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.meta[orderID]))
	for k, v := range r.meta[orderID] {
		out[k] = v
	}
	return out, nil
}

func (r *memoryOrderRepo) SetMeta(_ context.Context, orderID int64, values map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meta[orderID] == nil {
		r.meta[orderID] = make(map[string]string)
	}
	for k, v := range values {
		r.meta[orderID][k] = v
	}
	return nil
}

func (r *memoryOrderRepo) DeleteMeta(_ context.Context, orderID int64, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.meta[orderID], k)
	}
	return nil
}

func (r *memoryOrderRepo) AddNote(_ context.Context, orderID int64, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes[orderID] = append(r.notes[orderID], note)
	return nil
}

func (r *memoryOrderRepo) HasNote(_ context.Context, orderID int64, note string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notes[orderID] {
		if n == note {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryOrderRepo) metaValue(orderID int64, key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.meta[orderID][key]
	return v, ok
}

// memoryKV はSessionStoreとCustomerMetaRepositoryで共用するキー・バリューストア。
type memoryKV[K comparable] struct {
	mu   sync.Mutex
	data map[K]map[string]string
}

func newMemoryKV[K comparable]() *memoryKV[K] {
	return &memoryKV[K]{data: make(map[K]map[string]string)}
}

func (m *memoryKV[K]) Load(_ context.Context, id K) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.data[id]))
	for k, v := range m.data[id] {
		out[k] = v
	}
	return out, nil
}

func (m *memoryKV[K]) Set(_ context.Context, id K, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[id] == nil {
		m.data[id] = make(map[string]string)
	}
	for k, v := range values {
		m.data[id][k] = v
	}
	return nil
}

func (m *memoryKV[K]) Delete(_ context.Context, id K, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data[id], k)
	}
	return nil
}

func (m *memoryKV[K]) get(id K, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[id][key]
}

var (
	_ repository.OrderRepository        = (*memoryOrderRepo)(nil)
	_ repository.SessionStore           = (*memoryKV[string])(nil)
	_ repository.CustomerMetaRepository = (*memoryKV[int64])(nil)
)

// --- 送信・スケジューラのフェイク ---

type transportCall struct {
	appID   string
	blob    string
	headers map[string]string
}

type fakeTransport struct {
	mu     sync.Mutex
	calls  []transportCall
	result remote.Result
	err    error
}

func (f *fakeTransport) SyncCartDetails(_ context.Context, appID, blob string, headers map[string]string) (remote.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transportCall{appID: appID, blob: blob, headers: headers})
	if f.err != nil {
		return remote.Result{Class: remote.ClassTransient}, f.err
	}
	if f.result.Class == "" {
		return remote.Result{StatusCode: 200, Class: remote.ClassOK}, nil
	}
	return f.result, nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeScheduler struct {
	mu       sync.Mutex
	orderIDs []int64
}

func (f *fakeScheduler) ScheduleDeferredSync(_ context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderIDs = append(f.orderIDs, orderID)
	return nil
}
