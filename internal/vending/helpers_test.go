package vending

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// memStore 内存键值存储，测试用
type memStore struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemStore() *memStore {
	return &memStore{m: make(map[string]string)}
}

func (s *memStore) GetString(_ context.Context, key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.m[key]; ok {
		return v
	}
	return def
}

func (s *memStore) GetInt(ctx context.Context, key string, def int) int {
	v := s.GetString(ctx, key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *memStore) GetInt64(ctx context.Context, key string, def int64) int64 {
	v := s.GetString(ctx, key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func (s *memStore) GetBool(ctx context.Context, key string, def bool) bool {
	v := s.GetString(ctx, key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (s *memStore) Set(_ context.Context, key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = fmt.Sprintf("%v", value)
	return nil
}

// fakeActuator 记录型继电器驱动
type fakeActuator struct {
	online       bool
	failActivate bool
	active       map[int]bool
	ops          []string
}

func newFakeActuator() *fakeActuator {
	return &fakeActuator{online: true, active: make(map[int]bool)}
}

func (a *fakeActuator) Activate(slot int) error {
	if a.failActivate {
		return fmt.Errorf("激活失败")
	}
	a.active[slot] = true
	a.ops = append(a.ops, fmt.Sprintf("on:%d", slot))
	return nil
}

func (a *fakeActuator) Deactivate(slot int) error {
	a.active[slot] = false
	a.ops = append(a.ops, fmt.Sprintf("off:%d", slot))
	return nil
}

func (a *fakeActuator) Online() bool { return a.online }
func (a *fakeActuator) Check() bool  { return a.online }
func (a *fakeActuator) AllOff() error {
	a.active = make(map[int]bool)
	a.ops = append(a.ops, "alloff")
	return nil
}

// fakePulse 可编程脉冲源
type fakePulse struct {
	mu        sync.Mutex
	count     int
	lastPulse time.Time
	ignore    time.Time
}

func (p *fakePulse) Edge(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if now.Before(p.ignore) {
		return
	}
	p.count++
	p.lastPulse = now
}

func (p *fakePulse) TakeIfQuiet(now time.Time, quiet time.Duration) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 || now.Sub(p.lastPulse) < quiet {
		return 0, false
	}
	n := p.count
	p.count = 0
	return n, true
}

func (p *fakePulse) Discard() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.count
	p.count = 0
	return n
}

func (p *fakePulse) IgnoreUntil(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ignore = t
}

func (p *fakePulse) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// fakeKeypad 按队列吐键，一次Poll吐一个
type fakeKeypad struct {
	keys []byte
}

func (k *fakeKeypad) Push(keys ...byte) {
	k.keys = append(k.keys, keys...)
}

func (k *fakeKeypad) Poll(time.Time) (byte, bool) {
	if len(k.keys) == 0 {
		return 0, false
	}
	key := k.keys[0]
	k.keys = k.keys[1:]
	return key, true
}

// fakeDisplay 记录全部渲染帧
type fakeDisplay struct {
	views []View
}

func (d *fakeDisplay) Render(v View) {
	d.views = append(d.views, v)
}

func (d *fakeDisplay) last() (View, bool) {
	if len(d.views) == 0 {
		return View{}, false
	}
	return d.views[len(d.views)-1], true
}

// fakeNotifier 记录全部通知事件
type fakeNotifier struct {
	mu     sync.Mutex
	events []NotifyEvent
}

func (n *fakeNotifier) Notify(_ context.Context, ev NotifyEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *fakeNotifier) all() []NotifyEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NotifyEvent, len(n.events))
	copy(out, n.events)
	return out
}

// fakeSales 记录销售落库调用
type fakeSales struct {
	records []struct {
		Slot  int
		Price Cents
		After Cents
	}
}

func (s *fakeSales) Record(_ context.Context, slot int, price, after Cents) error {
	s.records = append(s.records, struct {
		Slot  int
		Price Cents
		After Cents
	}{slot, price, after})
	return nil
}

// fakeInhibit 记录禁止线状态
type fakeInhibit struct {
	on bool
}

func (i *fakeInhibit) SetInhibit(on bool) { i.on = on }

// testDeps 组一套默认依赖
func testDeps() (Deps, *memStore, *fakeActuator, *fakeKeypad, *fakePulse, *fakePulse, *fakeDisplay, *fakeNotifier) {
	store := newMemStore()
	actuator := newFakeActuator()
	keypad := &fakeKeypad{}
	coin := &fakePulse{}
	bill := &fakePulse{}
	display := &fakeDisplay{}
	notifier := &fakeNotifier{}
	deps := Deps{
		Store:    store,
		Sales:    &fakeSales{},
		Actuator: actuator,
		Keypad:   keypad,
		Coin:     coin,
		Bill:     bill,
		Display:  display,
		Notifier: notifier,
		Inhibit:  &fakeInhibit{},
	}
	return deps, store, actuator, keypad, coin, bill, display, notifier
}
