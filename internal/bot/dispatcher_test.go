package bot

import (
	"errors"
	"math"
	"testing"
	"time"

	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
)

// recordingDelegate запоминает полученные события
type recordingDelegate struct {
	name   string
	events []exchange.OrderEvent
	panics bool
}

func (d *recordingDelegate) Name() string { return d.name }
func (d *recordingDelegate) OnOrderEvent(ev exchange.OrderEvent) {
	d.events = append(d.events, ev)
	if d.panics {
		panic("delegate boom")
	}
}

func newDispatcherFixture(t *testing.T) (*OrderTracker, *EventDispatcher) {
	t.Helper()
	tr := NewOrderTracker()
	if err := tr.StartTracking(testOrder("o1", "paper", "BTC-USDT")); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	return tr, NewEventDispatcher(tr, nil)
}

func ev(typ, id string) exchange.OrderEvent {
	return exchange.OrderEvent{
		Type:          typ,
		Market:        "paper",
		ClientOrderID: id,
		TradingPair:   "BTC-USDT",
		Timestamp:     time.Now(),
	}
}

func TestDispatcher_Bookkeeping(t *testing.T) {
	tr, d := newDispatcherFixture(t)

	if !d.Dispatch(ev(exchange.EventOrderCreated, "o1")) {
		t.Fatal("created event must be handled")
	}
	o, _ := tr.GetOrder("o1")
	if o.Status != models.OrderStatusOpen {
		t.Errorf("status = %s, want OPEN", o.Status)
	}

	fill := ev(exchange.EventOrderFilled, "o1")
	fill.FilledAmount = 0.4
	d.Dispatch(fill)
	o, _ = tr.GetOrder("o1")
	if o.Status != models.OrderStatusPartiallyFilled || math.Abs(o.FilledQuantity-0.4) > 1e-9 {
		t.Errorf("after fill: status=%s filled=%v", o.Status, o.FilledQuantity)
	}

	d.Dispatch(ev(exchange.EventBuyOrderCompleted, "o1"))
	// Терминальное событие снимает ордер с учёта
	if _, ok := tr.GetOrder("o1"); ok {
		t.Error("order must be untracked after terminal event")
	}
}

// Повторное терминальное событие - идемпотентный no-op
func TestDispatcher_TerminalIdempotence(t *testing.T) {
	_, d := newDispatcherFixture(t)
	del := &recordingDelegate{name: "rec"}
	if err := d.AddDelegate(del); err != nil {
		t.Fatalf("AddDelegate: %v", err)
	}

	if !d.Dispatch(ev(exchange.EventOrderCanceled, "o1")) {
		t.Fatal("first terminal event must be handled")
	}
	if d.Dispatch(ev(exchange.EventOrderCanceled, "o1")) {
		t.Error("second terminal event must be dropped as stale")
	}
	if len(del.events) != 1 {
		t.Errorf("delegate saw %d events, want 1", len(del.events))
	}
}

// created, пришедший после fill, не понижает статус записи
func TestDispatcher_OutOfOrderCreated(t *testing.T) {
	tr, d := newDispatcherFixture(t)

	fill := ev(exchange.EventOrderFilled, "o1")
	fill.FilledAmount = 0.5
	d.Dispatch(fill)
	d.Dispatch(ev(exchange.EventOrderCreated, "o1"))

	o, _ := tr.GetOrder("o1")
	if o.Status != models.OrderStatusPartiallyFilled {
		t.Errorf("status = %s, late created must not downgrade", o.Status)
	}
}

// Паника делегата не мешает учёту и другим делегатам
func TestDispatcher_DelegatePanicIsolated(t *testing.T) {
	tr, d := newDispatcherFixture(t)
	bad := &recordingDelegate{name: "bad", panics: true}
	good := &recordingDelegate{name: "good"}
	d.AddDelegate(bad)
	d.AddDelegate(good)

	fill := ev(exchange.EventOrderFilled, "o1")
	fill.FilledAmount = 0.3
	d.Dispatch(fill)

	// Фаза 1 выполнена несмотря на панику делегата
	o, _ := tr.GetOrder("o1")
	if math.Abs(o.FilledQuantity-0.3) > 1e-9 {
		t.Errorf("bookkeeping skipped: filled=%v", o.FilledQuantity)
	}
	// Второй делегат получил событие
	if len(good.events) != 1 {
		t.Errorf("good delegate saw %d events, want 1", len(good.events))
	}
}

// Мутация делегатов во время диспетчеризации запрещена
func TestDispatcher_DelegateLock(t *testing.T) {
	_, d := newDispatcherFixture(t)

	var lockErr error
	reentrant := &funcDelegate{name: "reentrant", fn: func(exchange.OrderEvent) {
		lockErr = d.AddDelegate(&recordingDelegate{name: "late"})
	}}
	d.AddDelegate(reentrant)

	d.Dispatch(ev(exchange.EventOrderCreated, "o1"))

	var illegal *IllegalOperationError
	if !errors.As(lockErr, &illegal) {
		t.Fatalf("err = %v, want *IllegalOperationError", lockErr)
	}

	// После диспетчеризации мутация снова разрешена
	if err := d.AddDelegate(&recordingDelegate{name: "late"}); err != nil {
		t.Errorf("AddDelegate after dispatch: %v", err)
	}
	if err := d.RemoveDelegate("late"); err != nil {
		t.Errorf("RemoveDelegate: %v", err)
	}
}

type funcDelegate struct {
	name string
	fn   func(exchange.OrderEvent)
}

func (d *funcDelegate) Name() string { return d.name }

func (d *funcDelegate) OnOrderEvent(ev exchange.OrderEvent) { d.fn(ev) }

func TestDispatcher_UnknownOrderDropped(t *testing.T) {
	_, d := newDispatcherFixture(t)
	if d.Dispatch(ev(exchange.EventOrderFilled, "ghost")) {
		t.Error("event for unknown order must be dropped")
	}
}

// Учёт и снапшоты ActiveOrders работают из разных горутин: API-слой
// читает трекер, пока диспетчер применяет события (ловится под -race)
func TestDispatcher_BookkeepingConcurrentWithSnapshots(t *testing.T) {
	tr := NewOrderTracker()
	order := testOrder("o1", "paper", "BTC-USDT")
	order.Quantity = 10
	if err := tr.StartTracking(order); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	d := NewEventDispatcher(tr, nil)

	const fills = 1000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < fills; i++ {
			for _, o := range tr.ActiveOrders() {
				_ = o.FilledQuantity
			}
		}
	}()

	for i := 0; i < fills; i++ {
		fill := ev(exchange.EventOrderFilled, "o1")
		fill.FilledAmount = 0.001
		d.Dispatch(fill)
	}
	<-done

	o, _ := tr.GetOrder("o1")
	if math.Abs(o.FilledQuantity-fills*0.001) > 1e-6 {
		t.Errorf("filled = %v, want %v (no lost updates)", o.FilledQuantity, fills*0.001)
	}
}
