package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"collabDelta/backend/internal/ot/delta"
)

func testEvent(rev uint64) DocOpEvent {
	return newDocOpEvent("doc-1", AppliedOp{
		OperationID: fmt.Sprintf("op-%d", rev),
		Revision:    rev,
		ClientID:    "c1",
		Ops:         delta.New().Insert("hi", delta.Attrs("bold", true)),
		AppliedAt:   time.Unix(0, 0).UTC(),
	}, rev)
}

func TestKafkaDispatcherSends(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var evt struct {
			EventType string          `json:"eventType"`
			Revision  uint64          `json:"revision"`
			Ops       json.RawMessage `json:"ops"`
		}
		if err := json.Unmarshal(val, &evt); err != nil {
			return err
		}
		if evt.EventType != EventOpApplied || evt.Revision != 1 {
			return fmt.Errorf("unexpected event %+v", evt)
		}
		if string(evt.Ops) != `[{"insert":"hi","attributes":{"bold":true}}]` {
			return fmt.Errorf("unexpected ops %s", evt.Ops)
		}
		return nil
	})

	d := NewKafkaDispatcher(producer, "doc-ops", NewSemaphoreControl(1), nil, KafkaDispatcherOptions{QueueSize: 4, Workers: 1})
	if err := d.Enqueue(context.Background(), testEvent(1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d.Close()
	if err := producer.Close(); err != nil {
		t.Fatalf("producer close: %v", err)
	}
}

func TestKafkaDispatcherRetriesThenDrops(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	// 第二个事件第一次就成功
	producer.ExpectSendMessageAndSucceed()

	d := NewKafkaDispatcher(producer, "doc-ops", nil, nil, KafkaDispatcherOptions{
		QueueSize:   4,
		Workers:     1,
		MaxRetry:    1,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  time.Millisecond,
	})
	for rev := uint64(1); rev <= 2; rev++ {
		if err := d.Enqueue(context.Background(), testEvent(rev)); err != nil {
			t.Fatalf("enqueue %d: %v", rev, err)
		}
	}
	d.Close()
	if err := producer.Close(); err != nil {
		t.Fatalf("producer close: %v", err)
	}
}

func TestKafkaDispatcherClosed(t *testing.T) {
	d := NewKafkaDispatcher(nil, "", nil, nil, KafkaDispatcherOptions{QueueSize: 1})
	d.Close()
	// 重复关闭不 panic
	d.Close()
	if err := d.Enqueue(context.Background(), testEvent(1)); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("want ErrDispatcherClosed, got %v", err)
	}
}

func TestKafkaDispatcherQueueFull(t *testing.T) {
	sem := NewSemaphoreControl(1)
	// 占住唯一的名额，worker 会卡在 Acquire
	if err := sem.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	d := NewKafkaDispatcher(nil, "", sem, nil, KafkaDispatcherOptions{QueueSize: 1, Workers: 1})
	defer func() {
		_ = sem.Release()
		d.Close()
	}()

	ctx := context.Background()
	// 第一个被 worker 取走，第二个占满队列
	if err := d.Enqueue(ctx, testEvent(1)); err != nil {
		t.Fatal(err)
	}
	if err := d.Enqueue(ctx, testEvent(2)); err != nil {
		t.Fatal(err)
	}

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	var err error
	for i := 0; i < 2 && err == nil; i++ {
		err = d.Enqueue(tctx, testEvent(uint64(3+i)))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}

func TestSemaphoreControl(t *testing.T) {
	s := NewSemaphoreControl(1)
	if err := s.Release(); !errors.Is(err, ErrSemaphoreNotAcquired) {
		t.Fatalf("release without acquire: %v", err)
	}
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.InUse() != 1 {
		t.Fatalf("in use = %d", s.InUse())
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}
	if err := s.Release(); err != nil {
		t.Fatal(err)
	}
}
