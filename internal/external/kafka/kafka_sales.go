package recycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	model "github.com/glkeru/recycle/internal/models"
	"github.com/segmentio/kafka-go"
)

// KafkaSales - чеки весов с пунктов приема.
// Смещение подтверждается после обработки, по порядку внутри партиции
type KafkaSales struct {
	reader  *kafka.Reader
	offsets *offsets
}

func NewSalesReader(brokers []string, topic string, group string) (*KafkaSales, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("config kafka.brokers is not set")
	}
	if topic == "" {
		return nil, fmt.Errorf("config kafka.sales_topic is not set")
	}
	if group == "" {
		return nil, fmt.Errorf("config kafka.group is not set")
	}
	kafkaconfig := kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	}
	return &KafkaSales{kafka.NewReader(kafkaconfig), newOffsets()}, nil
}

// SaleTicket - полученный чек. ID постоянен при повторной доставке
type SaleTicket struct {
	ID    string
	Value []byte
	entry *pending
}

// FetchSale - следующий чек без подтверждения смещения
func (k *KafkaSales) FetchSale(ctx context.Context) (SaleTicket, error) {
	msg, err := k.reader.FetchMessage(ctx)
	if err != nil {
		return SaleTicket{}, err
	}
	return SaleTicket{
		ID:    fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
		Value: msg.Value,
		entry: k.offsets.add(msg),
	}, nil
}

// Commit - чек обработан. Смещение уходит в Kafka, когда обработаны все чеки партиции до него
func (k *KafkaSales) Commit(ctx context.Context, ticket SaleTicket) error {
	k.offsets.mu.Lock()
	defer k.offsets.mu.Unlock()
	msg, ok := k.offsets.done(ticket.entry)
	if !ok {
		return nil
	}
	return k.reader.CommitMessages(ctx, msg)
}

func (k *KafkaSales) CloseReader() {
	k.reader.Close()
}

type pending struct {
	msg  kafka.Message
	done bool
}

// offsets - полученные, но не подтвержденные сообщения по партициям
type offsets struct {
	mu        sync.Mutex
	partition map[int][]*pending
}

func newOffsets() *offsets {
	return &offsets{partition: map[int][]*pending{}}
}

func (o *offsets) add(msg kafka.Message) *pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := &pending{msg: msg}
	o.partition[msg.Partition] = append(o.partition[msg.Partition], p)
	return p
}

// done отмечает сообщение и возвращает последнее из обработанных подряд с начала партиции.
// Вызывается под o.mu
func (o *offsets) done(p *pending) (kafka.Message, bool) {
	p.done = true
	queue := o.partition[p.msg.Partition]
	n := 0
	for n < len(queue) && queue[n].done {
		n++
	}
	if n == 0 {
		return kafka.Message{}, false
	}
	last := queue[n-1].msg
	o.partition[p.msg.Partition] = queue[n:]
	return last, true
}

// KafkaEvents - журнал проведенных транзакций для внешних потребителей
type KafkaEvents struct {
	writer *kafka.Writer
}

func NewEventsWriter(brokers []string, topic string) (*KafkaEvents, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("config kafka.brokers is not set")
	}
	if topic == "" {
		return nil, fmt.Errorf("config kafka.events_topic is not set")
	}
	return &KafkaEvents{&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}, nil
}

// Publish - ключ сообщения участник, порядок событий одного кошелька сохраняется
func (k *KafkaEvents) Publish(ctx context.Context, tnx model.Transaction) error {
	value, err := json.Marshal(tnx)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(tnx.MemberID),
		Value: value,
	})
}

func (k *KafkaEvents) Close() error {
	return k.writer.Close()
}
