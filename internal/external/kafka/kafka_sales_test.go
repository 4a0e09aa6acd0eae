package recycle

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestNewSalesReader(t *testing.T) {
	_, err := NewSalesReader(nil, "booth_sales", "recycle_ledger")
	require.Error(t, err)

	_, err = NewSalesReader([]string{"localhost:9092"}, "", "recycle_ledger")
	require.Error(t, err)

	// без группы смещения не подтверждаются
	_, err = NewSalesReader([]string{"localhost:9092"}, "booth_sales", "")
	require.Error(t, err)

	reader, err := NewSalesReader([]string{"localhost:9092"}, "booth_sales", "recycle_ledger")
	require.NoError(t, err)
	require.Equal(t, "booth_sales", reader.reader.Config().Topic)
	reader.CloseReader()
}

func TestOffsetsCommitInOrder(t *testing.T) {
	o := newOffsets()
	m := func(partition int, offset int64) kafka.Message {
		return kafka.Message{Topic: "booth_sales", Partition: partition, Offset: offset}
	}
	p10 := o.add(m(0, 10))
	p11 := o.add(m(0, 11))
	p12 := o.add(m(0, 12))
	q5 := o.add(m(1, 5))

	// 11 готово раньше 10: подтверждать нельзя, 10 еще может упасть
	_, ok := o.done(p11)
	require.False(t, ok)

	// другая партиция независима
	msg, ok := o.done(q5)
	require.True(t, ok)
	require.Equal(t, int64(5), msg.Offset)

	msg, ok = o.done(p10)
	require.True(t, ok)
	require.Equal(t, int64(11), msg.Offset)

	msg, ok = o.done(p12)
	require.True(t, ok)
	require.Equal(t, int64(12), msg.Offset)
	require.Empty(t, o.partition[0])
}

func TestNewEventsWriter(t *testing.T) {
	_, err := NewEventsWriter(nil, "ledger_transactions")
	require.Error(t, err)

	writer, err := NewEventsWriter([]string{"localhost:9092"}, "ledger_transactions")
	require.NoError(t, err)
	require.Equal(t, "ledger_transactions", writer.writer.Topic)
	require.NoError(t, writer.Close())
}
