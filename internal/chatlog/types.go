package chatlog

import "time"

// Config contains batching parameters for the sink.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// QueueSize bounds the enqueue buffer; overflow drops new messages.
	QueueSize int

	// FlushTimeout bounds each database write.
	FlushTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     200,
		FlushInterval: 2 * time.Second,
		QueueSize:     1024,
		FlushTimeout:  5 * time.Second,
	}
}

// row represents a row to be inserted into the chat_messages table.
type row struct {
	MessageID    string
	ReceivedAt   time.Time
	Channel      string
	ChatterID    string
	ChatterLogin string
	ChatterName  string
	Text         string
}

// Metrics holds metrics for the sink.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}
