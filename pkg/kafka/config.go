package kafka

import "time"

// ProducerConfig tunes the kafka-go writer behind Producer.
type ProducerConfig struct {
	Brokers         []string
	RequiredAcks    int    // -1 waits for all in-sync replicas
	Compression     string // gzip, snappy, lz4 or zstd
	MaxAttempts     int
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	BatchSize       int
	BatchBytes      int
	BatchTimeout    time.Duration
	HashByKey       bool
	AutoCreateTopic bool
}

type ProducerOption func(*ProducerConfig)

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithDelivery sets acknowledgements, compression and writer retries.
// Empty compression and non-positive attempts keep the defaults.
func WithDelivery(acks int, compression string, attempts int) ProducerOption {
	return func(c *ProducerConfig) {
		c.RequiredAcks = acks
		if compression != "" {
			c.Compression = compression
		}
		if attempts > 0 {
			c.MaxAttempts = attempts
		}
	}
}

// WithBatch sets batch size, byte limit and linger.
func WithBatch(size, bytes int, linger time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if size > 0 {
			c.BatchSize = size
		}
		if bytes > 0 {
			c.BatchBytes = bytes
		}
		if linger > 0 {
			c.BatchTimeout = linger
		}
	}
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if write > 0 {
			c.WriteTimeout = write
		}
		if read > 0 {
			c.ReadTimeout = read
		}
	}
}

// WithHashByKey routes equal keys to the same partition.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = hash }
}

func WithAutoCreateTopic(enabled bool) ProducerOption {
	return func(c *ProducerConfig) { c.AutoCreateTopic = enabled }
}
