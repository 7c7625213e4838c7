package queue

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/config"
)

const (
	defaultRedisKey     = "harvest:tasks"
	defaultRedisTimeout = 5 * time.Second
	// BRPOP timeout per round trip; Dequeue loops until the context ends.
	blockingPopSeconds = 2
)

// RedisQueue implements Queue on a Redis list using a minimal RESP client.
// LPUSH enqueues, BRPOP dequeues, giving FIFO per list with at-least-once
// semantics once paired with the upsert-idempotent persistence layer.
type RedisQueue struct {
	addr     string
	password string
	db       int
	key      string
	timeout  time.Duration
}

// NewRedisQueue creates a queue backed by Redis.
func NewRedisQueue(cfg config.RedisConfig) (*RedisQueue, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("redis host is required")
	}
	port := cfg.Port
	if port == "" {
		port = "6379"
	}
	key := cfg.Key
	if key == "" {
		key = defaultRedisKey
	}
	timeout := cfg.Timeout.Duration
	if timeout == 0 {
		timeout = defaultRedisTimeout
	}
	return &RedisQueue{
		addr:     net.JoinHostPort(cfg.Host, port),
		password: cfg.Password,
		db:       cfg.DB,
		key:      key,
		timeout:  timeout,
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.withConn(ctx, func(conn *redisConn) error {
		if err := conn.send("LPUSH", q.key, string(payload)); err != nil {
			return err
		}
		_, err := conn.read()
		return err
	})
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Task{}, err
		}
		var task Task
		var found bool
		err := q.withConn(ctx, func(conn *redisConn) error {
			if err := conn.send("BRPOP", q.key, strconv.Itoa(blockingPopSeconds)); err != nil {
				return err
			}
			reply, err := conn.read()
			if err != nil {
				return err
			}
			arr, ok := reply.([]interface{})
			if !ok || len(arr) < 2 {
				// nil reply: BRPOP timed out with no task.
				return nil
			}
			value, ok := arr[1].(string)
			if !ok {
				return fmt.Errorf("unexpected BRPOP payload type %T", arr[1])
			}
			if err := json.Unmarshal([]byte(value), &task); err != nil {
				return fmt.Errorf("decode task: %w", err)
			}
			found = true
			return nil
		})
		if err != nil {
			return Task{}, err
		}
		if found {
			return task, nil
		}
	}
}

func (q *RedisQueue) Close() error {
	return nil
}

func (q *RedisQueue) withConn(ctx context.Context, fn func(*redisConn) error) error {
	conn, err := newRedisConn(ctx, q.addr, q.timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.initialize(q.password, q.db); err != nil {
		return err
	}
	return fn(conn)
}

type redisConn struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

func newRedisConn(ctx context.Context, addr string, timeout time.Duration) (*redisConn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	c, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &redisConn{
		conn:   c,
		reader: bufio.NewReader(c),
		writer: bufio.NewWriter(c),
	}, nil
}

func (c *redisConn) initialize(password string, db int) error {
	if password != "" {
		if err := c.send("AUTH", password); err != nil {
			return err
		}
		if _, err := c.read(); err != nil {
			return err
		}
	}
	if db != 0 {
		if err := c.send("SELECT", strconv.Itoa(db)); err != nil {
			return err
		}
		if _, err := c.read(); err != nil {
			return err
		}
	}
	return nil
}

func (c *redisConn) send(cmd string, args ...string) error {
	if _, err := fmt.Fprintf(c.writer, "*%d\r\n", len(args)+1); err != nil {
		return err
	}
	if err := writeBulk(c.writer, strings.ToUpper(cmd)); err != nil {
		return err
	}
	for _, arg := range args {
		if err := writeBulk(c.writer, arg); err != nil {
			return err
		}
	}
	return c.writer.Flush()
}

func writeBulk(w *bufio.Writer, value string) error {
	if _, err := fmt.Fprintf(w, "$%d\r\n%s\r\n", len(value), value); err != nil {
		return err
	}
	return nil
}

func (c *redisConn) read() (interface{}, error) {
	prefix, err := c.reader.ReadByte()
	if err != nil {
		return nil, err
	}
	switch prefix {
	case '+':
		return readLine(c.reader)
	case '-':
		line, err := readLine(c.reader)
		if err != nil {
			return nil, err
		}
		return nil, errors.New(line)
	case ':':
		line, err := readLine(c.reader)
		if err != nil {
			return nil, err
		}
		return strconv.ParseInt(line, 10, 64)
	case '$':
		line, err := readLine(c.reader)
		if err != nil {
			return nil, err
		}
		length, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		if length == -1 {
			return nil, nil
		}
		buf := make([]byte, length+2)
		if _, err := io.ReadFull(c.reader, buf); err != nil {
			return nil, err
		}
		return string(buf[:length]), nil
	case '*':
		line, err := readLine(c.reader)
		if err != nil {
			return nil, err
		}
		count, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		if count == -1 {
			return nil, nil
		}
		items := make([]interface{}, 0, count)
		for i := 0; i < count; i++ {
			item, err := c.read()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unexpected redis prefix %q", prefix)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

func (c *redisConn) Close() error {
	return c.conn.Close()
}
