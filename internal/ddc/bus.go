package ddc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// i2cSlave is the i2c-dev ioctl selecting the target address.
const i2cSlave = 0x0703

const maxCapabilitiesLen = 4096

const lockRetryDelay = 20 * time.Millisecond

// Transport is one opened I2C adapter.
type Transport interface {
	SetAddress(addr int) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Options tunes DDC/CI pacing.
type Options struct {
	// WriteDelay is the minimum gap after a write before the next command.
	WriteDelay time.Duration
	// ReplyDelay is the wait between a request and reading its reply.
	ReplyDelay time.Duration
	// Retries is the number of attempts for a request/reply exchange.
	Retries int
	// LockTimeout bounds the wait for another process to release the node.
	// Zero means a single attempt.
	LockTimeout time.Duration
	// Sleep replaces the context-aware sleep, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the timings from the DDC/CI standard.
func DefaultOptions() Options {
	return Options{
		WriteDelay:  50 * time.Millisecond,
		ReplyDelay:  40 * time.Millisecond,
		Retries:     3,
		LockTimeout: 2 * time.Second,
	}
}

// pacer tracks the last write per device node, so buses opened one after
// another on the same node still honour WriteDelay.
type pacer struct {
	mu   sync.Mutex
	last map[string]time.Time
}

var writes = &pacer{last: map[string]time.Time{}}

func (p *pacer) lastWrite(path string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last[path]
}

func (p *pacer) record(path string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[path] = at
}

// Bus issues DDC/CI commands over one adapter. Calls are serialized.
type Bus struct {
	path string
	opts Options

	mu   sync.Mutex
	tr   Transport
	addr int
	lock *flock.Flock
}

// Open opens an i2c-dev node such as /dev/i2c-5 and holds an exclusive flock
// on it until Close, so other processes (a second brightd, ddcutil) cannot
// interleave traffic with ours.
func Open(ctx context.Context, path string, opts Options) (*Bus, error) {
	lock, err := lockNode(ctx, path, opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	bus := NewBus(path, &devTransport{f: f}, opts)
	bus.lock = lock
	return bus, nil
}

func lockNode(ctx context.Context, path string, timeout time.Duration) (*flock.Flock, error) {
	// Never O_CREATE: a vanished node must not come back as a regular file.
	lock := flock.New(path, flock.SetFlag(os.O_RDONLY))
	var ok bool
	var err error
	if timeout > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ok, err = lock.TryLockContext(waitCtx, lockRetryDelay)
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	} else {
		ok, err = lock.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBusy, path)
	}
	return lock, nil
}

// NewBus wraps an already opened transport.
func NewBus(path string, tr Transport, opts Options) *Bus {
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Bus{path: path, opts: opts, tr: tr, addr: -1}
}

// Path returns the device node the bus was opened from.
func (b *Bus) Path() string { return b.path }

// Close releases the adapter. It is safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tr == nil {
		return nil
	}
	err := b.tr.Close()
	b.tr = nil
	if b.lock != nil {
		err = multierr.Append(err, b.lock.Unlock())
		b.lock = nil
	}
	return err
}

// GetVCP reads a continuous VCP feature.
func (b *Bus) GetVCP(ctx context.Context, code byte) (VCPValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < b.opts.Retries; attempt++ {
		reply, err := b.exchange(ctx, EncodeGetVCP(code), vcpReplyLen)
		if err != nil {
			if !retryable(err) {
				return VCPValue{}, err
			}
			lastErr = err
			continue
		}
		value, err := DecodeVCPReply(reply, code)
		if err == nil {
			return value, nil
		}
		if !retryable(err) {
			return VCPValue{}, err
		}
		lastErr = err
	}
	return VCPValue{}, fmt.Errorf("get vcp 0x%02X on %s: %w", code, b.path, lastErr)
}

// SetVCP writes a continuous VCP feature. DDC/CI has no acknowledgement for
// Set VCP, so only transport errors are reported.
func (b *Bus) SetVCP(ctx context.Context, code byte, value uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < b.opts.Retries; attempt++ {
		err := b.write(ctx, SlaveAddress, EncodeSetVCP(code, value))
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("set vcp 0x%02X on %s: %w", code, b.path, lastErr)
}

// CapabilitiesString reads the full capabilities string fragment by fragment.
func (b *Bus) CapabilitiesString(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []byte
	for len(out) < maxCapabilitiesLen {
		data, err := b.capabilitiesFragment(ctx, uint16(len(out)))
		if err != nil {
			return "", err
		}
		if len(data) == 0 {
			return string(out), nil
		}
		out = append(out, data...)
	}
	return "", fmt.Errorf("%w: capabilities string exceeds %d bytes", ErrInvalidReply, maxCapabilitiesLen)
}

func (b *Bus) capabilitiesFragment(ctx context.Context, offset uint16) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < b.opts.Retries; attempt++ {
		reply, err := b.exchange(ctx, EncodeCapabilitiesRequest(offset), maxFragmentData+6)
		if err == nil {
			var got uint16
			var data []byte
			got, data, err = DecodeCapabilitiesFragment(reply)
			if err == nil && got != offset {
				err = fmt.Errorf("%w: fragment offset %d, asked %d", ErrInvalidReply, got, offset)
			}
			if err == nil {
				return data, nil
			}
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("capabilities at offset %d on %s: %w", offset, b.path, lastErr)
}

// ReadEDID reads the 128-byte EDID base block over the same adapter.
func (b *Bus) ReadEDID(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.write(ctx, EDIDAddress, []byte{0}); err != nil {
		return nil, err
	}
	buf := make([]byte, edidLen)
	n, err := b.tr.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read edid on %s: %w", b.path, err)
	}
	if n < edidLen {
		return nil, fmt.Errorf("%w: edid %d bytes", ErrShortReply, n)
	}
	return buf, nil
}

func (b *Bus) exchange(ctx context.Context, request []byte, replyLen int) ([]byte, error) {
	if err := b.write(ctx, SlaveAddress, request); err != nil {
		return nil, err
	}
	if err := b.opts.Sleep(ctx, b.opts.ReplyDelay); err != nil {
		return nil, err
	}
	reply := make([]byte, replyLen)
	n, err := b.tr.Read(reply)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	return reply[:n], nil
}

func (b *Bus) write(ctx context.Context, addr int, data []byte) error {
	if b.tr == nil {
		return ErrClosed
	}
	if last := writes.lastWrite(b.path); !last.IsZero() {
		if wait := b.opts.WriteDelay - time.Since(last); wait > 0 {
			if err := b.opts.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	if b.addr != addr {
		if err := b.tr.SetAddress(addr); err != nil {
			return fmt.Errorf("select address 0x%02X on %s: %w", addr, b.path, err)
		}
		b.addr = addr
	}
	_, err := b.tr.Write(data)
	writes.record(b.path, time.Now())
	if err != nil {
		return fmt.Errorf("write %s: %w", b.path, err)
	}
	return nil
}

func retryable(err error) bool {
	if IsVanished(err) || errors.Is(err, ErrUnsupportedVCP) {
		return false
	}
	return IsTransmission(err) || IsProtocol(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type devTransport struct {
	f *os.File
}

func (t *devTransport) SetAddress(addr int) error {
	return unix.IoctlSetInt(int(t.f.Fd()), i2cSlave, addr)
}

func (t *devTransport) Read(p []byte) (int, error)  { return t.f.Read(p) }
func (t *devTransport) Write(p []byte) (int, error) { return t.f.Write(p) }
func (t *devTransport) Close() error                { return t.f.Close() }
