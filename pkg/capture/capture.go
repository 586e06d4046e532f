// Package capture records relayed datagrams to a zstd-compressed file and reads
// them back, along with UDP payloads from pcap/pcapng captures, for offline decoding.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const magic = "SBRWCAP1"

var ErrBadMagic = errors.New("capture: not a datagram capture")

// Datagram is one captured UDP payload.
type Datagram struct {
	Time   time.Time
	Source string
	Data   []byte
}

// Recorder appends datagrams to a zstd stream. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	enc   *zstd.Encoder
	out   io.Closer
	count uint64
}

// NewRecorder writes the capture to w. Close finishes the stream but does not close w.
func NewRecorder(w io.Writer) (*Recorder, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("capture: failed to initialize encoder: %w", err)
	}
	if _, err := enc.Write([]byte(magic)); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("capture: failed to write header: %w", err)
	}
	return &Recorder{enc: enc}, nil
}

// CreateRecorder truncates or creates the file at path.
func CreateRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	r, err := NewRecorder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.out = f
	return r, nil
}

// Record appends d. The data is copied into the stream before returning.
func (r *Recorder) Record(d Datagram) error {
	if len(d.Source) > 0xFF {
		return fmt.Errorf("capture: source %q too long", d.Source)
	}
	if len(d.Data) > 0xFFFF {
		return fmt.Errorf("capture: datagram of %d bytes too large", len(d.Data))
	}
	rec := make([]byte, 0, 8+1+len(d.Source)+2+len(d.Data))
	rec = binary.BigEndian.AppendUint64(rec, uint64(d.Time.UnixNano()))
	rec = append(rec, byte(len(d.Source)))
	rec = append(rec, d.Source...)
	rec = binary.BigEndian.AppendUint16(rec, uint16(len(d.Data)))
	rec = append(rec, d.Data...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return os.ErrClosed
	}
	if _, err := r.enc.Write(rec); err != nil {
		return fmt.Errorf("capture: write failed: %w", err)
	}
	r.count++
	return nil
}

// Count reports how many datagrams were recorded.
func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Flush pushes buffered records to the underlying writer.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return os.ErrClosed
	}
	return r.enc.Flush()
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return nil
	}
	err := r.enc.Close()
	r.enc = nil
	if r.out != nil {
		err = errors.Join(err, r.out.Close())
	}
	return err
}

// Reader iterates a capture written by Recorder.
type Reader struct {
	dec *zstd.Decoder
	br  *bufio.Reader
	in  io.Closer
}

func NewReader(rd io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(rd)
	if err != nil {
		return nil, fmt.Errorf("capture: failed to initialize decoder: %w", err)
	}
	r := &Reader{dec: dec, br: bufio.NewReader(dec)}
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r.br, head); err != nil || string(head) != magic {
		dec.Close()
		return nil, ErrBadMagic
	}
	return r, nil
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.in = f
	return r, nil
}

// Next returns the next datagram, io.EOF at a clean end of stream and
// io.ErrUnexpectedEOF when the last record is cut short.
func (r *Reader) Next() (Datagram, error) {
	var fixed [9]byte
	if _, err := io.ReadFull(r.br, fixed[:]); err != nil {
		return Datagram{}, err
	}
	d := Datagram{Time: time.Unix(0, int64(binary.BigEndian.Uint64(fixed[:8])))}

	src := make([]byte, fixed[8])
	if _, err := io.ReadFull(r.br, src); err != nil {
		return Datagram{}, noEOF(err)
	}
	d.Source = string(src)

	var size [2]byte
	if _, err := io.ReadFull(r.br, size[:]); err != nil {
		return Datagram{}, noEOF(err)
	}
	d.Data = make([]byte, binary.BigEndian.Uint16(size[:]))
	if _, err := io.ReadFull(r.br, d.Data); err != nil {
		return Datagram{}, noEOF(err)
	}
	return d, nil
}

// Each calls fn for every remaining datagram.
func (r *Reader) Each(fn func(Datagram) error) error {
	for {
		d, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
}

func (r *Reader) Close() error {
	r.dec.Close()
	if r.in != nil {
		return r.in.Close()
	}
	return nil
}

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
