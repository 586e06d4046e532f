package buffers

import "testing"

func TestPoolGetPut(t *testing.T) {
	p := NewPool(64)
	if p.Size() != 64 {
		t.Fatalf("Size = %d", p.Size())
	}

	buf := p.Get()
	if len(buf) != 64 {
		t.Fatalf("Get returned %d bytes, expected 64", len(buf))
	}
	buf = buf[:10]
	p.Put(buf)

	again := p.Get()
	if len(again) != 64 {
		t.Errorf("Get after a resliced Put returned %d bytes", len(again))
	}

	// undersized buffers are silently dropped
	p.Put(make([]byte, 8))
	p.Put(nil)
	if got := p.Get(); len(got) != 64 {
		t.Errorf("Get returned %d bytes after undersized Put", len(got))
	}
}

func TestDatagramPool(t *testing.T) {
	if DatagramPool.Size() != MaxDatagramSize {
		t.Errorf("DatagramPool size = %d", DatagramPool.Size())
	}
}
