package util

import "testing"

func TestBufPool_RoundTrip(t *testing.T) {
	buf := GetBuf()
	if buf == nil {
		t.Fatal("GetBuf returned nil")
	}
	if len(*buf) != DefaultBufSize {
		t.Errorf("buffer size = %d, want %d", len(*buf), DefaultBufSize)
	}

	(*buf)[0] = 0xFF
	*buf = (*buf)[:10] // a caller reslicing must not shrink pooled buffers
	PutBuf(buf)

	for i := 0; i < 4; i++ {
		b := GetBuf()
		if len(*b) != DefaultBufSize {
			t.Fatalf("pooled buffer size = %d, want %d", len(*b), DefaultBufSize)
		}
		PutBuf(b)
	}
}

func TestPutBuf_ForeignBuffers(t *testing.T) {
	// Should not panic.
	PutBuf(nil)

	small := make([]byte, 512)
	PutBuf(&small)
	if b := GetBuf(); cap(*b) != DefaultBufSize {
		t.Errorf("foreign buffer entered the pool: cap %d", cap(*b))
	}
}

// TestDefaultBufSize_OneRecord pins the copy buffer to the largest TLS
// plaintext record.
func TestDefaultBufSize_OneRecord(t *testing.T) {
	if DefaultBufSize != 16384 {
		t.Errorf("DefaultBufSize = %d, want 16384", DefaultBufSize)
	}
}
