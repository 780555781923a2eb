package protocol

import (
	"bytes"
	"testing"
)

func TestBuildChunkRoundTrip(t *testing.T) {
	data := []byte("0123456789")
	dst := make([]byte, len(data)+16)
	n := BuildChunk(dst, data)
	out := dst[:n]

	if !bytes.HasPrefix(out, []byte("a\r\n")) {
		t.Fatalf("chunk header = %q, want hex length \"a\"", out)
	}
	if !bytes.Contains(out, data) {
		t.Errorf("chunk body missing from %q", out)
	}
	if !bytes.HasSuffix(out, []byte("\r\n")) {
		t.Errorf("chunk trailer missing from %q", out)
	}
}

func TestBuildChunkHeaderHexEncoding(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0\r\n"},
		{10, "a\r\n"},
		{255, "ff\r\n"},
		{16, "10\r\n"},
	}
	for _, tt := range tests {
		dst := make([]byte, 16)
		n := BuildChunkHeader(dst, tt.n)
		if got := string(dst[:n]); got != tt.want {
			t.Errorf("BuildChunkHeader(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestBuildChunkTerminator(t *testing.T) {
	dst := make([]byte, 8)
	n := BuildChunkTerminator(dst)
	if got := string(dst[:n]); got != "0\r\n\r\n" {
		t.Errorf("BuildChunkTerminator() = %q, want \"0\\r\\n\\r\\n\"", got)
	}
}

func TestFiveChunkSequencePreservesOrder(t *testing.T) {
	sizes := []int{10, 10, 10, 10, 5}
	var out bytes.Buffer
	for i, n := range sizes {
		data := bytes.Repeat([]byte{byte('a' + i)}, n)
		dst := make([]byte, n+16)
		written := BuildChunk(dst, data)
		out.Write(dst[:written])
	}
	termBuf := make([]byte, 8)
	out.Write(termBuf[:BuildChunkTerminator(termBuf)])

	body := out.Bytes()
	for i, n := range sizes {
		want := bytes.Repeat([]byte{byte('a' + i)}, n)
		if !bytes.Contains(body, want) {
			t.Errorf("chunk %d (%q) missing from stream", i, want)
		}
	}
	firstIdx := bytes.Index(body, bytes.Repeat([]byte{'a'}, 10))
	lastIdx := bytes.Index(body, bytes.Repeat([]byte{'e'}, 5))
	if firstIdx == -1 || lastIdx == -1 || firstIdx > lastIdx {
		t.Error("chunks were not delivered in submission order")
	}
}
