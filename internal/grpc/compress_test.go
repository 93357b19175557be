package grpc

import "testing"

func TestCompressorRoundTrip(t *testing.T) {
	for _, compressor := range []Compressor{NewSnappyCompressor(), NewGZIPCompressor()} {
		payload := []byte(`{"hud":"Score: 12 | Speed x1.04"}`)

		compressed, err := compressor.Compress(payload)
		if err != nil {
			t.Fatalf("%s compress: %v", compressor.Name(), err)
		}
		if len(compressed) == 0 {
			t.Fatalf("%s compressed payload empty", compressor.Name())
		}
		decompressed, err := compressor.Decompress(compressed)
		if err != nil {
			t.Fatalf("%s decompress: %v", compressor.Name(), err)
		}
		if string(decompressed) != string(payload) {
			t.Fatalf("%s round trip mismatch: got %q want %q", compressor.Name(), decompressed, payload)
		}
	}
}

func TestDecompressEmpty(t *testing.T) {
	for _, compressor := range []Compressor{NewSnappyCompressor(), NewGZIPCompressor()} {
		if _, err := compressor.Decompress(nil); err == nil {
			t.Fatalf("%s: expected error for empty payload", compressor.Name())
		}
	}
}

func TestCompressorByName(t *testing.T) {
	if c, ok := CompressorByName("snappy"); !ok || c.Name() != "snappy" {
		t.Fatalf("expected snappy compressor")
	}
	if c, ok := CompressorByName("gzip"); !ok || c.Name() != "gzip" {
		t.Fatalf("expected gzip compressor")
	}
	if _, ok := CompressorByName("lz4"); ok {
		t.Fatalf("unexpected lz4 support")
	}
}
