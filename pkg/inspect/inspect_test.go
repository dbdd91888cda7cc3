package inspect

import (
	"bytes"
	"errors"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func TestInspectImageDimensions(t *testing.T) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(40, 30, color.White), imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	meta, err := Inspect("image/png", buf.Bytes())
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if meta["width"] != "40" || meta["height"] != "30" {
		t.Fatalf("unexpected metadata %v", meta)
	}
}

func TestInspectRejectsBadInput(t *testing.T) {
	if _, err := Inspect("application/pdf", []byte("not a pdf")); err == nil {
		t.Fatalf("expected pdf error")
	}
	if _, err := Inspect("image/jpeg", []byte("nope")); err == nil {
		t.Fatalf("expected image error")
	}
	if _, err := Inspect("image/heic", []byte{1}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
