package utils

import (
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func TestGenerateIDShape(t *testing.T) {
	t.Parallel()

	a := GenerateID()
	b := GenerateID()
	if len(a) != 24 {
		t.Fatalf("id length = %d, want 24", len(a))
	}
	if _, err := hex.DecodeString(a); err != nil {
		t.Fatalf("id is not hex: %v", err)
	}
	if a == b {
		t.Fatal("consecutive ids must differ")
	}
}

func TestIDTimeRoundTrip(t *testing.T) {
	t.Parallel()

	id := GenerateID()
	ts, err := IDTime(id)
	if err != nil {
		t.Fatalf("IDTime: %v", err)
	}
	if diff := time.Since(ts); diff < 0 || diff > 2*time.Second {
		t.Fatalf("extracted time off by %v", diff)
	}
}

func TestIDTimeRejectsShortInput(t *testing.T) {
	t.Parallel()

	if _, err := IDTime("abc"); err == nil {
		t.Fatal("expected error for short id")
	}
}

func TestIDOlderThan(t *testing.T) {
	t.Parallel()

	if IDOlderThan(GenerateID(), time.Hour) {
		t.Fatal("fresh id must not be older than an hour")
	}

	stale := fmt.Sprintf("%08x0000000000000001", uint32(time.Now().Add(-48*time.Hour).Unix()))
	if !IDOlderThan(stale, 24*time.Hour) {
		t.Fatal("two-day-old id must be older than a day")
	}

	// 解析不了的字串一律當新的
	if IDOlderThan("gemini", time.Nanosecond) {
		t.Fatal("unparseable string must never be considered old")
	}
}
