package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/depotfs/depotfs/pkg/store/meta"
)

func TestConditionalWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.PutIfAbsent(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("PutIfAbsent on missing key failed: %v", err)
	}
	if err := s.PutIfAbsent(ctx, "k", []byte("v2")); !errors.Is(err, meta.ErrConditionFailed) {
		t.Fatalf("PutIfAbsent on existing key = %v, want ErrConditionFailed", err)
	}

	if err := s.PutIfValueEquals(ctx, "k", []byte("v1"), []byte("v2")); err != nil {
		t.Fatalf("CAS with correct expectation failed: %v", err)
	}
	if err := s.PutIfValueEquals(ctx, "k", []byte("v1"), []byte("v3")); !errors.Is(err, meta.ErrConditionFailed) {
		t.Fatalf("CAS with stale expectation = %v, want ErrConditionFailed", err)
	}
	if err := s.PutIfValueEquals(ctx, "other", nil, []byte("v")); err != nil {
		t.Fatalf("CAS with nil expectation on missing key failed: %v", err)
	}
	if err := s.PutIfValueEquals(ctx, "other", nil, []byte("v")); !errors.Is(err, meta.ErrConditionFailed) {
		t.Fatalf("CAS with nil expectation on existing key = %v, want ErrConditionFailed", err)
	}

	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v2" {
		t.Fatalf("Get = %q, %v; want v2", got, err)
	}
}

func TestAddCounter(t *testing.T) {
	ctx := context.Background()
	s := New()

	n, err := s.Add(ctx, "c", 5)
	if err != nil || n != 5 {
		t.Fatalf("Add(5) = %d, %v; want 5", n, err)
	}
	n, err = s.Add(ctx, "c", -2)
	if err != nil || n != 3 {
		t.Fatalf("Add(-2) = %d, %v; want 3", n, err)
	}
}

func TestBatchGetParallelSlots(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Put(ctx, "a", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "c", []byte("3")); err != nil {
		t.Fatal(err)
	}

	values, err := s.BatchGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("BatchGet failed: %v", err)
	}
	if string(values[0]) != "1" || values[1] != nil || string(values[2]) != "3" {
		t.Fatalf("BatchGet = %q", values)
	}
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 7; i++ {
		if err := s.Put(ctx, fmt.Sprintf("P#%02d", i), []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Put(ctx, "Q#00", []byte("other prefix")); err != nil {
		t.Fatal(err)
	}

	var all []meta.Item
	cursor := ""
	pages := 0
	for {
		items, next, err := s.List(ctx, "P#", cursor, 3)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		all = append(all, items...)
		pages++
		if next == "" {
			break
		}
		cursor = next
	}
	if len(all) != 7 || pages != 3 {
		t.Fatalf("paged listing returned %d items over %d pages, want 7 over 3", len(all), pages)
	}
	for i, item := range all {
		if item.Key != fmt.Sprintf("P#%02d", i) {
			t.Fatalf("item %d key = %s, out of order", i, item.Key)
		}
	}
}
