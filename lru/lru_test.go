package lru

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/saiset-co/sai-lru/types"
)

func mustNew(t *testing.T, capacity int) *Cache {
	t.Helper()
	c, err := New(capacity)
	if err != nil {
		t.Fatalf("New(%d) failed: %v", capacity, err)
	}
	return c
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{name: "valid capacity", capacity: 5},
		{name: "capacity one", capacity: 1},
		{name: "zero capacity", capacity: 0, wantErr: true},
		{name: "negative capacity", capacity: -3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.capacity)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !types.IsError(err, types.ErrInvalidCapacity) {
					t.Errorf("Expected ErrInvalidCapacity, got %v", err)
				}
				return
			}
			if c.Capacity() != tt.capacity {
				t.Errorf("Expected capacity %d, got %d", tt.capacity, c.Capacity())
			}
		})
	}
}

func TestGetMissingKey(t *testing.T) {
	c := mustNew(t, 2)

	if v, ok := c.Get("nope"); ok || v != "" {
		t.Errorf("Expected miss, got %q, %v", v, ok)
	}
}

func TestPutUpdatesExistingKey(t *testing.T) {
	c := mustNew(t, 2)
	c.Put("a", "1")
	c.Put("b", "2")

	if _, evicted := c.Put("a", "10"); evicted {
		t.Fatal("Updating an existing key must not evict")
	}

	if v, _ := c.Peek("a"); v != "10" {
		t.Errorf("Expected updated value 10, got %s", v)
	}
	if got := c.Keys(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("Update should promote key, order = %v", got)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := mustNew(t, 5)
	for i, k := range []string{"a", "b", "c", "d", "e"} {
		c.Put(k, fmt.Sprint(i+1))
	}

	evicted, ok := c.Put("f", "6")
	if !ok || evicted.Key != "a" || evicted.Value != "1" {
		t.Fatalf("Expected eviction of a=1, got %+v (%v)", evicted, ok)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("a should have been evicted")
	}
	if v, ok := c.Get("f"); !ok || v != "6" {
		t.Errorf("Expected f=6, got %q (%v)", v, ok)
	}
}

func TestGetRefreshesRecency(t *testing.T) {
	c := mustNew(t, 2)
	c.Put("x", "1")
	c.Put("y", "2")

	if v, _ := c.Get("x"); v != "1" {
		t.Fatalf("Get must not change the value, got %s", v)
	}

	evicted, ok := c.Put("z", "3")
	if !ok || evicted.Key != "y" {
		t.Fatalf("Expected y to be evicted, got %+v", evicted)
	}

	if got := c.Keys(); !reflect.DeepEqual(got, []string{"x", "z"}) {
		t.Errorf("Expected [x z], got %v", got)
	}
}

func TestPeekDoesNotPromote(t *testing.T) {
	c := mustNew(t, 2)
	c.Put("x", "1")
	c.Put("y", "2")
	c.Peek("x")

	evicted, _ := c.Put("z", "3")
	if evicted.Key != "x" {
		t.Errorf("Peek must not refresh recency, evicted %s", evicted.Key)
	}
}

func TestEntriesOrderAndReadOnly(t *testing.T) {
	c := mustNew(t, 3)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("c", "3")
	c.Get("a")

	want := []types.CacheEntry{{Key: "b", Value: "2"}, {Key: "c", Value: "3"}, {Key: "a", Value: "1"}}
	if got := c.Entries(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}

	if got := c.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries must not mutate recency, got %v", got)
	}
}

func TestCapacityOne(t *testing.T) {
	c := mustNew(t, 1)
	c.Put("a", "1")
	c.Put("b", "2")

	if c.Len() != 1 {
		t.Fatalf("Expected len 1, got %d", c.Len())
	}
	if _, ok := c.Peek("b"); !ok {
		t.Error("b should be present")
	}
}

// reference model: a slice ordered oldest first
func TestRandomOperationsMatchModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, capacity := range []int{1, 2, 3, 5, 8} {
		c := mustNew(t, capacity)
		var model []types.CacheEntry

		find := func(key string) int {
			for i, e := range model {
				if e.Key == key {
					return i
				}
			}
			return -1
		}

		for step := 0; step < 2000; step++ {
			key := fmt.Sprintf("k%d", rng.Intn(capacity*2+1))

			if rng.Intn(3) == 0 {
				got, ok := c.Get(key)
				idx := find(key)
				if ok != (idx >= 0) {
					t.Fatalf("cap %d step %d: presence mismatch for %s", capacity, step, key)
				}
				if idx >= 0 {
					e := model[idx]
					if got != e.Value {
						t.Fatalf("cap %d step %d: value mismatch %s != %s", capacity, step, got, e.Value)
					}
					model = append(append(model[:idx:idx], model[idx+1:]...), e)
				}
			} else {
				value := fmt.Sprint(step)
				evicted, ok := c.Put(key, value)

				var wantEvicted *types.CacheEntry
				if idx := find(key); idx >= 0 {
					model = append(model[:idx:idx], model[idx+1:]...)
				} else if len(model) == capacity {
					e := model[0]
					wantEvicted = &e
					model = model[1:]
				}
				model = append(model, types.CacheEntry{Key: key, Value: value})

				if ok != (wantEvicted != nil) || (ok && evicted != *wantEvicted) {
					t.Fatalf("cap %d step %d: eviction mismatch got %+v/%v want %+v", capacity, step, evicted, ok, wantEvicted)
				}
			}

			if c.Len() > capacity {
				t.Fatalf("cap %d step %d: len %d exceeds capacity", capacity, step, c.Len())
			}
			if got := c.Entries(); !reflect.DeepEqual(got, model) && !(len(got) == 0 && len(model) == 0) {
				t.Fatalf("cap %d step %d: order mismatch\n got  %v\n want %v", capacity, step, got, model)
			}
		}
	}
}
