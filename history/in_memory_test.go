package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/clinicmesh/model"
)

// Interface compliance (compile-time assertion)
var _ Store = (*InMemoryStore)(nil)

func TestInMemoryStore_GetEmpty(t *testing.T) {
	store := NewInMemoryStore()
	assert.Empty(t, store.Get("s1"))
}

func TestInMemoryStore_ReplaceAndGet(t *testing.T) {
	store := NewInMemoryStore()
	store.Replace("s1", []model.Message{
		{Role: model.RoleUser, Text: "hello"},
		{Role: model.RoleAssistant, Text: "hi"},
	})

	got := store.Get("s1")
	assert.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Text)

	// Returned slice is a copy.
	got[0].Text = "mutated"
	assert.Equal(t, "hello", store.Get("s1")[0].Text)
}

func TestInMemoryStore_SessionIsolation(t *testing.T) {
	store := NewInMemoryStore()
	store.Replace("s1", []model.Message{{Role: model.RoleUser, Text: "one"}})
	store.Replace("s2", []model.Message{{Role: model.RoleUser, Text: "two"}})

	assert.Equal(t, "one", store.Get("s1")[0].Text)
	assert.Equal(t, "two", store.Get("s2")[0].Text)
}

func TestInMemoryStore_BoundedEvictsOldest(t *testing.T) {
	store := NewInMemoryStore(func(o *InMemoryStoreOptions) {
		o.MaxMessages = 4
	})

	messages := make([]model.Message, 10)
	for i := range messages {
		messages[i] = model.Message{Role: model.RoleUser, Text: fmt.Sprintf("m%d", i)}
	}
	store.Replace("s1", messages)

	got := store.Get("s1")
	assert.Len(t, got, 4)
	assert.Equal(t, "m6", got[0].Text)
	assert.Equal(t, "m9", got[3].Text)
}

func TestInMemoryStore_Clear(t *testing.T) {
	store := NewInMemoryStore()
	store.Replace("s1", []model.Message{{Role: model.RoleUser, Text: "hello"}})
	store.Clear("s1")
	assert.Empty(t, store.Get("s1"))
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", n%4)
			store.Replace(id, []model.Message{{Role: model.RoleUser, Text: "t"}})
			_ = store.Get(id)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		assert.Len(t, store.Get(fmt.Sprintf("s%d", i)), 1)
	}
}
