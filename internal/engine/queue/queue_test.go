package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/hostbridge/internal/engine/async"
)

func echo(log *[]string) Executor {
	return func(c Call) *async.Future[interface{}] {
		*log = append(*log, c.Name)
		return async.Resolved[interface{}](c.Name)
	}
}

func TestQueue_FlushIsFIFO(t *testing.T) {
	q := New()
	var futures []*async.Future[interface{}]
	names := []string{"a", "b", "c", "d", "e"}

	for _, n := range names {
		f, ok := q.Enqueue(Call{Name: n})
		require.True(t, ok)
		futures = append(futures, f)
	}
	assert.Equal(t, 5, q.Len())

	var executed []string
	assert.Equal(t, 5, q.Flush(echo(&executed)))
	assert.Equal(t, names, executed)
	assert.Equal(t, StateOpen, q.State())

	for i, f := range futures {
		v, err := f.Result()
		require.NoError(t, err)
		assert.Equal(t, names[i], v)
	}
}

func TestQueue_EnqueueDuringFlushRunsInSameFlush(t *testing.T) {
	q := New()
	q.Enqueue(Call{Name: "first"})

	var executed []string
	var late *async.Future[interface{}]
	q.Flush(func(c Call) *async.Future[interface{}] {
		executed = append(executed, c.Name)
		if c.Name == "first" {
			var ok bool
			late, ok = q.Enqueue(Call{Name: "during"})
			require.True(t, ok)
			assert.Equal(t, StateFlushing, q.State())
		}
		return async.Resolved[interface{}](nil)
	})

	assert.Equal(t, []string{"first", "during"}, executed)
	require.NotNil(t, late)
	assert.True(t, late.Settled())
}

func TestQueue_OpenRefusesEnqueue(t *testing.T) {
	q := New()
	q.Flush(func(Call) *async.Future[interface{}] { return nil })

	f, ok := q.Enqueue(Call{Name: "x"})
	assert.False(t, ok)
	assert.Nil(t, f)
	assert.Equal(t, 0, q.Flush(func(Call) *async.Future[interface{}] { return nil }))
}

func TestQueue_ErrorAffectsOnlyItsCall(t *testing.T) {
	q := New()
	bad, _ := q.Enqueue(Call{Name: "bad"})
	good, _ := q.Enqueue(Call{Name: "good"})
	panicky, _ := q.Enqueue(Call{Name: "panicky"})

	boom := errors.New("boom")
	q.Flush(func(c Call) *async.Future[interface{}] {
		switch c.Name {
		case "bad":
			return async.Rejected[interface{}](boom)
		case "panicky":
			panic("host exploded")
		}
		return async.Resolved[interface{}](true)
	})

	_, err := bad.Result()
	assert.ErrorIs(t, err, boom)

	v, err := good.Result()
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = panicky.Result()
	assert.ErrorContains(t, err, "host exploded")
}

func TestQueue_Fail(t *testing.T) {
	q := New()
	a, _ := q.Enqueue(Call{Name: "a"})
	b, _ := q.Enqueue(Call{Kind: KindProperty, Name: "b"})

	unavailable := errors.New("unavailable")
	assert.Equal(t, 2, q.Fail(unavailable))
	assert.Equal(t, StateFailed, q.State())
	assert.ErrorIs(t, q.Err(), unavailable)

	for _, f := range []*async.Future[interface{}]{a, b} {
		_, err := f.Result()
		assert.ErrorIs(t, err, unavailable)
	}

	later, ok := q.Enqueue(Call{Name: "later"})
	require.True(t, ok)
	_, err := later.Result()
	assert.ErrorIs(t, err, unavailable)

	assert.Equal(t, 0, q.Fail(errors.New("again")))
	assert.Equal(t, 0, q.Flush(func(Call) *async.Future[interface{}] {
		t.Fatal("failed queue must not flush")
		return nil
	}))
}

func TestCall_String(t *testing.T) {
	assert.Equal(t, "isOnline()", Call{Name: "isOnline"}.String())
	assert.Equal(t, ".onlineState", Call{Kind: KindProperty, Name: "onlineState"}.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "state(9)", State(9).String())
}
