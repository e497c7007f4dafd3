package cow

import (
	"sync"
	"testing"
)

type benchData struct {
	Value int
	Name  string
}

func cloneBenchData(d benchData) benchData { return d }

func BenchmarkRead(b *testing.B) {
	c := New(benchData{Value: 100, Name: "benchmark"}, cloneBenchData)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = c.Read()
		}
	})
}

func BenchmarkEdit(b *testing.B) {
	c := New(benchData{Value: 100, Name: "benchmark"}, cloneBenchData)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Edit(func(d *benchData) error {
			d.Value = i
			return nil
		})
	}
}

// BenchmarkReadWrite mixes 90% reads with 10% edits.
func BenchmarkReadWrite(b *testing.B) {
	c := New(benchData{Value: 100, Name: "benchmark"}, cloneBenchData)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%10 == 0 {
				_ = c.Edit(func(d *benchData) error {
					d.Value = i
					return nil
				})
			} else {
				_ = c.Read()
			}
			i++
		}
	})
}

func BenchmarkMapRead(b *testing.B) {
	type mapData struct {
		Items map[string]int
	}
	items := make(map[string]int)
	for i := 0; i < 1000; i++ {
		items[string(rune('a'+i%26))+string(rune('0'+i%10))] = i
	}
	clone := func(d mapData) mapData {
		out := make(map[string]int, len(d.Items))
		for k, v := range d.Items {
			out[k] = v
		}
		return mapData{Items: out}
	}

	c := New(mapData{Items: items}, clone)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m := c.Read().Value()
			_ = m.Items["a0"]
		}
	})
}

// RWMutex baseline, same shapes as above.

type rwCell struct {
	mu   sync.RWMutex
	data benchData
}

func (c *rwCell) read() benchData {
	c.mu.RLock()
	d := c.data
	c.mu.RUnlock()
	return d
}

func (c *rwCell) edit(fn func(*benchData)) {
	c.mu.Lock()
	fn(&c.data)
	c.mu.Unlock()
}

func BenchmarkRWMutexRead(b *testing.B) {
	c := &rwCell{data: benchData{Value: 100, Name: "benchmark"}}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = c.read()
		}
	})
}

func BenchmarkRWMutexEdit(b *testing.B) {
	c := &rwCell{data: benchData{Value: 100, Name: "benchmark"}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.edit(func(d *benchData) { d.Value = i })
	}
}

func BenchmarkRWMutexReadWrite(b *testing.B) {
	c := &rwCell{data: benchData{Value: 100, Name: "benchmark"}}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%10 == 0 {
				c.edit(func(d *benchData) { d.Value = i })
			} else {
				_ = c.read()
			}
			i++
		}
	})
}
