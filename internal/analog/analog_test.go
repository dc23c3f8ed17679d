package analog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"adnw/internal/layout"
)

func TestMapper(t *testing.T) {
	m := NewMapper(DefaultConfig())

	tests := []struct {
		name   string
		dx, dy int
		want   Hint
	}{
		{"idle", 0, 0, Hint{}},
		{"within threshold", 1, -1, Hint{X: 1, Y: -1}},
		{"right", 5, 0, Hint{X: 5, Layer: 3}},
		{"left", -2, 0, Hint{X: -2, Layer: 2}},
		{"up", 0, 4, Hint{Y: 4, Mods: layout.ModLShift}},
		{"down left", -9, -9, Hint{X: -9, Y: -9, Layer: 2, Mods: layout.ModLCtrl}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Map(tt.dx, tt.dy))
		})
	}
}

func TestStatic(t *testing.T) {
	var s Source = Static{Layer: 4, Mods: layout.ModRAlt}
	assert.Equal(t, Hint{Layer: 4, Mods: layout.ModRAlt}, s.Hint())
}

func TestDeviceConsumesMovement(t *testing.T) {
	d := NewDevice(NewMapper(DefaultConfig()))
	d.Move(-7, 3)
	assert.Equal(t, Hint{X: -7, Y: 3, Layer: 2, Mods: layout.ModLShift}, d.Hint())
	assert.Equal(t, Hint{}, d.Hint())
}

func TestDeviceConcurrentMove(t *testing.T) {
	d := NewDevice(NewMapper(DefaultConfig()))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.Move(i, -i)
				_ = d.Hint()
			}
		}(i)
	}
	wg.Wait()
	h := d.Hint()
	assert.Equal(t, -h.X, h.Y)
}
