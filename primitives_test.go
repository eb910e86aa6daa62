package mandelzoom

import "testing"

func TestShortestSide(t *testing.T) {
	tests := []struct {
		d    Dimensions
		want uint32
	}{
		{Dimensions{Width: 800, Height: 600}, 600},
		{Dimensions{Width: 600, Height: 800}, 600},
		{Dimensions{Width: 512, Height: 512}, 512},
	}
	for _, tt := range tests {
		if got := tt.d.ShortestSide(); got != tt.want {
			t.Errorf("%+v.ShortestSide() = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestScale(t *testing.T) {
	d := Dimensions{Width: 800, Height: 600}

	if got := d.Scale(2); got != (Dimensions{Width: 1600, Height: 1200}) {
		t.Errorf("Scale(2) = %+v", got)
	}
	if got := d.Scale(0.5); got != (Dimensions{Width: 400, Height: 300}) {
		t.Errorf("Scale(0.5) = %+v", got)
	}
}

func TestAlignedWidth(t *testing.T) {
	tests := []struct {
		width uint32
		want  uint32
	}{
		{1, 64},
		{64, 64},
		{65, 128},
		{100, 128},
		{1920, 1920},
	}
	for _, tt := range tests {
		d := Dimensions{Width: tt.width, Height: 1}
		if got := d.AlignedWidth(64); got != tt.want {
			t.Errorf("AlignedWidth(64) of %d = %d, want %d", tt.width, got, tt.want)
		}
	}
}
