package vehicle

import "testing"

func TestMapForRotation(t *testing.T) {
	cases := []struct {
		name     string
		rotation int
		x, y     float64
		lon, lat float64
	}{
		{"rotation 0", Rotation0, 1, 2, 1, -2},
		{"rotation 90", Rotation90, 1, 2, 2, 1},
		{"rotation 180", Rotation180, 1, 2, -1, 2},
		{"rotation 270", Rotation270, 1, 2, -2, -1},
		{"unknown falls back to 0", 45, 1, 2, 1, -2},
		{"negative falls back to 0", -90, 3, -4, 3, 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lon, lat := MapForRotation(tc.x, tc.y, tc.rotation)
			if lon != tc.lon || lat != tc.lat {
				t.Errorf("MapForRotation(%v, %v, %d) = (%v, %v), want (%v, %v)",
					tc.x, tc.y, tc.rotation, lon, lat, tc.lon, tc.lat)
			}
		})
	}
}

func TestMapForRotationZeroInput(t *testing.T) {
	for _, rot := range []int{Rotation0, Rotation90, Rotation180, Rotation270} {
		lon, lat := MapForRotation(0, 0, rot)
		if lon != 0 || lat != 0 {
			t.Errorf("rotation %d: zero input mapped to (%v, %v)", rot, lon, lat)
		}
	}
}
