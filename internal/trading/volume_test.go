package trading

import "testing"

func TestVolumeSnapshotAccumulatesAcrossCalls(t *testing.T) {
	c := New(nil, nil, nil)

	c.recordVolume("alice", 10)
	c.recordVolume("alice", 5)
	c.recordVolume("bob", 3)

	snap := c.VolumeSnapshot()
	if snap["alice"] != 15 {
		t.Fatalf("alice volume=%d, expected 15", snap["alice"])
	}
	if snap["bob"] != 3 {
		t.Fatalf("bob volume=%d, expected 3", snap["bob"])
	}
}

func TestVolumeSnapshotIsACopyNotALiveView(t *testing.T) {
	c := New(nil, nil, nil)
	c.recordVolume("alice", 10)

	snap := c.VolumeSnapshot()
	snap["alice"] = 999

	if got := c.VolumeSnapshot()["alice"]; got != 10 {
		t.Fatalf("internal volume mutated via snapshot map, got %d", got)
	}
}

func TestResetVolumeClearsAllCounters(t *testing.T) {
	c := New(nil, nil, nil)
	c.recordVolume("alice", 10)
	c.recordVolume("bob", 3)

	c.ResetVolume()

	snap := c.VolumeSnapshot()
	if len(snap) != 0 {
		t.Fatalf("expected empty snapshot after ResetVolume, got %v", snap)
	}
}
