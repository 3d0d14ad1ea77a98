package board

import "testing"

func TestPipWeight(t *testing.T) {
	cases := map[int]int{
		2:  1,
		3:  2,
		6:  5,
		7:  0,
		8:  5,
		11: 2,
		12: 1,
		0:  0,
		13: 0,
	}
	for roll, want := range cases {
		if got := PipWeight(roll); got != want {
			t.Errorf("PipWeight(%d) = %d, want %d", roll, got, want)
		}
	}
}

func TestFingerprintStable(t *testing.T) {
	snap := &Snapshot{
		Nodes: []Node{{ID: 1, SiteIDs: []int{1}, Neighbors: []int{2}}},
		Sites: []ResourceSite{{ID: 1, Resource: "wood", Number: 8}},
	}

	first := snap.Fingerprint()
	second := snap.Fingerprint()
	if first == "" {
		t.Fatal("Fingerprint returned empty string")
	}
	if first != second {
		t.Errorf("Fingerprint not stable: %s != %s", first, second)
	}
}

func TestFingerprintChangesWithBoard(t *testing.T) {
	base := &Snapshot{
		Nodes: []Node{{ID: 1, SiteIDs: []int{1}, Neighbors: []int{2}}},
		Sites: []ResourceSite{{ID: 1, Resource: "wood", Number: 8}},
	}
	occupied := &Snapshot{
		Nodes: []Node{{ID: 1, SiteIDs: []int{1}, Neighbors: []int{2},
			Occupied: &Structure{Owner: "seat-1", Kind: "settlement"}}},
		Sites: []ResourceSite{{ID: 1, Resource: "wood", Number: 8}},
	}

	if base.Fingerprint() == occupied.Fingerprint() {
		t.Error("Fingerprint did not change when a node became occupied")
	}
}
