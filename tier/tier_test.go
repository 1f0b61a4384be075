package tier

import "testing"

func TestTierOrdering(t *testing.T) {
	if !(Structural < LightweightScript && LightweightScript < FullRender) {
		t.Fatal("tiers must order by cost")
	}
	if len(All) != 3 || All[0] != Structural || All[2] != FullRender {
		t.Errorf("All = %v", All)
	}
}

func TestTierNext(t *testing.T) {
	next, ok := Structural.Next()
	if !ok || next != LightweightScript {
		t.Errorf("Structural.Next() = %s, %v", next, ok)
	}
	next, ok = LightweightScript.Next()
	if !ok || next != FullRender {
		t.Errorf("LightweightScript.Next() = %s, %v", next, ok)
	}
	if _, ok := FullRender.Next(); ok {
		t.Error("FullRender has no next tier")
	}
}

func TestTierParseRoundTrip(t *testing.T) {
	for _, tn := range All {
		got, err := Parse(tn.String())
		if err != nil || got != tn {
			t.Errorf("Parse(%q) = %s, %v", tn.String(), got, err)
		}
	}
	if _, err := Parse("warp-speed"); err == nil {
		t.Error("unknown tier name must fail to parse")
	}
}
