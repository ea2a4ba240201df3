package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	k1 := Key("outages", 9, "2024", "borough='BRONX' AND status IN('Open','Closed')")
	k2 := Key("outages", 9, "2024", "borough='BRONX' AND status IN('Open','Closed')")
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestNormalization_SpacingVariantsProduceSameKey(t *testing.T) {
	fA := "  borough  =    'BRONX'   AND  status IN('Open','Closed')  "
	fB := "borough='BRONX' AND status IN ( 'Open' , 'Closed' )"
	k1 := Key(" outages ", Points, "all", fA)
	k2 := Key("outages", Points, "all", fB)
	if k1 != k2 {
		t.Fatalf("normalized keys differ:\n k1=%s\n k2=%s", k1, k2)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9:_=\-]+$`).MatchString(k1) {
		t.Fatalf("key contains disallowed characters: %s", k1)
	}
}

func TestDifference_EveryDimensionMatters(t *testing.T) {
	base := Key("outages", 9, "2024", "a=1")
	for name, k := range map[string]string{
		"dataset": Key("rat_sightings", 9, "2024", "a=1"),
		"res":     Key("outages", 8, "2024", "a=1"),
		"points":  Key("outages", Points, "2024", "a=1"),
		"year":    Key("outages", 9, "all", "a=1"),
		"where":   Key("outages", 9, "2024", "a=2"),
		"order":   Key("outages", 9, "2024", "b=2 AND a=1"),
	} {
		if k == base {
			t.Fatalf("%s must change the key: %s", name, k)
		}
	}
}

func TestPrefix_CoversDatasetKeysOnly(t *testing.T) {
	p := Prefix("outages")
	if !strings.HasPrefix(Key("outages", 9, "2024", ""), p) {
		t.Fatalf("key not under prefix %s", p)
	}
	if strings.HasPrefix(Key("outages_archive", 9, "2024", ""), p) {
		t.Fatalf("prefix %s leaks into another dataset", p)
	}
}

func TestUnicodeSafety_NoPanicAndHashSuffixPresent(t *testing.T) {
	k := Key("outages", 9, "2024", "incident_address = 'Göteborg' AND note = '雪'")

	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	m := regexp.MustCompile(`:f=([0-9a-f]{16})$`).FindStringSubmatch(k)
	if len(m) != 2 {
		t.Fatalf("missing or invalid :f=<hex64> suffix in key: %s", k)
	}
	if !strings.Contains(k, ":where=") {
		t.Fatalf("missing where= segment in key: %s", k)
	}
}

func TestLongClauseIsTruncatedButDistinct(t *testing.T) {
	long := strings.Repeat("x", 400)
	k1 := Key("outages", 9, "all", long+"a")
	k2 := Key("outages", 9, "all", long+"b")
	if k1 == k2 {
		t.Fatalf("hash suffix should keep truncated keys distinct")
	}
	if len(k1) > 260 {
		t.Fatalf("key too long: %d", len(k1))
	}
}
