package naming

import "testing"

func TestSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Living Room Roku", "living_room_roku"},
		{"  50\" TCL Roku TV  ", "50_tcl_roku_tv"},
		{"Bedroom-Stick+", "bedroom_stick"},
		{"already_a_slug", "already_a_slug"},
		{"___", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Slug(tc.in); got != tc.want {
			t.Errorf("Slug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEntityIDRoundTrip(t *testing.T) {
	id := EntityID("living_room_roku")
	if id != "media_player.living_room_roku" {
		t.Fatalf("EntityID = %q", id)
	}
	slug, ok := SlugFromEntityID(id)
	if !ok || slug != "living_room_roku" {
		t.Fatalf("SlugFromEntityID(%q) = %q, %v", id, slug, ok)
	}

	if _, ok := SlugFromEntityID("sensor.kitchen_temp"); ok {
		t.Fatal("foreign namespace should not parse")
	}
	if _, ok := SlugFromEntityID("media_player."); ok {
		t.Fatal("empty slug should not parse")
	}
}

func TestFuzzyMatch(t *testing.T) {
	cases := []struct {
		slug, name string
		want       bool
	}{
		{"living_room_roku", "Living Room Roku", true},
		{"living_room", "Living Room Roku", true},
		{"living_room_roku", "Living Room", true},
		{"bedroom_tv", "Living Room Roku", false},
		{"", "Living Room", false},
		{"living_room", "", false},
	}
	for _, tc := range cases {
		if got := FuzzyMatch(tc.slug, tc.name); got != tc.want {
			t.Errorf("FuzzyMatch(%q, %q) = %v, want %v", tc.slug, tc.name, got, tc.want)
		}
	}
}
