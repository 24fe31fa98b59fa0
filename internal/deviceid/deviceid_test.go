package deviceid

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		serial  string
		wantErr bool
	}{
		{in: "roku:X00500AB1234", serial: "X00500AB1234"},
		{in: "roku-X00500AB1234", serial: "X00500AB1234"},
		{in: "  roku:YH001234  ", serial: "YH001234"},
		{in: "roku:", wantErr: true},
		{in: "roku-", wantErr: true},
		{in: "sonos:abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range cases {
		id, err := Parse(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %v", tc.in, id)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if id.Serial != tc.serial {
			t.Errorf("Parse(%q): serial = %q, want %q", tc.in, id.Serial, tc.serial)
		}
		if got := id.String(); got != "roku:"+tc.serial {
			t.Errorf("Parse(%q): String() = %q", tc.in, got)
		}
	}
}

func TestCanonicalize(t *testing.T) {
	if got := Canonicalize("roku-ABC123"); got != "roku:ABC123" {
		t.Fatalf("Canonicalize legacy form = %q", got)
	}
	if got := Canonicalize("not-a-device"); got != "not-a-device" {
		t.Fatalf("Canonicalize should pass through unparseable input, got %q", got)
	}
}

func TestNormalizeMAC(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF"},
		{"AA-BB-CC-DD-EE-FF", "AA:BB:CC:DD:EE:FF"},
		{"aabbccddeeff", "AA:BB:CC:DD:EE:FF"},
		{" b0:a7:37:12:34:56 ", "B0:A7:37:12:34:56"},
		{"zz:bb:cc:dd:ee:ff", ""},
		{"aa:bb:cc", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeMAC(tc.in); got != tc.want {
			t.Errorf("NormalizeMAC(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
