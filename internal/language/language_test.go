package language

import "testing"

func TestLookupResolvesCodesAndNames(t *testing.T) {
	cases := []struct {
		input string
		code  string
		name  string
	}{
		{"es", "es", "Spanish"},
		{" ES ", "es", "Spanish"},
		{"spanish", "es", "Spanish"},
		{"Brazilian   Portuguese", "pt-BR", "Brazilian Portuguese"},
		{"pt-BR", "pt-BR", "Brazilian Portuguese"},
		{"fra", "fr", "French"},
		{"German", "de", "German"},
	}
	for _, tc := range cases {
		info := Lookup(tc.input)
		if !info.Known {
			t.Fatalf("Lookup(%q) not resolved", tc.input)
		}
		if info.Code != tc.code || info.Name != tc.name {
			t.Fatalf("Lookup(%q) = %s/%s, want %s/%s", tc.input, info.Code, info.Name, tc.code, tc.name)
		}
	}
}

func TestLookupUnknownTitleCases(t *testing.T) {
	info := Lookup("klingon pidgin")
	if info.Known {
		t.Fatalf("expected unknown language, got %#v", info)
	}
	if info.Name != "Klingon Pidgin" {
		t.Fatalf("Name = %q", info.Name)
	}
	if empty := Lookup("   "); empty.Input != "" || empty.Known {
		t.Fatalf("unexpected info for blank input %#v", empty)
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe("spanish"); got != "Spanish (es)" {
		t.Fatalf("Describe(spanish) = %q", got)
	}
	if got := Describe("klingon pidgin"); got != "Klingon Pidgin" {
		t.Fatalf("Describe(unknown) = %q", got)
	}
	if got := Describe(""); got != "none" {
		t.Fatalf("Describe(empty) = %q", got)
	}
}

func TestValidate(t *testing.T) {
	for _, ok := range []string{"Spanish", "pt-BR", "Chinese (Traditional)"} {
		if err := Validate(ok); err != nil {
			t.Fatalf("Validate(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "   ", "123", "es\x00", "a\nb"} {
		if err := Validate(bad); err == nil {
			t.Fatalf("Validate(%q) expected error", bad)
		}
	}
}
