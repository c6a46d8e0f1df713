package script

import (
	"testing"

	"menagerie/internal/catalog"
)

func TestSanitizeSpoken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  hello   world  ", "hello world"},
		{"line\none\ttwo\r\nthree", "line one two three"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeSpoken(tc.in); got != tc.want {
			t.Errorf("SanitizeSpoken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestArticle(t *testing.T) {
	cases := map[string]string{
		"Lion":     "a",
		"Elephant": "an",
		"octopus":  "an",
		"":         "a",
	}
	for name, want := range cases {
		if got := Article(name); got != want {
			t.Errorf("Article(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestIsValid(t *testing.T) {
	cases := []struct {
		name   string
		line   string
		entity string
		want   bool
	}{
		{"clean line", "I'm a Lion. I live with my pride on the savanna.", "Lion", true},
		{"tagged line", "[curious] I'm a Lion. I live with my pride on the savanna.", "Lion", true},
		{"banned phrase", "I'm a Lion. Did you know I roar loudly?", "Lion", false},
		{"hype word", "I'm a Lion. I have amazing teeth and claws.", "Lion", false},
		{"missing opener", "Lions live in prides on the savanna.", "Lion", false},
		{"wrong entity", "I'm a Tiger. I have stripes all over my body.", "Lion", false},
		{"opener only", "I'm a Lion.", "Lion", false},
		{"too little after opener", "I'm a Lion. Roar loud.", "Lion", false},
		{"markup", "I'm a Lion. I live <break/> on the savanna today.", "Lion", false},
		{"punctuated name", "I'm a Pig (Pot-Bellied). I love to root around in the mud.", "Pig (Pot-bellied)", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValid(tc.line, tc.entity); got != tc.want {
				t.Errorf("IsValid(%q, %q) = %v, want %v", tc.line, tc.entity, got, tc.want)
			}
		})
	}
}

func TestTagForIsDeterministic(t *testing.T) {
	first := TagFor("sea_otter")
	for i := 0; i < 5; i++ {
		if got := TagFor("sea_otter"); got != first {
			t.Fatalf("TagFor changed between calls: %q vs %q", first, got)
		}
	}
	found := false
	for _, tag := range SimpleTags {
		if tag == first {
			found = true
		}
	}
	if !found {
		t.Errorf("TagFor returned %q, not in whitelist", first)
	}
}

func TestEnsureTag(t *testing.T) {
	line := EnsureTag("I'm a Lion. I nap a lot.", "lion")
	if LeadingTag(line) == "" {
		t.Errorf("EnsureTag did not add a tag: %q", line)
	}
	tagged := "[excited] I'm a Lion. I nap a lot."
	if got := EnsureTag(tagged, "lion"); got != tagged {
		t.Errorf("EnsureTag changed an already tagged line: %q", got)
	}
}

func TestFallback(t *testing.T) {
	cases := []struct {
		name   string
		entity string
		facts  catalog.Facts
		want   string
	}{
		{
			"simple fact",
			"Lion",
			catalog.Facts{Simple: "Lions live in prides. They hunt together at night."},
			"I'm a Lion. Lions live in prides.",
		},
		{
			"no facts",
			"Owl",
			catalog.Facts{},
			"I'm an Owl.",
		},
		{
			"banned opener scrubbed",
			"Lion",
			catalog.Facts{Simple: "Did you know lions sleep twenty hours a day?"},
			"I'm a Lion. lions sleep twenty hours a day.",
		},
		{
			"duplicate intro dropped",
			"Lion",
			catalog.Facts{Simple: "I'm a Lion. My roar carries for miles."},
			"I'm a Lion. My roar carries for miles.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Fallback(tc.entity, tc.facts); got != tc.want {
				t.Errorf("Fallback = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRewriteRepeatedName(t *testing.T) {
	in := "I'm a Trumpet Fish. Trumpet fish often swim straight up and down."
	want := "I'm a Trumpet Fish. I often swim straight up and down."
	if got := RewriteRepeatedName(in, "Trumpet Fish"); got != want {
		t.Errorf("RewriteRepeatedName = %q, want %q", got, want)
	}

	tagged := "[curious] I'm a Trumpet Fish. The trumpet fish hides among coral."
	wantTagged := "[curious] I'm a Trumpet Fish. I hides among coral."
	if got := RewriteRepeatedName(tagged, "Trumpet Fish"); got != wantTagged {
		t.Errorf("RewriteRepeatedName tagged = %q, want %q", got, wantTagged)
	}

	unchanged := "I'm a Lion. I live on the savanna."
	if got := RewriteRepeatedName(unchanged, "Lion"); got != unchanged {
		t.Errorf("RewriteRepeatedName changed a clean line: %q", got)
	}
}

func TestValidateBatch(t *testing.T) {
	expected := []string{"Lion", "Sea Otter"}
	good := map[string]string{
		"lion":      "I'm a Lion. I nap most of the day and hunt at night.",
		"sea otter": "I'm a Sea Otter. I float on my back and crack shells on my tummy.",
	}
	if !ValidateBatch(good, expected, false, false) {
		t.Error("good batch rejected")
	}

	missing := map[string]string{"lion": good["lion"]}
	if ValidateBatch(missing, expected, false, false) {
		t.Error("batch missing an entity accepted")
	}

	extra := map[string]string{
		"lion":      good["lion"],
		"sea otter": good["sea otter"],
		"tiger":     "I'm a Tiger. I have stripes all over my body.",
	}
	if ValidateBatch(extra, expected, false, false) {
		t.Error("batch with extra entity accepted")
	}

	empty := map[string]string{"lion": good["lion"], "sea otter": ""}
	if ValidateBatch(empty, expected, false, false) {
		t.Error("empty line accepted when allowEmpty is false")
	}
	if !ValidateBatch(empty, expected, false, true) {
		t.Error("empty line rejected when allowEmpty is true")
	}

	untagged := map[string]string{"lion": good["lion"], "sea otter": good["sea otter"]}
	if ValidateBatch(untagged, expected, true, false) {
		t.Error("untagged lines accepted when requireTag is set")
	}
}
