package msgfilter

import "testing"

func TestInvalidTooLong(t *testing.T) {
	r := Filter("hello", 3, nil)
	if r.Kind != KindInvalid {
		t.Fatalf("expected KindInvalid, got %v", r.Kind)
	}
}

func TestInvalidWhitespaceOnly(t *testing.T) {
	r := Filter("   \t\n  ", 100, nil)
	if r.Kind != KindInvalid {
		t.Fatalf("expected KindInvalid, got %v", r.Kind)
	}
}

func TestCommandsExactMatch(t *testing.T) {
	r := Filter("/killme", 100, nil)
	if r.Kind != KindCommand || r.Cmd != KillMe {
		t.Fatalf("expected KillMe command, got %+v", r)
	}
	r = Filter("  /blockme  ", 100, nil)
	if r.Kind != KindCommand || r.Cmd != BlockMe {
		t.Fatalf("expected BlockMe command, got %+v", r)
	}
}

func TestCommandWithArgsIsNotACommand(t *testing.T) {
	r := Filter("/killme please", 100, nil)
	if r.Kind != KindMessage {
		t.Fatalf("expected plain message for non-exact command match, got %+v", r)
	}
}

func TestKYSRewrite(t *testing.T) {
	cases := []string{"kys", "KYS", "k y s", " K Y S ", "kYs"}
	for _, c := range cases {
		r := Filter(c, 100, nil)
		if r.Kind != KindMessage || r.Content != kysRewrite {
			t.Errorf("Filter(%q) = %+v, want rewritten message", c, r)
		}
	}
}

func TestKYSRewriteDoesNotMatchExtraChars(t *testing.T) {
	r := Filter("kysss", 100, nil)
	if r.Kind != KindMessage || r.Content == kysRewrite {
		t.Fatalf("expected no rewrite for extended content, got %+v", r)
	}
}

func TestOrdinaryMessagePassesThrough(t *testing.T) {
	r := Filter("  hi there  ", 100, nil)
	if r.Kind != KindMessage || r.Content != "hi there" {
		t.Fatalf("expected trimmed passthrough, got %+v", r)
	}
}

func TestProfanityReplacementIdentityWhenEmpty(t *testing.T) {
	r := Filter("darn heck", 100, nil)
	if r.Content != "darn heck" {
		t.Fatalf("expected identity function with no wordlist, got %q", r.Content)
	}
}

func TestProfanityReplacement(t *testing.T) {
	words := Wordlist{"darn": {}}
	r := Filter("darn heck", 100, words)
	if r.Content != "#### heck" {
		t.Fatalf("expected profanity replaced, got %q", r.Content)
	}
}
