package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMobile(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"domestic", "09171234567", "+639171234567", true},
		{"domestic with separators", " 0917-123 4567 ", "+639171234567", true},
		{"international double zero", "00639171234567", "+639171234567", true},
		{"already canonical", "+639171234567", "+639171234567", true},
		{"short domestic passes through", "0917123", "0917123", true},
		{"twelve digits passes through", "091712345678", "091712345678", true},
		{"letters pass through", "0917abc4567", "0917abc4567", true},
		{"empty", "", "", false},
		{"blank", "   ", "", false},
		{"only separators", " - - ", "", false},
		{"hyphen before tab", "-\t09171234567", "+639171234567", true},
		{"tab before hyphen", "09171234567\t-", "+639171234567", true},
		{"non-breaking space", "0917\u00a0123\u00a04567", "+639171234567", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Mobile(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEmail(t *testing.T) {
	cases := map[string]string{
		"  Maria@Example.COM ": "maria@example.com",
		"a@b.c":                "a@b.c",
	}
	for in, want := range cases {
		got, ok := Email(in)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := Email(" \t ")
	assert.False(t, ok)
}

func TestNormalizersAreIdempotent(t *testing.T) {
	inputs := []string{
		"09171234567", "00639171234567", "+63 917 123 4567", "0917-123-4567",
		"", " ", "abc", "0", "00", "0000000000000", "  MiXeD@Case.Org  ", "-",
		"-\t09171234567", "09171234567\t-", "\u00a0-0917 123 4567-\u00a0", "-\u2003x@y.z",
	}
	for _, in := range inputs {
		m1, ok1 := Mobile(in)
		if ok1 {
			m2, ok2 := Mobile(m1)
			assert.True(t, ok2, in)
			assert.Equal(t, m1, m2, "mobile %q", in)
		}
		e1, ok1 := Email(in)
		if ok1 {
			e2, ok2 := Email(e1)
			assert.True(t, ok2, in)
			assert.Equal(t, e1, e2, "email %q", in)
		}
	}
}

func FuzzMobileIdempotent(f *testing.F) {
	for _, seed := range []string{"09171234567", "-\t09171234567", "0063 917", "\u00a0-", "00", "+639171234567"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		m1, ok := Mobile(in)
		if !ok {
			return
		}
		m2, ok := Mobile(m1)
		if !ok || m1 != m2 {
			t.Fatalf("Mobile(%q) = %q, Mobile(%q) = %q", in, m1, m1, m2)
		}
	})
}

func TestPtrHelpers(t *testing.T) {
	assert.Nil(t, MobilePtr(""))
	assert.Nil(t, EmailPtr(" "))
	if p := MobilePtr("09171234567"); assert.NotNil(t, p) {
		assert.Equal(t, "+639171234567", *p)
	}
	if p := EmailPtr("X@Y.Z"); assert.NotNil(t, p) {
		assert.Equal(t, "x@y.z", *p)
	}
}
