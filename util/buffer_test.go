package util

import "testing"

func TestLengthEncodedIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 250, 251, 252, 65535, 65536, 16777215, 16777216, 1 << 40}
	for _, v := range cases {
		buf := WriteLength(nil, int64(v))
		_, got := ReadLength(buf, 0)
		if got != v {
			t.Fatalf("WriteLength/ReadLength(%d): got %d", v, got)
		}
	}
}

func TestWriteLengthNeverEmitsNullSentinelForLiteral(t *testing.T) {
	buf := WriteLength(nil, 251)
	if buf[0] == 0xfb {
		t.Fatalf("WriteLength(251) collided with the NULL sentinel byte")
	}
}

func TestReadWithNull(t *testing.T) {
	buf := append([]byte("mysql_native_password"), 0, 0xAA)
	cursor, s := ReadWithNull(buf, 0)
	if string(s) != "mysql_native_password" {
		t.Fatalf("got %q", s)
	}
	if buf[cursor] != 0xAA {
		t.Fatalf("cursor left at %d, expected to point past the null terminator", cursor)
	}
}

func TestUB4RoundTrip(t *testing.T) {
	buf := WriteUB4(nil, 0xdeadbeef)
	_, got := ReadUB4(buf, 0)
	if got != 0xdeadbeef {
		t.Fatalf("got %x", got)
	}
}
