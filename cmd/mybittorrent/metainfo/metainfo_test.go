package metainfo

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"reflect"
	"strings"
	"testing"
)

func int64p(v int64) *int64 { return &v }

func TestInfoHashGolden(t *testing.T) {
	info := Info{
		Name:        "a",
		PieceLength: 16384,
		Pieces:      string(make([]byte, 20)),
		Length:      int64p(0),
	}

	got, err := info.Hash()
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if want := "dbe20298fa9e6af6776ca31cbfd4a643fd13a7f7"; got.HexString() != want {
		t.Errorf("Hash() = %s, want %s", got, want)
	}
}

func TestInfoHashMultiFileGolden(t *testing.T) {
	info := Info{
		Name:        "root",
		PieceLength: 32768,
		Pieces:      string(bytes.Repeat([]byte{1}, 20)),
		Files: []File{
			{Length: 3, Path: []string{"dir", "a.txt"}, MD5Sum: "0123456789abcdef0123456789abcdef"},
			{Length: 5, Path: []string{"b.bin"}},
		},
	}

	got, err := info.Hash()
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if want := "06b685c4115ae0b4555a558b579cdfb62d7905d0"; got.HexString() != want {
		t.Errorf("Hash() = %s, want %s", got, want)
	}
}

func TestInfoHashDeterministic(t *testing.T) {
	info := Info{Name: "x", PieceLength: 1 << 18, Pieces: strings.Repeat("p", 40), Length: int64p(300000)}
	first, err := info.Hash()
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := info.Hash()
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		if again != first {
			t.Fatalf("Hash() = %s on call %d, want %s", again, i, first)
		}
	}
}

func TestParseMatchesFileBytes(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("d8:announce30:udp://tracker.example.org:69694:infod6:lengthi0e4:name1:a12:piece lengthi16384e6:pieces20:")
	b.Write(make([]byte, 20))
	b.WriteString("ee")

	tor, err := Parse(&b)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tor.Announce != "udp://tracker.example.org:6969" {
		t.Errorf("Announce = %q", tor.Announce)
	}
	if tor.Info.IsMultiFile() || tor.Info.TotalLength() != 0 {
		t.Errorf("Info = %+v, want single file of length 0", tor.Info)
	}
	hash, err := tor.InfoHash()
	if err != nil {
		t.Fatalf("InfoHash() error = %v", err)
	}
	if want := "dbe20298fa9e6af6776ca31cbfd4a643fd13a7f7"; hash.HexString() != want {
		t.Errorf("InfoHash() = %s, want %s", hash, want)
	}
}

func TestParseMultiFile(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("d13:announce-listll20:http://a.example/annel20:http://b.example/ann20:http://c.example/anne")
	b.WriteString("e4:infod5:filesld6:lengthi3e4:pathl3:dir5:a.txteed6:lengthi5e4:pathl5:b.bineee")
	b.WriteString("4:name4:root12:piece lengthi32768e6:pieces20:")
	b.Write(bytes.Repeat([]byte{1}, 20))
	b.WriteString("ee")

	tor, err := Parse(&b)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := tor.Info.TotalLength(); got != 8 {
		t.Errorf("TotalLength() = %d, want 8", got)
	}
	if got := tor.Info.Files[0].Path; !reflect.DeepEqual(got, []string{"dir", "a.txt"}) {
		t.Errorf("Files[0].Path = %v", got)
	}
	want := []string{"http://a.example/ann", "http://b.example/ann", "http://c.example/ann"}
	if got := tor.Trackers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Trackers() = %v, want %v", got, want)
	}
	tiers, err := tor.AnnounceList.Tiers()
	if err != nil {
		t.Fatalf("Tiers() error = %v", err)
	}
	if len(tiers) != 2 || len(tiers[1]) != 2 || tiers[1][1].Host != "c.example" {
		t.Errorf("Tiers() = %v", tiers)
	}
}

func TestParseRejectsInvalidInfo(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Not a dictionary", "li1ee"},
		{"Missing info", "d8:announce3:urle"},
		{"Neither length nor files", "d4:infod4:name1:a12:piece lengthi1e6:pieces0:ee"},
		{"Both length and files", "d4:infod5:filesld6:lengthi1e4:pathl1:aeee6:lengthi1e4:name1:a12:piece lengthi1e6:pieces0:ee"},
		{"Pieces not a multiple of 20", "d4:infod6:lengthi1e4:name1:a12:piece lengthi1e6:pieces3:abcee"},
		{"Wrong type", "d4:infod6:length1:x4:name1:a12:piece lengthi1e6:pieces0:ee"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			if !errors.Is(err, ErrInvalidTorrent) {
				t.Errorf("Parse() error = %v, want ErrInvalidTorrent", err)
			}
		})
	}
}

func TestAnnounceListStrict(t *testing.T) {
	list := AnnounceList{
		{"udp://good.example:80"},
		{"http://ok.example/announce", "not a url"},
	}
	if _, err := list.Tiers(); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("Tiers() error = %v, want ErrInvalidURL", err)
	}
}

func TestPeerID(t *testing.T) {
	id, err := GeneratePeerID(bytes.NewReader(bytes.Repeat([]byte{'z'}, 12)))
	if err != nil {
		t.Fatalf("GeneratePeerID() error = %v", err)
	}
	if got, want := id.String(), "-MY0001-zzzzzzzzzzzz"; got != want {
		t.Errorf("GeneratePeerID() = %q, want %q", got, want)
	}

	if _, err := GeneratePeerID(bytes.NewReader([]byte{1, 2})); err == nil {
		t.Error("GeneratePeerID() with short reader should fail")
	}

	if id := NewPeerID(); !strings.HasPrefix(id.String(), ClientTag) {
		t.Errorf("NewPeerID() = %q, want prefix %q", id, ClientTag)
	}

	parsed, err := ParsePeerID("-MY0001-zzzzzzzzzzzz")
	if err != nil || parsed != id {
		t.Errorf("ParsePeerID() = %q, %v", parsed, err)
	}
	for _, bad := range []string{"", "short", strings.Repeat("x", 21)} {
		if _, err := ParsePeerID(bad); !errors.Is(err, ErrFormat) {
			t.Errorf("ParsePeerID(%q) error = %v, want ErrFormat", bad, err)
		}
	}
}

func TestInfoHashFromHex(t *testing.T) {
	h, err := InfoHashFromHex("dbe20298fa9e6af6776ca31cbfd4a643fd13a7f7")
	if err != nil {
		t.Fatalf("InfoHashFromHex() error = %v", err)
	}
	if h[0] != 0xdb || h[19] != 0xf7 {
		t.Errorf("InfoHashFromHex() = %x", h[:])
	}
	for _, bad := range []string{"abc", strings.Repeat("zz", 20)} {
		if _, err := InfoHashFromHex(bad); !errors.Is(err, ErrFormat) {
			t.Errorf("InfoHashFromHex(%q) error = %v, want ErrFormat", bad, err)
		}
	}
}

type fakeResolver struct {
	addrs []netip.Addr
	err   error
	hosts []string
}

func (f *fakeResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	f.hosts = append(f.hosts, host)
	return f.addrs, f.err
}

func TestAnnounceAddrs(t *testing.T) {
	r := &fakeResolver{addrs: []netip.Addr{
		netip.MustParseAddr("10.0.0.1"),
		netip.MustParseAddr("2001:db8::1"),
	}}

	tests := []struct {
		announce string
		want     []netip.AddrPort
	}{
		{"udp://tracker.example:1337/announce", []netip.AddrPort{
			netip.MustParseAddrPort("10.0.0.1:1337"),
			netip.MustParseAddrPort("[2001:db8::1]:1337"),
		}},
		{"https://tracker.example/announce", []netip.AddrPort{
			netip.MustParseAddrPort("10.0.0.1:443"),
			netip.MustParseAddrPort("[2001:db8::1]:443"),
		}},
		{"http://127.0.0.1/announce", []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:80")}},
	}

	for _, tt := range tests {
		t.Run(tt.announce, func(t *testing.T) {
			tor := &Torrent{Announce: tt.announce}
			got, err := tor.AnnounceAddrs(context.Background(), r)
			if err != nil {
				t.Fatalf("AnnounceAddrs() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("AnnounceAddrs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnnounceAddrsResolutionFailure(t *testing.T) {
	r := &fakeResolver{err: errors.New("no such host")}
	tor := &Torrent{Announce: "udp://missing.example:80"}
	if _, err := tor.AnnounceAddrs(context.Background(), r); !errors.Is(err, ErrResolution) {
		t.Errorf("AnnounceAddrs() error = %v, want ErrResolution", err)
	}

	empty := &Torrent{}
	if _, err := empty.AnnounceAddrs(context.Background(), r); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("AnnounceAddrs() error = %v, want ErrInvalidURL", err)
	}
}
