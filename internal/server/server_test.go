package server

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"astrafs-server/internal/config"
	"astrafs-server/internal/proto"
	"astrafs-server/internal/recorder"
)

// startServer spins up a server on a loopback port with root as its
// sandbox and returns the address to dial.
func startServer(t *testing.T, root string, mutate func(*config.Config)) (*Server, string) {
	t.Helper()

	cfg := config.Default()
	cfg.Root = root
	cfg.LogFile = filepath.Join(t.TempDir(), "server.log")
	if mutate != nil {
		mutate(&cfg)
	}

	rec := recorder.New(io.Discard, cfg.LogFile)
	t.Cleanup(func() { rec.Close() })

	srv, err := New(cfg, rec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go srv.Serve(ln)

	return srv, ln.Addr().String()
}

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// sendRaw writes one request, half-closes the write side, and returns
// every byte the server sends back before closing the connection.
func sendRaw(t *testing.T, addr string, request []byte) []byte {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(request); err != nil {
		t.Fatalf("write request: %v", err)
	}
	if err := conn.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatalf("close write side: %v", err)
	}

	resp, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp
}

func beLen(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return buf[:]
}

func TestReadWholeFile(t *testing.T) {
	root := t.TempDir()
	content := bytes.Repeat([]byte{0xAB}, 42)
	writeFile(t, root, "units/hero.bin", content)
	_, addr := startServer(t, root, nil)

	resp := sendRaw(t, addr, []byte("\x01units/hero.bin\n"))

	want := append([]byte{proto.StatusOK}, beLen(42)...)
	want = append(want, content...)
	if !bytes.Equal(resp, want) {
		t.Errorf("response = % x\nwant       % x", resp, want)
	}
}

func TestExistsMissing(t *testing.T) {
	_, addr := startServer(t, t.TempDir(), nil)

	resp := sendRaw(t, addr, []byte("\x00missing.txt\n"))
	if !bytes.Equal(resp, []byte{0x00, 0x00}) {
		t.Errorf("response = % x, want 00 00", resp)
	}
}

func TestExistsPresent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data/save.dat", []byte("x"))
	_, addr := startServer(t, root, nil)

	resp := sendRaw(t, addr, []byte("\x00data/save.dat\n"))
	if !bytes.Equal(resp, []byte{0x00, 0x01}) {
		t.Errorf("response = % x, want 00 01", resp)
	}

	// Directories count as existing too.
	resp = sendRaw(t, addr, []byte("\x00data\n"))
	if !bytes.Equal(resp, []byte{0x00, 0x01}) {
		t.Errorf("dir response = % x, want 00 01", resp)
	}
}

func TestListIgnoresGlobByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "units/a.bin", []byte("a"))
	_, addr := startServer(t, root, nil)

	resp := sendRaw(t, addr, []byte("\x02units\n*.txt\n"))

	want := append([]byte{proto.StatusOK}, beLen(1)...)
	want = append(want, []byte("units/a.bin\n")...)
	if !bytes.Equal(resp, want) {
		t.Errorf("response = %q, want %q", resp, want)
	}
}

func TestListRecursiveRelativePaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "units/a.bin", []byte("a"))
	writeFile(t, root, "units/sub/b.bin", []byte("b"))
	writeFile(t, root, "units/sub/deep/c.txt", []byte("c"))
	_, addr := startServer(t, root, nil)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("\x02units\n\n")); err != nil {
		t.Fatal(err)
	}

	br := bufio.NewReader(conn)
	status, err := proto.ReadStatus(br)
	if err != nil {
		t.Fatal(err)
	}
	if status != proto.StatusOK {
		t.Fatalf("status = %d", status)
	}
	paths, err := proto.ReadListPayload(br)
	if err != nil {
		t.Fatal(err)
	}

	sort.Strings(paths)
	want := []string{"units/a.bin", "units/sub/b.bin", "units/sub/deep/c.txt"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestListMissingDirIsEmpty(t *testing.T) {
	_, addr := startServer(t, t.TempDir(), nil)

	resp := sendRaw(t, addr, []byte("\x02no/such/dir\n\n"))

	want := append([]byte{proto.StatusOK}, beLen(0)...)
	if !bytes.Equal(resp, want) {
		t.Errorf("response = % x, want % x", resp, want)
	}
}

func TestListGlobFilterCompat(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "units/a.bin", []byte("a"))
	writeFile(t, root, "units/b.txt", []byte("b"))
	_, addr := startServer(t, root, func(cfg *config.Config) {
		cfg.Compat.GlobFilter = true
	})

	resp := sendRaw(t, addr, []byte("\x02units\n*.bin\n"))

	want := append([]byte{proto.StatusOK}, beLen(1)...)
	want = append(want, []byte("units/a.bin\n")...)
	if !bytes.Equal(resp, want) {
		t.Errorf("response = %q, want %q", resp, want)
	}
}

func TestReadMissingFileIsError(t *testing.T) {
	_, addr := startServer(t, t.TempDir(), nil)

	resp := sendRaw(t, addr, []byte("\x01no-such.bin\n"))
	assertErrorResponse(t, resp)
}

func TestUnknownOpThenServerStillServes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.bin", []byte("x"))
	_, addr := startServer(t, root, nil)

	resp := sendRaw(t, addr, []byte{0x09})
	assertErrorResponse(t, resp)

	resp = sendRaw(t, addr, []byte("\x00ok.bin\n"))
	if !bytes.Equal(resp, []byte{0x00, 0x01}) {
		t.Errorf("follow-up response = % x, want 00 01", resp)
	}
}

func TestTruncatedRequestIsError(t *testing.T) {
	_, addr := startServer(t, t.TempDir(), nil)

	// Op byte but no newline-terminated path.
	resp := sendRaw(t, addr, []byte{0x01, 'p', 'a', 'r', 't'})
	assertErrorResponse(t, resp)
}

func TestPathEscapeRejected(t *testing.T) {
	root := t.TempDir()
	secret := filepath.Join(filepath.Dir(root), "secret-"+filepath.Base(root))
	if err := os.WriteFile(secret, []byte("top"), 0o644); err != nil {
		t.Fatal(err)
	}
	defer os.Remove(secret)
	_, addr := startServer(t, root, nil)

	resp := sendRaw(t, addr, []byte("\x01../"+filepath.Base(secret)+"\n"))
	assertErrorResponse(t, resp)
}

func TestPathEscapeAllowedCompat(t *testing.T) {
	root := t.TempDir()
	secret := filepath.Join(filepath.Dir(root), "legacy-"+filepath.Base(root))
	if err := os.WriteFile(secret, []byte("legacy"), 0o644); err != nil {
		t.Fatal(err)
	}
	defer os.Remove(secret)
	_, addr := startServer(t, root, func(cfg *config.Config) {
		cfg.Compat.AllowPathEscape = true
	})

	resp := sendRaw(t, addr, []byte("\x01../"+filepath.Base(secret)+"\n"))

	want := append([]byte{proto.StatusOK}, beLen(6)...)
	want = append(want, []byte("legacy")...)
	if !bytes.Equal(resp, want) {
		t.Errorf("response = %q, want %q", resp, want)
	}
}

func TestBackslashPathsNormalized(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data/sub/f.bin", []byte("f"))
	_, addr := startServer(t, root, nil)

	resp := sendRaw(t, addr, []byte("\x00  data\\sub\\f.bin \r\n"))
	if !bytes.Equal(resp, []byte{0x00, 0x01}) {
		t.Errorf("response = % x, want 00 01", resp)
	}
}

func TestStatsAndRecentRequests(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.bin", []byte("a"))
	srv, addr := startServer(t, root, nil)

	sendRaw(t, addr, []byte("\x00a.bin\n"))       // ok
	sendRaw(t, addr, []byte("\x01missing.bin\n")) // error

	snap := srv.Stats()
	if snap.TotalReq != 2 {
		t.Errorf("TotalReq = %d, want 2", snap.TotalReq)
	}
	if snap.TotalErr != 1 {
		t.Errorf("TotalErr = %d, want 1", snap.TotalErr)
	}
	if snap.ByOp["EXISTS"] != 1 || snap.ByOp["READ"] != 1 {
		t.Errorf("ByOp = %v", snap.ByOp)
	}

	recent := srv.RecentRequests(0)
	if len(recent) != 2 {
		t.Fatalf("RecentRequests = %d entries, want 2", len(recent))
	}
	if recent[0].OpName != "EXISTS" || recent[0].Status != proto.StatusOK {
		t.Errorf("first entry = %+v", recent[0])
	}
	if recent[1].OpName != "READ" || recent[1].Status != proto.StatusError || recent[1].Err == "" {
		t.Errorf("second entry = %+v", recent[1])
	}
}

// assertErrorResponse checks the response is status 1 followed by a
// length-prefixed, non-empty message and nothing else.
func assertErrorResponse(t *testing.T, resp []byte) {
	t.Helper()

	br := bufio.NewReader(bytes.NewReader(resp))
	status, err := proto.ReadStatus(br)
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != proto.StatusError {
		t.Fatalf("status = %d, want %d", status, proto.StatusError)
	}
	msg, err := proto.ReadBytesPayload(br)
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	if len(msg) == 0 {
		t.Error("error message is empty")
	}
	if rest, _ := io.ReadAll(br); len(rest) != 0 {
		t.Errorf("trailing bytes after error response: % x", rest)
	}
}
