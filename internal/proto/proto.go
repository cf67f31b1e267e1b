/*
Package proto implements the astrafs wire protocol.

A request is framed by shape, not by a message length prefix:

	byte   operation            // 0=Exists, 1=Read, 2=List
	line   path                 // text up to '\n'
	line   glob                 // present only when operation == 2

A response starts with a status byte (0=ok, 1=error). The success
payload depends on the operation; the error payload is always a
length-prefixed message:

	Exists:  1 byte flag (1 = exists)
	Read:    8-byte big-endian length, then that many raw bytes
	List:    8-byte big-endian count, then that many '\n'-terminated paths
	Error:   8-byte big-endian length, then the message bytes

Every length/count field is exactly 8 bytes wide, big-endian,
regardless of platform word size.
*/
package proto

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Operation codes.
const (
	OpExists byte = 0
	OpRead   byte = 1
	OpList   byte = 2
)

// Response status bytes.
const (
	StatusOK    byte = 0
	StatusError byte = 1
)

// LenFieldSize is the fixed width of every length/count field.
const LenFieldSize = 8

// Request is one decoded client request. Path and Glob are trimmed
// and separator-normalized but not yet resolved against a root.
type Request struct {
	Op   byte
	Path string
	Glob string
}

// OpName returns a short human-readable name for an operation code.
func OpName(op byte) string {
	switch op {
	case OpExists:
		return "EXISTS"
	case OpRead:
		return "READ"
	case OpList:
		return "LIST"
	default:
		return fmt.Sprintf("OP_%d", op)
	}
}

// ReadRequest decodes a single request off the stream. It fails when
// the stream ends before the operation byte, when the operation code
// is unknown, or when a required line is not newline-terminated.
func ReadRequest(r *bufio.Reader) (Request, error) {
	op, err := r.ReadByte()
	if err != nil {
		return Request{}, fmt.Errorf("read operation byte: %w", err)
	}
	if op > OpList {
		return Request{}, fmt.Errorf("unknown operation %d", op)
	}

	path, err := readLine(r)
	if err != nil {
		return Request{}, fmt.Errorf("read path line: %w", err)
	}

	req := Request{Op: op, Path: normalizePath(path)}
	if op == OpList {
		glob, err := readLine(r)
		if err != nil {
			return Request{}, fmt.Errorf("read glob line: %w", err)
		}
		req.Glob = strings.TrimSpace(glob)
	}
	return req, nil
}

// readLine reads up to and excluding the next '\n'. A stream that
// closes before the newline is a framing error.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

func normalizePath(p string) string {
	return strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
}

// WriteExists writes a success response carrying an existence flag.
func WriteExists(w io.Writer, exists bool) error {
	flag := byte(0)
	if exists {
		flag = 1
	}
	_, err := w.Write([]byte{StatusOK, flag})
	return err
}

// WriteFileData writes a success response carrying whole-file bytes.
func WriteFileData(w io.Writer, data []byte) error {
	if _, err := w.Write([]byte{StatusOK}); err != nil {
		return err
	}
	if err := writeLen(w, uint64(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// WriteList writes a success response carrying a path listing.
func WriteList(w io.Writer, paths []string) error {
	if _, err := w.Write([]byte{StatusOK}); err != nil {
		return err
	}
	if err := writeLen(w, uint64(len(paths))); err != nil {
		return err
	}
	for _, p := range paths {
		if _, err := io.WriteString(w, p+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteError writes an error response with a human-readable message.
func WriteError(w io.Writer, msg string) error {
	if _, err := w.Write([]byte{StatusError}); err != nil {
		return err
	}
	if err := writeLen(w, uint64(len(msg))); err != nil {
		return err
	}
	_, err := io.WriteString(w, msg)
	return err
}

func writeLen(w io.Writer, n uint64) error {
	var buf [LenFieldSize]byte
	binary.BigEndian.PutUint64(buf[:], n)
	_, err := w.Write(buf[:])
	return err
}

// ReadStatus reads the leading status byte of a response.
func ReadStatus(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("read status byte: %w", err)
	}
	return buf[0], nil
}

// ReadExistsPayload reads the flag byte of an Exists success response.
func ReadExistsPayload(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, fmt.Errorf("read existence flag: %w", err)
	}
	return buf[0] == 1, nil
}

// ReadBytesPayload reads a length-prefixed byte payload. It is used
// for both Read success payloads and error messages.
func ReadBytesPayload(r io.Reader) ([]byte, error) {
	n, err := readLen(r)
	if err != nil {
		return nil, err
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read %d payload bytes: %w", n, err)
	}
	return data, nil
}

// ReadListPayload reads a count-prefixed path listing.
func ReadListPayload(r *bufio.Reader) ([]string, error) {
	n, err := readLen(r)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		line, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("read listing entry %d: %w", i, err)
		}
		paths = append(paths, line)
	}
	return paths, nil
}

func readLen(r io.Reader) (uint64, error) {
	var buf [LenFieldSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("read length field: %w", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
